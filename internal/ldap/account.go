package ldap

import (
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// UACAccountDisabled is the ACCOUNTDISABLE bit of userAccountControl.
const UACAccountDisabled int64 = 0x00000002

// EnabledState is the tri-state enabled flag of a directory account.
type EnabledState int

const (
	EnabledUnknown EnabledState = iota // userAccountControl absent or unreadable
	EnabledTrue
	EnabledFalse
)

func (s EnabledState) String() string {
	switch s {
	case EnabledTrue:
		return "enabled"
	case EnabledFalse:
		return "disabled"
	default:
		return "unknown"
	}
}

// Bool returns the state as a *bool, nil when unknown.
func (s EnabledState) Bool() *bool {
	switch s {
	case EnabledTrue:
		v := true
		return &v
	case EnabledFalse:
		v := false
		return &v
	default:
		return nil
	}
}

// ParseAccountControl maps a raw userAccountControl value to an EnabledState.
// The disabled bit set means false, clear means true; a missing or non-numeric
// value is unknown.
func ParseAccountControl(raw string) EnabledState {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EnabledUnknown
	}

	// AD returns the flags as a signed 32-bit decimal.
	uac, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return EnabledUnknown
	}

	if uac&UACAccountDisabled != 0 {
		return EnabledFalse
	}
	return EnabledTrue
}

// attributeValue returns the first value of name on entry. A missing
// attribute, an empty value list or a nil entry report ok=false.
func attributeValue(entry *ldap.Entry, name string) (string, bool) {
	if entry == nil {
		return "", false
	}
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, name) {
			if len(attr.Values) == 0 {
				return "", false
			}
			return attr.Values[0], true
		}
	}
	return "", false
}

// attributeValues returns every value of name on entry.
func attributeValues(entry *ldap.Entry, name string) []string {
	if entry == nil {
		return nil
	}
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, name) {
			return attr.Values
		}
	}
	return nil
}
