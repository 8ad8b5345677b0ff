package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
)

// DecodeSID converts a binary objectSid to its S-1-5-21-... form.
func DecodeSID(binarySID []byte) (string, error) {
	// revision, sub-authority count, 6-byte identifier authority
	if len(binarySID) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}
	if want := 8 + 4*int(binarySID[1]); len(binarySID) < want {
		return "", fmt.Errorf("binary SID truncated: %d of %d bytes", len(binarySID), want)
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ExtractSIDSafe returns the objectSid of entry in string form, or "" when it
// is absent or malformed. Both the binary wire form and an already-rendered
// string are accepted.
func ExtractSIDSafe(entry *ldap.Entry) string {
	if entry == nil {
		return ""
	}

	raw := entry.GetRawAttributeValue("objectSid")
	if len(raw) == 0 {
		return ""
	}

	if strings.HasPrefix(string(raw), "S-") {
		return string(raw)
	}

	sid, err := DecodeSID(raw)
	if err != nil {
		return ""
	}
	return sid
}
