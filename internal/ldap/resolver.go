package ldap

import (
	"context"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// userAttributes is the projection requested for every user lookup.
var userAttributes = []string{
	"displayName",
	"sAMAccountName",
	"userPrincipalName",
	"userAccountControl",
	"mail",
	"objectSid",
}

// Lookup is the projection of a resolved directory user. A zero Lookup means
// no match.
type Lookup struct {
	Found             bool
	Enabled           EnabledState
	DisplayName       string
	ShortName         string
	UserPrincipalName string
	Mail              string
	DistinguishedName string
	ObjectSID         string
}

// UserResolver finds person-category user accounts by email or short name.
type UserResolver struct {
	dir Directory
}

// NewUserResolver creates a resolver that queries dir.
func NewUserResolver(dir Directory) *UserResolver {
	return &UserResolver{dir: dir}
}

// FindByEmail looks up a user whose mail, UPN or SMTP proxy address matches
// email. A blank email returns a zero Lookup without querying.
func (r *UserResolver) FindByEmail(ctx context.Context, email string) (Lookup, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return Lookup{}, nil
	}

	return r.findOne(ctx, "lookup_email", EmailFilter(normalized))
}

// FindByShortName looks up a user by sAMAccountName. A blank name returns a
// zero Lookup without querying.
func (r *UserResolver) FindByShortName(ctx context.Context, name string) (Lookup, error) {
	normalized := NormalizeShortName(name)
	if normalized == "" {
		return Lookup{}, nil
	}

	return r.findOne(ctx, "lookup_short_name", ShortNameFilter(normalized))
}

func (r *UserResolver) findOne(ctx context.Context, operation, filter string) (Lookup, error) {
	if err := ValidateFilter(filter); err != nil {
		wrapped := &LDAPError{
			Operation: operation,
			Filter:    filter,
			Category:  ErrorCategoryValidation,
			Message:   "refusing to send a malformed filter",
			Cause:     err,
		}
		LogLDAPError(ctx, Subsystem, operation, err, map[string]any{"filter": filter})
		return Lookup{}, wrapped
	}

	req := &SearchRequest{
		BaseDN:     r.dir.BaseDN(),
		Scope:      ScopeWholeSubtree,
		Filter:     filter,
		Attributes: userAttributes,
		SizeLimit:  1,
	}

	result, err := r.dir.Search(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Lookup{}, ctx.Err()
		}
		wrapped := NewLDAPError(operation, err)
		wrapped.Filter = filter
		LogLDAPError(ctx, Subsystem, operation, err, map[string]any{"filter": filter})
		return Lookup{}, wrapped
	}

	if result == nil || len(result.Entries) == 0 {
		tflog.SubsystemTrace(ctx, Subsystem, "No matching user", map[string]any{
			"operation": operation,
			"filter":    filter,
		})
		return Lookup{}, nil
	}

	entry := result.Entries[0]
	lookup := Lookup{
		Found:             true,
		DistinguishedName: entry.DN,
		ObjectSID:         ExtractSIDSafe(entry),
	}

	lookup.DisplayName, _ = attributeValue(entry, "displayName")
	lookup.ShortName, _ = attributeValue(entry, "sAMAccountName")
	lookup.UserPrincipalName, _ = attributeValue(entry, "userPrincipalName")
	if mail, ok := attributeValue(entry, "mail"); ok {
		lookup.Mail = strings.TrimSpace(mail)
	}

	uac, _ := attributeValue(entry, "userAccountControl")
	lookup.Enabled = ParseAccountControl(uac)

	tflog.SubsystemDebug(ctx, Subsystem, "Resolved user", map[string]any{
		"operation": operation,
		"dn":        entry.DN,
		"enabled":   lookup.Enabled.String(),
	})

	return lookup, nil
}
