package ldap

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-ldap/ldap/v3"
)

// personUserFilter restricts a search to user accounts of people, excluding
// computer accounts and other user-class objects.
const personUserFilter = "(objectCategory=person)(objectClass=user)"

// NormalizeEmail removes every whitespace rune, non-breaking space included,
// and lower-cases the remainder. NormalizeEmail(NormalizeEmail(s)) == NormalizeEmail(s).
func NormalizeEmail(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(s)
}

// NormalizeShortName trims s and strips a NetBIOS DOMAIN\ prefix.
func NormalizeShortName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, `\`); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// EscapeFilterValue escapes s for use as an assertion value inside a search
// filter. Backslash, asterisk, parentheses and NUL are hex-escaped, so the
// result never contains an unescaped filter metacharacter.
func EscapeFilterValue(s string) string {
	return ldap.EscapeFilter(s)
}

// EmailFilter matches a person-category user whose mail, userPrincipalName or
// an SMTP proxy address equals email. email is expected to be normalized.
func EmailFilter(email string) string {
	e := EscapeFilterValue(email)
	return fmt.Sprintf("(&%s(|(mail=%s)(userPrincipalName=%s)(proxyAddresses=SMTP:%s)(proxyAddresses=smtp:%s)))",
		personUserFilter, e, e, e, e)
}

// ShortNameFilter matches a person-category user by sAMAccountName.
func ShortNameFilter(name string) string {
	return fmt.Sprintf("(&%s(sAMAccountName=%s))", personUserFilter, EscapeFilterValue(name))
}

// ValidateFilter reports whether filter compiles as an RFC 4515 search filter.
func ValidateFilter(filter string) error {
	if _, err := ldap.CompileFilter(filter); err != nil {
		return fmt.Errorf("invalid search filter %q: %w", filter, err)
	}
	return nil
}

// EmailDomain returns the lower-cased label between the first '@' in email and
// the next '@', if any. It returns "" when email has no '@'.
func EmailDomain(email string) string {
	_, rest, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	domain, _, _ := strings.Cut(rest, "@")
	return strings.ToLower(strings.TrimSpace(domain))
}
