package ldap

import (
	"context"
	"slices"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// InternalDomainSet is the set of lower-cased DNS and UPN-suffix domains that
// belong to the forest. It is read-only once built.
type InternalDomainSet struct {
	current string
	domains map[string]struct{}
}

// NewInternalDomainSet builds a set from domains, lower-casing each. The first
// non-empty entry is reported as the current domain.
func NewInternalDomainSet(domains ...string) InternalDomainSet {
	set := InternalDomainSet{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if set.current == "" {
			set.current = d
		}
		set.domains[d] = struct{}{}
	}
	return set
}

// Contains reports whether domain is internal. Matching is case-insensitive
// and an empty domain is never internal.
func (s InternalDomainSet) Contains(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false
	}
	_, ok := s.domains[domain]
	return ok
}

// Sorted returns the domains in lexical order.
func (s InternalDomainSet) Sorted() []string {
	out := make([]string, 0, len(s.domains))
	for d := range s.domains {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of domains in the set.
func (s InternalDomainSet) Len() int {
	return len(s.domains)
}

// degradedDomainSet knows the current domain but treats nothing as internal.
func degradedDomainSet(current string) InternalDomainSet {
	return InternalDomainSet{
		current: strings.ToLower(strings.TrimSpace(current)),
		domains: map[string]struct{}{},
	}
}

// Current returns the DNS name of the domain the session is bound to.
func (s InternalDomainSet) Current() string {
	return s.current
}

// DNToDNS maps the DC= components of dn, in order, to a dotted DNS name.
// "OU=Sales,DC=corp,DC=example,DC=com" becomes "corp.example.com".
func DNToDNS(dn string) string {
	var labels []string

	if parsed, err := ldap.ParseDN(dn); err == nil {
		for _, rdn := range parsed.RDNs {
			for _, attr := range rdn.Attributes {
				if strings.EqualFold(attr.Type, "DC") && attr.Value != "" {
					labels = append(labels, attr.Value)
				}
			}
		}
	} else {
		for _, part := range strings.Split(dn, ",") {
			part = strings.TrimSpace(part)
			if len(part) > 3 && strings.EqualFold(part[:3], "DC=") {
				labels = append(labels, part[3:])
			}
		}
	}

	return strings.Join(labels, ".")
}

// DiscoverInternalDomains collects the forest's domain DNS roots and UPN
// suffixes. When the configuration partition cannot be found the set is empty,
// so no domain is internal, and no error is returned.
func DiscoverInternalDomains(ctx context.Context, dir Directory) (InternalDomainSet, error) {
	found := []string{DNToDNS(dir.BaseDN())}

	configDN := dir.ConfigurationDN()
	if configDN == "" {
		var err error
		configDN, err = readConfigurationDN(ctx, dir)
		if err != nil {
			return InternalDomainSet{}, err
		}
	}

	if configDN == "" {
		tflog.SubsystemWarn(ctx, Subsystem, "Configuration partition not found, no domain is internal", map[string]any{
			"base_dn": dir.BaseDN(),
		})
		return degradedDomainSet(found[0]), nil
	}

	partitionsDN := "CN=Partitions," + configDN

	crossRefs, err := dir.Search(ctx, &SearchRequest{
		BaseDN:     partitionsDN,
		Scope:      ScopeSingleLevel,
		Filter:     "(objectClass=crossRef)",
		Attributes: []string{"dnsRoot", "nCName"},
	})
	if IsNotFoundError(err) {
		tflog.SubsystemWarn(ctx, Subsystem, "Partitions container not found, no domain is internal", map[string]any{
			"partitions_dn": partitionsDN,
		})
		return degradedDomainSet(found[0]), nil
	}
	if err != nil {
		return InternalDomainSet{}, WrapError("discover_domains", err)
	}

	for _, entry := range crossRefs.Entries {
		ncName, _ := attributeValue(entry, "nCName")
		dnsRoot, _ := attributeValue(entry, "dnsRoot")
		if len(ncName) >= 3 && strings.EqualFold(ncName[:3], "DC=") && strings.TrimSpace(dnsRoot) != "" {
			found = append(found, dnsRoot)
		}
	}

	partitions, err := dir.Search(ctx, &SearchRequest{
		BaseDN:     partitionsDN,
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"uPNSuffixes"},
	})
	if err != nil {
		return InternalDomainSet{}, WrapError("discover_upn_suffixes", err)
	}

	if len(partitions.Entries) > 0 {
		found = append(found, attributeValues(partitions.Entries[0], "uPNSuffixes")...)
	}

	set := NewInternalDomainSet(found...)
	tflog.SubsystemInfo(ctx, Subsystem, "Discovered internal domains", map[string]any{
		"count":   set.Len(),
		"domains": set.Sorted(),
	})
	return set, nil
}

// readConfigurationDN reads configurationNamingContext from the root DSE.
func readConfigurationDN(ctx context.Context, dir Directory) (string, error) {
	result, err := dir.Search(ctx, &SearchRequest{
		BaseDN:     "",
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"configurationNamingContext"},
	})
	if err != nil {
		return "", WrapError("read_root_dse", err)
	}
	if len(result.Entries) == 0 {
		return "", nil
	}

	value, _ := attributeValue(result.Entries[0], "configurationNamingContext")
	return strings.TrimSpace(value), nil
}
