package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// srvResolver is the SRV lookup half of *net.Resolver.
type srvResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// Locator finds the domain controller holding the PDC emulator role.
type Locator struct {
	resolver     srvResolver
	defaultRealm func(path string) (string, error)
}

// NewLocator creates a locator backed by the system resolver.
func NewLocator() *Locator {
	return &Locator{
		resolver:     net.DefaultResolver,
		defaultRealm: DefaultRealm,
	}
}

// LocateServer locates a directory server with the system resolver.
func LocateServer(ctx context.Context, cfg *ConnectionConfig) (*ServerInfo, error) {
	return NewLocator().Locate(ctx, cfg)
}

// Locate returns the configured server if set. Otherwise it resolves the
// domain (configured, or the Kerberos default realm) to its PDC role holder
// via _ldap._tcp.pdc._msdcs.<domain>, falling back to the domain name itself.
func (l *Locator) Locate(ctx context.Context, cfg *ConnectionConfig) (*ServerInfo, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	if server := strings.TrimSpace(cfg.Server); server != "" {
		return &ServerInfo{Host: server, Source: "config"}, nil
	}

	domain := strings.ToLower(strings.TrimSpace(cfg.Domain))
	if domain == "" && l.defaultRealm != nil {
		if realm, err := l.defaultRealm(cfg.KerberosConfig); err == nil {
			domain = strings.ToLower(realm)
			tflog.SubsystemDebug(ctx, Subsystem, "Using Kerberos default realm as domain", map[string]any{
				"domain": domain,
			})
		}
	}
	if domain == "" {
		return nil, fmt.Errorf("no domain configured and no Kerberos default realm available; set 'domain' or 'server'")
	}

	start := time.Now()
	service := "_ldap._tcp.pdc._msdcs." + domain
	_, records, err := l.resolver.LookupSRV(ctx, "", "", service)
	if err != nil || len(records) == 0 {
		fields := map[string]any{
			"service":     service,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		tflog.SubsystemDebug(ctx, Subsystem, "PDC lookup failed, falling back to domain name", fields)
		return &ServerInfo{Host: strings.ToUpper(domain), Source: "fallback"}, nil
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	best := records[0]
	info := &ServerInfo{
		Host:     strings.ToUpper(strings.TrimSuffix(best.Target, ".")),
		Priority: int(best.Priority),
		Weight:   int(best.Weight),
		Source:   "pdc",
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Located PDC role holder", map[string]any{
		"server":      info.Host,
		"domain":      domain,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return info, nil
}
