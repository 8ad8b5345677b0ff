package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
)

// gssapiBinder is the part of *ldap.Conn used for a negotiated bind.
type gssapiBinder interface {
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
}

// kerberosBind authenticates conn as the ambient Kerberos identity, or as the
// configured principal when a keytab or password is supplied.
func kerberosBind(ctx context.Context, conn gssapiBinder, cfg *ConnectionConfig, host string) error {
	client, err := createGSSAPIClient(ctx, cfg)
	if err != nil {
		LogKerberosEvent(ctx, "client_creation_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cfg, host)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// createGSSAPIClient picks credentials in order: explicit credential cache,
// default credential cache, keytab, password.
func createGSSAPIClient(ctx context.Context, cfg *ConnectionConfig) (ldap.GSSAPIClient, error) {
	krb5confPath := cfg.KerberosConfig
	if krb5confPath == "" {
		krb5confPath = "/etc/krb5.conf"
	}

	if !fileExists(krb5confPath) {
		return nil, fmt.Errorf("Kerberos configuration file not found at %s; "+
			"create it or set 'kerberos_config'. Example minimal configuration:\n%s",
			krb5confPath, exampleKrb5Conf(cfg.KerberosRealm))
	}

	username, realm := splitPrincipal(cfg.Username, cfg.KerberosRealm)
	if realm == "" {
		if r, err := DefaultRealm(krb5confPath); err == nil {
			realm = r
		}
	}

	if cfg.KerberosCCache != "" && fileExists(cfg.KerberosCCache) {
		LogKerberosEvent(ctx, "ccache_loaded", map[string]any{"path": cfg.KerberosCCache})
		return gssapi.NewClientFromCCache(cfg.KerberosCCache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if ccache := defaultCCachePath(); fileExists(ccache) {
		LogKerberosEvent(ctx, "ccache_loaded", map[string]any{"path": ccache, "default": true})
		return gssapi.NewClientFromCCache(ccache, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if username == "" || realm == "" {
		return nil, fmt.Errorf("no Kerberos credential cache found and no principal configured")
	}

	keytab := cfg.KerberosKeytab
	if keytab == "" {
		keytab = defaultKeytabPath()
	}
	if fileExists(keytab) {
		LogKerberosEvent(ctx, "keytab_loaded", map[string]any{"path": keytab, "principal": username + "@" + realm})
		return gssapi.NewClientWithKeytab(username, realm, keytab, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	if cfg.Password != "" {
		LogKerberosEvent(ctx, "password_login", map[string]any{"principal": username + "@" + realm})
		return gssapi.NewClientWithPassword(username, realm, cfg.Password, krb5confPath, krb5client.DisablePAFXFAST(true))
	}

	return nil, fmt.Errorf("no suitable credentials found for Kerberos authentication")
}

// DefaultRealm returns the default_realm of the Kerberos configuration at path.
func DefaultRealm(path string) (string, error) {
	if path == "" {
		path = "/etc/krb5.conf"
	}

	conf, err := krb5config.Load(path)
	if err != nil {
		return "", fmt.Errorf("failed to load Kerberos configuration %s: %w", path, err)
	}

	realm := strings.TrimSpace(conf.LibDefaults.DefaultRealm)
	if realm == "" {
		return "", fmt.Errorf("no default_realm in %s", path)
	}
	return realm, nil
}

// splitPrincipal separates user@REALM. An explicit realm wins over one
// embedded in the username.
func splitPrincipal(username, realm string) (string, string) {
	if i := strings.LastIndex(username, "@"); i > 0 {
		if realm == "" {
			realm = username[i+1:]
		}
		username = username[:i]
	}
	return username, strings.ToUpper(realm)
}

// buildServicePrincipal returns ldap/<host> unless an SPN override is set.
func buildServicePrincipal(cfg *ConnectionConfig, host string) (string, error) {
	if cfg != nil && cfg.KerberosSPN != "" {
		return cfg.KerberosSPN, nil
	}

	if colon := strings.Index(host, ":"); colon != -1 {
		host = host[:colon]
	}
	if host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "ldap/" + strings.ToLower(host), nil
}

func defaultCCachePath() string {
	if ccache := os.Getenv("KRB5CCNAME"); ccache != "" {
		return strings.TrimPrefix(ccache, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

func defaultKeytabPath() string {
	if keytab := os.Getenv("KRB5_KTNAME"); keytab != "" {
		return strings.TrimPrefix(keytab, "FILE:")
	}
	return "/etc/krb5.keytab"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func exampleKrb5Conf(realm string) string {
	if realm == "" {
		realm = "EXAMPLE.COM"
	}
	realm = strings.ToUpper(realm)
	domain := strings.ToLower(realm)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true

[domain_realm]
    .%s = %s
    %s = %s`, realm, domain, realm, domain, realm)
}
