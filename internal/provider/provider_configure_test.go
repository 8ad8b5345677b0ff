package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/tfsdk"
	"github.com/hashicorp/terraform-plugin-go/tftypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var providerEnvVars = []string{
	"AD_DOMAIN", "AD_SERVER", "AD_USERNAME", "AD_PASSWORD",
	"AD_KERBEROS_REALM", "AD_KERBEROS_KEYTAB", "AD_KERBEROS_CONFIG", "AD_KERBEROS_CCACHE", "AD_KERBEROS_SPN",
	"AD_TRANSPORT", "AD_SKIP_TLS_VERIFY", "AD_TLS_CA_CERT_FILE", "AD_DISABLE_START_TLS",
	"AD_CONNECT_TIMEOUT", "AD_REQUEST_TIMEOUT", "AD_QUERY_RATE_LIMIT",
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range providerEnvVars {
		t.Setenv(name, "")
	}
}

// providerConfig builds a provider configuration in which every attribute not
// named in values is null.
func providerConfig(t *testing.T, p *ActiveDirectoryProvider, values map[string]tftypes.Value) tfsdk.Config {
	t.Helper()
	ctx := context.Background()

	schemaResp := &provider.SchemaResponse{}
	p.Schema(ctx, provider.SchemaRequest{}, schemaResp)
	require.False(t, schemaResp.Diagnostics.HasError())

	objectType := schemaResp.Schema.Type().TerraformType(ctx).(tftypes.Object)

	attrs := make(map[string]tftypes.Value, len(objectType.AttributeTypes))
	for name, typ := range objectType.AttributeTypes {
		if v, ok := values[name]; ok {
			attrs[name] = v
			continue
		}
		attrs[name] = tftypes.NewValue(typ, nil)
	}

	return tfsdk.Config{
		Schema: schemaResp.Schema,
		Raw:    tftypes.NewValue(objectType, attrs),
	}
}

// stubbedProvider records the configuration handed to discovery and probing.
type stubbedProvider struct {
	*ActiveDirectoryProvider

	located   *ldapclient.ConnectionConfig
	probed    string
	probes    int
	transport ldapclient.Transport
}

func newStubbedProvider(host string, locateErr error, transport ldapclient.Transport) *stubbedProvider {
	s := &stubbedProvider{
		ActiveDirectoryProvider: &ActiveDirectoryProvider{version: "test"},
		transport:               transport,
	}
	s.locate = func(_ context.Context, cfg *ldapclient.ConnectionConfig) (*ldapclient.ServerInfo, error) {
		s.located = cfg
		if locateErr != nil {
			return nil, locateErr
		}
		return &ldapclient.ServerInfo{Host: host, Source: "pdc"}, nil
	}
	s.probe = func(_ context.Context, _ *ldapclient.ConnectionConfig, server string) ldapclient.Transport {
		s.probes++
		s.probed = server
		return s.transport
	}
	return s
}

func (s *stubbedProvider) configure(t *testing.T, values map[string]tftypes.Value) *provider.ConfigureResponse {
	t.Helper()
	resp := &provider.ConfigureResponse{}
	s.Configure(context.Background(), provider.ConfigureRequest{
		Config: providerConfig(t, s.ActiveDirectoryProvider, values),
	}, resp)
	return resp
}

func TestConfigure_ProbesTransport(t *testing.T) {
	clearProviderEnv(t)
	p := newStubbedProvider("DC01.EXAMPLE.COM", nil, ldapclient.TransportInsecure)

	resp := p.configure(t, map[string]tftypes.Value{
		"domain":          tftypes.NewValue(tftypes.String, "example.com"),
		"username":        tftypes.NewValue(tftypes.String, "svc@example.com"),
		"password":        tftypes.NewValue(tftypes.String, "secret"),
		"connect_timeout": tftypes.NewValue(tftypes.Number, 9),
	})
	require.False(t, resp.Diagnostics.HasError(), "diagnostics: %v", resp.Diagnostics)

	require.NotNil(t, p.located)
	assert.Equal(t, "example.com", p.located.Domain)
	assert.Equal(t, 9*time.Second, p.located.Timeout)
	assert.Equal(t, 30*time.Second, p.located.RequestTimeout)
	assert.Equal(t, ldapclient.AuthMethodSimpleBind, p.located.GetAuthMethod())

	assert.Equal(t, 1, p.probes)
	assert.Equal(t, "DC01.EXAMPLE.COM", p.probed)

	data, ok := resp.DataSourceData.(*ProviderData)
	require.True(t, ok)
	assert.Equal(t, "DC01.EXAMPLE.COM", data.Server)
	assert.Equal(t, ldapclient.TransportInsecure, data.Transport)
	assert.NotNil(t, data.Opener)
	require.NotNil(t, data.Options)
	assert.Equal(t, float64(0), data.Options.QueryRateLimit)
}

func TestConfigure_ForcedTransportSkipsProbe(t *testing.T) {
	clearProviderEnv(t)
	p := newStubbedProvider("dc02.example.com", nil, ldapclient.TransportNone)

	resp := p.configure(t, map[string]tftypes.Value{
		"server":    tftypes.NewValue(tftypes.String, "dc02.example.com"),
		"transport": tftypes.NewValue(tftypes.String, "Secure"),
	})
	require.False(t, resp.Diagnostics.HasError(), "diagnostics: %v", resp.Diagnostics)

	assert.Equal(t, 0, p.probes)
	data := resp.DataSourceData.(*ProviderData)
	assert.Equal(t, ldapclient.TransportSecure, data.Transport)
	assert.Equal(t, ldapclient.AuthMethodKerberos, data.Config.GetAuthMethod(), "no credentials negotiates with Kerberos")
}

func TestConfigure_NoTransport(t *testing.T) {
	clearProviderEnv(t)
	p := newStubbedProvider("DC01.EXAMPLE.COM", nil, ldapclient.TransportNone)

	resp := p.configure(t, map[string]tftypes.Value{
		"domain": tftypes.NewValue(tftypes.String, "example.com"),
	})

	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Unable to Connect to Active Directory", resp.Diagnostics.Errors()[0].Summary())
	assert.Contains(t, resp.Diagnostics.Errors()[0].Detail(), "port 636")
	assert.Contains(t, resp.Diagnostics.Errors()[0].Detail(), "port 389")
	assert.Nil(t, resp.DataSourceData)
}

func TestConfigure_LocateFailure(t *testing.T) {
	clearProviderEnv(t)
	p := newStubbedProvider("", errors.New("no domain configured"), ldapclient.TransportSecure)

	resp := p.configure(t, nil)

	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Unable to Locate Domain Controller", resp.Diagnostics.Errors()[0].Summary())
	assert.Equal(t, 0, p.probes)
}

func TestConfigure_EnvironmentFallback(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("AD_SERVER", "dc03.example.com")
	t.Setenv("AD_TRANSPORT", "insecure")
	t.Setenv("AD_DISABLE_START_TLS", "true")
	t.Setenv("AD_SKIP_TLS_VERIFY", "true")
	t.Setenv("AD_REQUEST_TIMEOUT", "45")
	t.Setenv("AD_QUERY_RATE_LIMIT", "2.5")
	t.Setenv("AD_KERBEROS_CONFIG", "/tmp/krb5.conf")

	p := newStubbedProvider("dc03.example.com", nil, ldapclient.TransportNone)

	resp := p.configure(t, nil)
	require.False(t, resp.Diagnostics.HasError(), "diagnostics: %v", resp.Diagnostics)

	cfg := p.located
	require.NotNil(t, cfg)
	assert.Equal(t, "dc03.example.com", cfg.Server)
	assert.True(t, cfg.DisableStartTLS)
	assert.True(t, cfg.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "/tmp/krb5.conf", cfg.KerberosConfig)

	data := resp.DataSourceData.(*ProviderData)
	assert.Equal(t, ldapclient.TransportInsecure, data.Transport)
	assert.Equal(t, 2.5, data.Options.QueryRateLimit)
}

func TestConfigure_ConfigOverridesEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("AD_DOMAIN", "env.example")

	p := newStubbedProvider("DC01.EXAMPLE.COM", nil, ldapclient.TransportSecure)

	resp := p.configure(t, map[string]tftypes.Value{
		"domain": tftypes.NewValue(tftypes.String, "config.example"),
	})
	require.False(t, resp.Diagnostics.HasError())
	assert.Equal(t, "config.example", p.located.Domain)
	assert.Equal(t, "/etc/krb5.conf", p.located.KerberosConfig)
}

func TestConfigure_InvalidTransportFromEnvironment(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("AD_TRANSPORT", "starttls")

	p := newStubbedProvider("DC01.EXAMPLE.COM", nil, ldapclient.TransportSecure)

	resp := p.configure(t, nil)
	require.True(t, resp.Diagnostics.HasError())
	assert.Equal(t, "Invalid Transport", resp.Diagnostics.Errors()[0].Summary())
	assert.Nil(t, p.located)
}
