package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-framework-validators/float64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/int64validator"
	"github.com/hashicorp/terraform-plugin-framework-validators/providervalidator"
	"github.com/hashicorp/terraform-plugin-framework-validators/stringvalidator"
	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/function"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adstatus/internal/batch"
	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
	"github.com/isometry/terraform-provider-adstatus/internal/provider/validators"
)

// Ensure ActiveDirectoryProvider satisfies various provider interfaces.
var _ provider.Provider = &ActiveDirectoryProvider{}
var _ provider.ProviderWithFunctions = &ActiveDirectoryProvider{}
var _ provider.ProviderWithConfigValidators = &ActiveDirectoryProvider{}

// Transport modes accepted by the transport attribute.
const (
	transportAuto     = "auto"
	transportSecure   = "secure"
	transportInsecure = "insecure"
)

// ActiveDirectoryProvider defines the provider implementation.
type ActiveDirectoryProvider struct {
	// version is set to the provider version on release, "dev" when the
	// provider is built and ran locally, and "test" when running acceptance
	// testing.
	version string

	// Overridable for unit tests.
	locate func(ctx context.Context, cfg *ldapclient.ConnectionConfig) (*ldapclient.ServerInfo, error)
	probe  func(ctx context.Context, cfg *ldapclient.ConnectionConfig, server string) ldapclient.Transport
}

// ActiveDirectoryProviderModel describes the provider data model.
type ActiveDirectoryProviderModel struct {
	// Server selection
	Domain types.String `tfsdk:"domain"`
	Server types.String `tfsdk:"server"`

	// Authentication settings
	Username types.String `tfsdk:"username"`
	Password types.String `tfsdk:"password"`

	// Kerberos settings (optional)
	KerberosRealm  types.String `tfsdk:"kerberos_realm"`
	KerberosKeytab types.String `tfsdk:"kerberos_keytab"`
	KerberosConfig types.String `tfsdk:"kerberos_config"`
	KerberosCCache types.String `tfsdk:"kerberos_ccache"`
	KerberosSPN    types.String `tfsdk:"kerberos_spn"`

	// Transport settings
	Transport       types.String `tfsdk:"transport"`
	SkipTLSVerify   types.Bool   `tfsdk:"skip_tls_verify"`
	TLSCACertFile   types.String `tfsdk:"tls_ca_cert_file"`
	DisableStartTLS types.Bool   `tfsdk:"disable_start_tls"`

	// Timeouts and load
	ConnectTimeout types.Int64   `tfsdk:"connect_timeout"`
	RequestTimeout types.Int64   `tfsdk:"request_timeout"`
	QueryRateLimit types.Float64 `tfsdk:"query_rate_limit"`
}

// ProviderData is handed to every data source.
type ProviderData struct {
	Config    *ldapclient.ConnectionConfig
	Server    string
	Transport ldapclient.Transport
	Options   *batch.Options

	// Opener opens one directory session per data source read.
	Opener batch.Opener
}

// NewProviderData builds ProviderData whose Opener dials server over transport.
func NewProviderData(cfg *ldapclient.ConnectionConfig, server string, transport ldapclient.Transport, opts *batch.Options) *ProviderData {
	return &ProviderData{
		Config:    cfg,
		Server:    server,
		Transport: transport,
		Options:   opts,
		Opener: func(ctx context.Context) (batch.Session, error) {
			session, err := ldapclient.Open(ctx, cfg, server, transport)
			if err != nil {
				return nil, err
			}
			return session, nil
		},
	}
}

func (p *ActiveDirectoryProvider) Metadata(ctx context.Context, req provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "ad"
	resp.Version = p.version
}

func (p *ActiveDirectoryProvider) Schema(ctx context.Context, req provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "The Active Directory user status provider classifies lists of users against a domain controller " +
			"as enabled, disabled, not found or external. It locates the PDC role holder through DNS, negotiates LDAPS or LDAP, " +
			"and binds with a password or Kerberos.",
		Attributes: map[string]schema.Attribute{
			"domain": schema.StringAttribute{
				MarkdownDescription: "Active Directory DNS domain (e.g., `example.com`) used to locate the PDC role holder via " +
					"`_ldap._tcp.pdc._msdcs.<domain>`. Defaults to the Kerberos default realm. " +
					"Can be set via the `AD_DOMAIN` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},
			"server": schema.StringAttribute{
				MarkdownDescription: "Domain controller host name. Skips DC discovery when set. " +
					"Can be set via the `AD_SERVER` environment variable.",
				Optional: true,
				Validators: []validator.String{
					stringvalidator.LengthAtLeast(1),
				},
			},

			// Authentication settings
			"username": schema.StringAttribute{
				MarkdownDescription: "Username for simple bind. Supports DN, UPN, or SAM account name formats. " +
					"When neither a username nor a Kerberos realm is configured, the provider binds with the current " +
					"Kerberos credential cache. Can be set via the `AD_USERNAME` environment variable.",
				Optional: true,
			},
			"password": schema.StringAttribute{
				MarkdownDescription: "Password for simple bind or Kerberos password authentication. " +
					"Can be set via the `AD_PASSWORD` environment variable.",
				Optional:  true,
				Sensitive: true,
			},

			// Kerberos settings
			"kerberos_realm": schema.StringAttribute{
				MarkdownDescription: "Kerberos realm for GSSAPI authentication (e.g., `EXAMPLE.COM`). " +
					"Can be set via the `AD_KERBEROS_REALM` environment variable.",
				Optional: true,
			},
			"kerberos_keytab": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos keytab file for authentication. " +
					"Can be set via the `AD_KERBEROS_KEYTAB` environment variable.",
				Optional: true,
			},
			"kerberos_config": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos configuration file. Defaults to `/etc/krb5.conf`. " +
					"Can be set via the `AD_KERBEROS_CONFIG` environment variable.",
				Optional: true,
			},
			"kerberos_ccache": schema.StringAttribute{
				MarkdownDescription: "Path to Kerberos credential cache file for authentication. " +
					"Can be set via the `AD_KERBEROS_CCACHE` environment variable.",
				Optional: true,
			},
			"kerberos_spn": schema.StringAttribute{
				MarkdownDescription: "Override Service Principal Name (SPN) for Kerberos authentication. " +
					"Format: `ldap/<hostname>` (e.g., `ldap/dc1.example.com`). " +
					"Can be set via the `AD_KERBEROS_SPN` environment variable.",
				Optional: true,
			},

			// Transport settings
			"transport": schema.StringAttribute{
				MarkdownDescription: "Transport selection: `auto` probes LDAPS then LDAP, `secure` forces LDAPS and " +
					"`insecure` forces LDAP. Defaults to `auto`. Can be set via the `AD_TRANSPORT` environment variable.",
				Optional: true,
				Validators: []validator.String{
					validators.CaseInsensitiveOneOf(transportAuto, transportSecure, transportInsecure),
				},
			},
			"skip_tls_verify": schema.BoolAttribute{
				MarkdownDescription: "Skip TLS certificate verification. Not recommended for production. Defaults to `false`. " +
					"Can be set via the `AD_SKIP_TLS_VERIFY` environment variable.",
				Optional: true,
			},
			"tls_ca_cert_file": schema.StringAttribute{
				MarkdownDescription: "Path to custom CA certificate file for TLS verification. " +
					"Can be set via the `AD_TLS_CA_CERT_FILE` environment variable.",
				Optional: true,
			},
			"disable_start_tls": schema.BoolAttribute{
				MarkdownDescription: "Do not attempt StartTLS on the insecure transport and allow simple binds over plaintext. " +
					"Without it, a simple bind is refused when the server declines StartTLS. Defaults to `false`. " +
					"Can be set via the `AD_DISABLE_START_TLS` environment variable.",
				Optional: true,
			},

			// Timeouts and load
			"connect_timeout": schema.Int64Attribute{
				MarkdownDescription: "Probe, dial and bind timeout in seconds. Defaults to `5`. " +
					"Can be set via the `AD_CONNECT_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"request_timeout": schema.Int64Attribute{
				MarkdownDescription: "Per-query timeout in seconds. Defaults to `30`. " +
					"Can be set via the `AD_REQUEST_TIMEOUT` environment variable.",
				Optional: true,
				Validators: []validator.Int64{
					int64validator.AtLeast(1),
				},
			},
			"query_rate_limit": schema.Float64Attribute{
				MarkdownDescription: "Maximum number of users looked up per second. `0` disables the limit. Defaults to `0`. " +
					"Can be set via the `AD_QUERY_RATE_LIMIT` environment variable.",
				Optional: true,
				Validators: []validator.Float64{
					float64validator.AtLeast(0),
				},
			},
		},
	}
}

// ConfigValidators implements provider.ProviderWithConfigValidators.
func (p *ActiveDirectoryProvider) ConfigValidators(ctx context.Context) []provider.ConfigValidator {
	return []provider.ConfigValidator{
		// An explicit server makes domain discovery pointless
		providervalidator.Conflicting(
			path.MatchRoot("domain"),
			path.MatchRoot("server"),
		),
		// A credential cache and a keytab are alternative Kerberos credentials
		providervalidator.Conflicting(
			path.MatchRoot("kerberos_ccache"),
			path.MatchRoot("kerberos_keytab"),
		),
	}
}

func (p *ActiveDirectoryProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var data ActiveDirectoryProviderModel

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	// Configure logging subsystems and set up provider context
	ctx = p.configureLogging(ctx)

	tflog.Info(ctx, "Configuring Active Directory provider", map[string]any{
		"version": p.version,
	})

	config := p.buildLDAPConfig(&data)

	opts, err := batch.DefaultOptions()
	if err != nil {
		resp.Diagnostics.AddError("Unable to Initialise Batch Options", err.Error())
		return
	}
	opts.QueryRateLimit = p.getFloat64Value(data.QueryRateLimit, "AD_QUERY_RATE_LIMIT", opts.QueryRateLimit)

	mode := strings.ToLower(strings.TrimSpace(p.getStringValue(data.Transport, "AD_TRANSPORT")))
	if mode == "" {
		mode = transportAuto
	}
	if mode != transportAuto && mode != transportSecure && mode != transportInsecure {
		resp.Diagnostics.AddAttributeError(
			path.Root("transport"),
			"Invalid Transport",
			fmt.Sprintf("The transport %q is not valid. Must be one of: %s, %s, %s.", mode, transportAuto, transportSecure, transportInsecure),
		)
		return
	}

	tflog.Debug(ctx, "Resolved provider configuration", ldapclient.SanitizeFields(map[string]any{
		"domain":      config.Domain,
		"server":      config.Server,
		"username":    config.Username,
		"password":    config.Password,
		"auth_method": config.GetAuthMethod().String(),
		"transport":   mode,
	}))

	// Locate the domain controller
	start := time.Now()
	server, err := p.locator()(ctx, config)
	if err != nil {
		tflog.Error(ctx, "Domain controller discovery failed", map[string]any{
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		resp.Diagnostics.AddError(
			"Unable to Locate Domain Controller",
			"The provider could not determine which domain controller to use. "+
				"Set the 'server' or 'domain' attribute, or the AD_SERVER or AD_DOMAIN environment variable.\n\n"+
				"Discovery Error: "+err.Error(),
		)
		return
	}

	tflog.Info(ctx, "Domain controller selected", map[string]any{
		"server":      server.Host,
		"source":      server.Source,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	// Negotiate the transport
	var transport ldapclient.Transport
	if mode == transportAuto {
		start = time.Now()
		transport = p.prober()(ctx, config, server.Host)
		tflog.Info(ctx, "Transport probe completed", map[string]any{
			"server":      server.Host,
			"transport":   transport.String(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	} else {
		transport = ldapclient.TransportFromString(mode)
		tflog.Debug(ctx, "Transport forced by configuration", map[string]any{
			"transport": transport.String(),
		})
	}

	if transport == ldapclient.TransportNone {
		resp.Diagnostics.AddError(
			"Unable to Connect to Active Directory",
			fmt.Sprintf("The provider could not bind to %s over LDAPS (port %d) or LDAP (port %d). "+
				"Please verify the server address, firewall rules and credentials.",
				server.Host, config.SecurePort, config.InsecurePort),
		)
		return
	}

	tflog.Info(ctx, "Active Directory provider configured successfully")

	providerData := NewProviderData(config, server.Host, transport, opts)

	// Make provider data available to data sources
	resp.DataSourceData = providerData
}

// configureLogging sets up logging configuration based on environment variables.
func (p *ActiveDirectoryProvider) configureLogging(ctx context.Context) context.Context {
	ctx = initializeLogging(ctx)

	// Add persistent fields for all logs
	ctx = tflog.SetField(ctx, "provider", "ad")
	ctx = tflog.SetField(ctx, "provider_version", p.version)
	ctx = tflog.MaskFieldValuesWithFieldKeys(ctx, "password")

	tflog.Debug(ctx, "Active Directory provider logging configured")

	return ctx
}

// buildLDAPConfig constructs the connection configuration from provider config and environment variables.
func (p *ActiveDirectoryProvider) buildLDAPConfig(data *ActiveDirectoryProviderModel) *ldapclient.ConnectionConfig {
	config := ldapclient.DefaultConfig()

	config.Domain = p.getStringValue(data.Domain, "AD_DOMAIN")
	config.Server = p.getStringValue(data.Server, "AD_SERVER")

	config.Username = p.getStringValue(data.Username, "AD_USERNAME")
	config.Password = p.getStringValue(data.Password, "AD_PASSWORD")
	config.KerberosRealm = p.getStringValue(data.KerberosRealm, "AD_KERBEROS_REALM")
	config.KerberosKeytab = p.getStringValue(data.KerberosKeytab, "AD_KERBEROS_KEYTAB")
	config.KerberosCCache = p.getStringValue(data.KerberosCCache, "AD_KERBEROS_CCACHE")
	config.KerberosSPN = p.getStringValue(data.KerberosSPN, "AD_KERBEROS_SPN")
	if kerberosConfig := p.getStringValue(data.KerberosConfig, "AD_KERBEROS_CONFIG"); kerberosConfig != "" {
		config.KerberosConfig = kerberosConfig
	}

	if skipTLSVerify := p.getBoolValue(data.SkipTLSVerify, "AD_SKIP_TLS_VERIFY", false); skipTLSVerify {
		if config.TLSConfig == nil {
			config.TLSConfig = &tls.Config{}
		}
		config.TLSConfig.InsecureSkipVerify = true
	}
	config.TLSCACertFile = p.getStringValue(data.TLSCACertFile, "AD_TLS_CA_CERT_FILE")
	config.DisableStartTLS = p.getBoolValue(data.DisableStartTLS, "AD_DISABLE_START_TLS", false)

	if connectTimeout := p.getInt64Value(data.ConnectTimeout, "AD_CONNECT_TIMEOUT", 0); connectTimeout > 0 {
		config.Timeout = time.Duration(connectTimeout) * time.Second
	}
	if requestTimeout := p.getInt64Value(data.RequestTimeout, "AD_REQUEST_TIMEOUT", 0); requestTimeout > 0 {
		config.RequestTimeout = time.Duration(requestTimeout) * time.Second
	}

	return config
}

func (p *ActiveDirectoryProvider) locator() func(context.Context, *ldapclient.ConnectionConfig) (*ldapclient.ServerInfo, error) {
	if p.locate != nil {
		return p.locate
	}
	return ldapclient.LocateServer
}

func (p *ActiveDirectoryProvider) prober() func(context.Context, *ldapclient.ConnectionConfig, string) ldapclient.Transport {
	if p.probe != nil {
		return p.probe
	}
	return ldapclient.Probe
}

// Helper functions for configuration value resolution

func (p *ActiveDirectoryProvider) getStringValue(configValue types.String, envVar string) string {
	if !configValue.IsNull() && !configValue.IsUnknown() && configValue.ValueString() != "" {
		return configValue.ValueString()
	}
	return os.Getenv(envVar)
}

func (p *ActiveDirectoryProvider) getBoolValue(configValue types.Bool, envVar string, defaultValue bool) bool {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueBool()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ActiveDirectoryProvider) getInt64Value(configValue types.Int64, envVar string, defaultValue int64) int64 {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueInt64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ActiveDirectoryProvider) getFloat64Value(configValue types.Float64, envVar string, defaultValue float64) float64 {
	if !configValue.IsNull() && !configValue.IsUnknown() {
		return configValue.ValueFloat64()
	}
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseFloat(envValue, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (p *ActiveDirectoryProvider) Resources(ctx context.Context) []func() resource.Resource {
	return nil
}

func (p *ActiveDirectoryProvider) DataSources(ctx context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewUserStatusDataSource,
		NewInternalDomainsDataSource,
		NewDirectoryDataSource,
	}
}

func (p *ActiveDirectoryProvider) Functions(ctx context.Context) []func() function.Function {
	return []func() function.Function{
		NewNormalizeEmailFunction,
		NewEmailDomainFunction,
	}
}

func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &ActiveDirectoryProvider{
			version: version,
		}
	}
}

// providerDataFrom extracts ProviderData in a data source Configure.
func providerDataFrom(providerData any, diags *diag.Diagnostics) *ProviderData {
	data, ok := providerData.(*ProviderData)
	if !ok {
		diags.AddError(
			"Unexpected Data Source Configure Type",
			fmt.Sprintf("Expected *provider.ProviderData, got: %T. Please report this issue to the provider developers.", providerData),
		)
		return nil
	}
	return data
}
