package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var _ datasource.DataSource = &DirectoryDataSource{}
var _ datasource.DataSourceWithConfigure = &DirectoryDataSource{}

func NewDirectoryDataSource() datasource.DataSource {
	return &DirectoryDataSource{}
}

// DirectoryDataSource reports the server and naming contexts the provider uses.
type DirectoryDataSource struct {
	data *ProviderData
}

// DirectoryDataSourceModel describes the data source data model.
type DirectoryDataSourceModel struct {
	ID              types.String `tfsdk:"id"`
	Server          types.String `tfsdk:"server"`
	Transport       types.String `tfsdk:"transport"`
	Port            types.Int64  `tfsdk:"port"`
	AuthMethod      types.String `tfsdk:"auth_method"`
	BaseDN          types.String `tfsdk:"base_dn"`
	ConfigurationDN types.String `tfsdk:"configuration_dn"`
}

func (d *DirectoryDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_directory"
}

func (d *DirectoryDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Reports the domain controller and transport negotiated by the provider, and the naming contexts " +
			"read from its root DSE.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `server`.",
				Computed:            true,
			},
			"server": schema.StringAttribute{
				MarkdownDescription: "Domain controller host name.",
				Computed:            true,
			},
			"transport": schema.StringAttribute{
				MarkdownDescription: "Negotiated transport: `secure` (LDAPS) or `insecure` (LDAP).",
				Computed:            true,
			},
			"port": schema.Int64Attribute{
				MarkdownDescription: "TCP port of the negotiated transport.",
				Computed:            true,
			},
			"auth_method": schema.StringAttribute{
				MarkdownDescription: "Bind method: `simple` or `kerberos`.",
				Computed:            true,
			},
			"base_dn": schema.StringAttribute{
				MarkdownDescription: "Default naming context, used as the search base for user lookups. " +
					"Example: `DC=example,DC=com`",
				Computed: true,
			},
			"configuration_dn": schema.StringAttribute{
				MarkdownDescription: "Configuration naming context. Null when the server does not publish one.",
				Computed:            true,
			},
		},
	}
}

func (d *DirectoryDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *DirectoryDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data DirectoryDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ad_directory", "read", nil)
	defer func() {
		var err error
		if resp.Diagnostics.HasError() {
			for _, diag := range resp.Diagnostics.Errors() {
				err = fmt.Errorf("%s: %s", diag.Summary(), diag.Detail())
				break
			}
		}
		logCompletion(err)
	}()

	resp.Diagnostics.Append(req.Config.Get(ctx, &data)...)
	if resp.Diagnostics.HasError() {
		return
	}

	if d.data == nil || d.data.Opener == nil {
		resp.Diagnostics.AddError(
			"Provider Not Configured",
			"The provider has not been configured with a directory connection. Please report this issue to the provider developers.",
		)
		return
	}

	session, err := d.data.Opener(ctx)
	if err != nil {
		resp.Diagnostics.AddError(
			"Unable to Connect to Active Directory",
			fmt.Sprintf("Could not open a directory session: %s", err.Error()),
		)
		return
	}
	defer session.Close()

	data.ID = types.StringValue(d.data.Server)
	data.Server = types.StringValue(d.data.Server)
	data.Transport = types.StringValue(d.data.Transport.String())
	data.BaseDN = types.StringValue(session.BaseDN())
	data.ConfigurationDN = stringOrNull(session.ConfigurationDN())

	if d.data.Config != nil {
		data.Port = types.Int64Value(int64(d.data.Transport.Port(d.data.Config)))
		data.AuthMethod = types.StringValue(d.data.Config.GetAuthMethod().String())
	} else {
		data.Port = types.Int64Null()
		data.AuthMethod = types.StringNull()
	}

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
