package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var _ datasource.DataSource = &InternalDomainsDataSource{}
var _ datasource.DataSourceWithConfigure = &InternalDomainsDataSource{}

func NewInternalDomainsDataSource() datasource.DataSource {
	return &InternalDomainsDataSource{}
}

// InternalDomainsDataSource lists the forest's DNS domains and UPN suffixes.
type InternalDomainsDataSource struct {
	data *ProviderData
}

// InternalDomainsDataSourceModel describes the data source data model.
type InternalDomainsDataSourceModel struct {
	ID            types.String `tfsdk:"id"`
	CurrentDomain types.String `tfsdk:"current_domain"`
	Domains       types.Set    `tfsdk:"domains"`
}

func (d *InternalDomainsDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_internal_domains"
}

func (d *InternalDomainsDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Lists the email domains treated as internal: the DNS root of every domain in the forest plus the " +
			"forest's UPN suffixes, all lower-cased. When the configuration partition cannot be read the set is empty.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Same as `current_domain`.",
				Computed:            true,
			},
			"current_domain": schema.StringAttribute{
				MarkdownDescription: "DNS name of the domain the provider is bound to.",
				Computed:            true,
			},
			"domains": schema.SetAttribute{
				MarkdownDescription: "Internal domains.",
				ElementType:         types.StringType,
				Computed:            true,
			},
		},
	}
}

func (d *InternalDomainsDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}

	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *InternalDomainsDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data InternalDomainsDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ad_internal_domains", "read", nil)
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

	domains, err := ldapclient.DiscoverInternalDomains(ctx, session)
	if err != nil {
		resp.Diagnostics.AddError(
			"Error Discovering Internal Domains",
			fmt.Sprintf("Could not read the forest partitions: %s", err.Error()),
		)
		return
	}

	tflog.Debug(ctx, "Read internal domains", map[string]any{
		"current_domain": domains.Current(),
		"count":          domains.Len(),
	})

	set, diags := types.SetValueFrom(ctx, types.StringType, domains.Sorted())
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}

	data.ID = types.StringValue(domains.Current())
	data.CurrentDomain = types.StringValue(domains.Current())
	data.Domains = set

	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}
