package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adstatus/internal/batch"
	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
	"github.com/isometry/terraform-provider-adstatus/internal/provider/validators"
)

// Ensure provider defined types fully satisfy framework interfaces.
var _ datasource.DataSource = &UserStatusDataSource{}
var _ datasource.DataSourceWithConfigure = &UserStatusDataSource{}

func NewUserStatusDataSource() datasource.DataSource {
	return &UserStatusDataSource{}
}

// UserStatusDataSource classifies a list of users against the directory.
type UserStatusDataSource struct {
	data *ProviderData
}

// UserStatusDataSourceModel describes the data source data model.
type UserStatusDataSourceModel struct {
	ID       types.String        `tfsdk:"id"`
	Users    []UserInputModel    `tfsdk:"users"`
	Enabled  []ResolvedUserModel `tfsdk:"enabled"`
	Disabled []ResolvedUserModel `tfsdk:"disabled"`
	NotFound []ResolvedUserModel `tfsdk:"not_found"`
	External []ResolvedUserModel `tfsdk:"external"`
	Total    types.Int64         `tfsdk:"total"`
}

// UserInputModel is one entry of the users argument.
type UserInputModel struct {
	SAMAccountName types.String `tfsdk:"sam_account_name"`
	DisplayName    types.String `tfsdk:"display_name"`
	Email          types.String `tfsdk:"email"`
}

// ResolvedUserModel is one classified user.
type ResolvedUserModel struct {
	SAMAccountName    types.String `tfsdk:"sam_account_name"`
	DisplayName       types.String `tfsdk:"display_name"`
	Email             types.String `tfsdk:"email"`
	Enabled           types.Bool   `tfsdk:"enabled"` // null when the state is unknown
	Category          types.String `tfsdk:"category"`
	DistinguishedName types.String `tfsdk:"distinguished_name"`
	ObjectSID         types.String `tfsdk:"object_sid"`
}

func (d *UserStatusDataSource) Metadata(ctx context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_user_status"
}

func (d *UserStatusDataSource) Schema(ctx context.Context, req datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	resp.Schema = schema.Schema{
		MarkdownDescription: "Classifies each user in `users` as enabled, disabled, not found or external. " +
			"Each user is looked up by email first (matching `mail`, `userPrincipalName` or an SMTP proxy address) " +
			"and then by `sam_account_name`. Users that are not in the directory are external when their email domain " +
			"is not one of the forest's domains or UPN suffixes.",

		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{
				MarkdownDescription: "Identifier of the classification run.",
				Computed:            true,
			},
			"users": schema.ListNestedAttribute{
				MarkdownDescription: "Users to classify, in order. Each entry may carry a short account name, an email, or both.",
				Required:            true,
				NestedObject: schema.NestedAttributeObject{
					Attributes: map[string]schema.Attribute{
						"sam_account_name": schema.StringAttribute{
							MarkdownDescription: "Short account name, optionally prefixed with `DOMAIN\\`.",
							Optional:            true,
						},
						"display_name": schema.StringAttribute{
							MarkdownDescription: "Display name carried through to the result when the directory has none.",
							Optional:            true,
						},
						"email": schema.StringAttribute{
							MarkdownDescription: "Email address.",
							Optional:            true,
							Validators: []validator.String{
								validators.Email(),
							},
						},
					},
				},
			},
			"enabled":   resolvedUserListAttribute("Users whose directory account is enabled."),
			"disabled":  resolvedUserListAttribute("Users whose directory account is disabled."),
			"not_found": resolvedUserListAttribute("Internal users that were not found, failed to resolve, or whose enabled state could not be read."),
			"external":  resolvedUserListAttribute("Users that were not found and whose email domain is not internal."),
			"total": schema.Int64Attribute{
				MarkdownDescription: "Number of classified users.",
				Computed:            true,
			},
		},
	}
}

func resolvedUserListAttribute(description string) schema.ListNestedAttribute {
	return schema.ListNestedAttribute{
		MarkdownDescription: description,
		Computed:            true,
		NestedObject: schema.NestedAttributeObject{
			Attributes: map[string]schema.Attribute{
				"sam_account_name": schema.StringAttribute{
					MarkdownDescription: "Short account name, from the directory when found.",
					Computed:            true,
				},
				"display_name": schema.StringAttribute{
					MarkdownDescription: "Display name, from the directory when found.",
					Computed:            true,
				},
				"email": schema.StringAttribute{
					MarkdownDescription: "Email address. For found users this is `mail`, then the input email, then the UPN.",
					Computed:            true,
				},
				"enabled": schema.BoolAttribute{
					MarkdownDescription: "Whether the account is enabled. Null when unknown.",
					Computed:            true,
				},
				"category": schema.StringAttribute{
					MarkdownDescription: "One of `enabled`, `disabled`, `not_found` or `external`.",
					Computed:            true,
				},
				"distinguished_name": schema.StringAttribute{
					MarkdownDescription: "Distinguished name of the directory account, when found.",
					Computed:            true,
				},
				"object_sid": schema.StringAttribute{
					MarkdownDescription: "Security identifier of the directory account, when found. " +
						"Example: `S-1-5-21-123456789-123456789-123456789-1001`",
					Computed: true,
				},
			},
		},
	}
}

func (d *UserStatusDataSource) Configure(ctx context.Context, req datasource.ConfigureRequest, resp *datasource.ConfigureResponse) {
	// Prevent panic if the provider has not been configured.
	if req.ProviderData == nil {
		return
	}

	d.data = providerDataFrom(req.ProviderData, &resp.Diagnostics)
}

func (d *UserStatusDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var data UserStatusDataSourceModel

	ctx = initializeLogging(ctx)

	logCompletion := ldapclient.LogDataSourceOperation(ctx, "ad_user_status", "read", nil)
	defer func() {
		var err error
		if resp.Diagnostics.HasError() {
			// Get first error for logging
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

	inputs := make([]batch.InputIdentifier, len(data.Users))
	for i, u := range data.Users {
		inputs[i] = batch.InputIdentifier{
			ShortName:   u.SAMAccountName.ValueString(),
			DisplayName: u.DisplayName.ValueString(),
			Email:       u.Email.ValueString(),
		}
	}

	job := batch.Start(ctx, d.data.Opener, inputs, d.data.Options)
	ctx = tflog.SetField(ctx, "run_id", job.ID())

	for p := range job.Progress() {
		fields := map[string]any{
			"processed": p.Processed,
			"total":     p.Total,
		}
		if p.Total > 0 {
			fields["percent"] = p.Processed * 100 / p.Total
		}
		if p.Done() {
			tflog.Info(ctx, "Classification complete", fields)
			continue
		}
		tflog.Debug(ctx, "Classification progress", fields)
	}

	result, err := job.Wait()
	if err != nil {
		if errors.Is(err, batch.ErrCancelled) {
			processed := 0
			if result != nil {
				processed = result.Total()
			}
			resp.Diagnostics.AddError(
				"Operation cancelled",
				fmt.Sprintf("Classification was cancelled after %d of %d users.", processed, len(inputs)),
			)
			return
		}

		summary := "Error Classifying Users"
		switch {
		case ldapclient.IsAuthenticationError(err):
			summary = "Active Directory Authentication Failed"
		case ldapclient.IsConnectionError(err):
			summary = "Unable to Connect to Active Directory"
		}
		resp.Diagnostics.AddError(summary, fmt.Sprintf("Could not classify users: %s", err.Error()))
		return
	}

	tflog.Info(ctx, "Classified users", map[string]any{
		"total":     result.Total(),
		"enabled":   len(result.Enabled),
		"disabled":  len(result.Disabled),
		"not_found": len(result.NotFound),
		"external":  len(result.External),
	})

	data.ID = types.StringValue(job.ID())
	data.Enabled = resolvedUserModels(result.Bucket(batch.CategoryEnabled))
	data.Disabled = resolvedUserModels(result.Bucket(batch.CategoryDisabled))
	data.NotFound = resolvedUserModels(result.Bucket(batch.CategoryNotFound))
	data.External = resolvedUserModels(result.Bucket(batch.CategoryExternal))
	data.Total = types.Int64Value(int64(result.Total()))

	// Save data into Terraform state
	resp.Diagnostics.Append(resp.State.Set(ctx, &data)...)
}

// resolvedUserModels maps classified users, never returning nil so that empty
// buckets are stored as empty lists.
func resolvedUserModels(users []batch.ResolvedUser) []ResolvedUserModel {
	out := make([]ResolvedUserModel, 0, len(users))
	for _, u := range users {
		out = append(out, ResolvedUserModel{
			SAMAccountName:    stringOrNull(u.ShortName),
			DisplayName:       stringOrNull(u.DisplayName),
			Email:             stringOrNull(u.Email),
			Enabled:           types.BoolPointerValue(u.Enabled.Bool()),
			Category:          types.StringValue(u.Category.String()),
			DistinguishedName: stringOrNull(u.DistinguishedName),
			ObjectSID:         stringOrNull(u.ObjectSID),
		})
	}
	return out
}

func stringOrNull(s string) types.String {
	if s == "" {
		return types.StringNull()
	}
	return types.StringValue(s)
}
