package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var _ function.Function = &EmailDomainFunction{}

func NewEmailDomainFunction() function.Function {
	return &EmailDomainFunction{}
}

// EmailDomainFunction implements the email_domain function.
type EmailDomainFunction struct{}

// Metadata returns the function name.
func (f EmailDomainFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "email_domain"
}

// Definition returns the function schema including parameters and return types.
func (f EmailDomainFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Extract the domain of an email address",
		Description: "Returns the lower-cased label after the first '@' of the normalized email, up to any further '@', or an empty string when there is none.",
		MarkdownDescription: "Returns the lower-cased label after the first `@` of the normalized email, up to any further `@`, or an empty string when there is none. " +
			"This is the value compared against `ad_internal_domains` when deciding whether an unresolved user is external.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "email",
				MarkdownDescription: "Email address.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f EmailDomainFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var email string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &email))
	if resp.Error != nil {
		return
	}

	domain := ldapclient.EmailDomain(ldapclient.NormalizeEmail(email))
	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, domain))
}
