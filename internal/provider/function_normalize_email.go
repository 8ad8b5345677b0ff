package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var _ function.Function = &NormalizeEmailFunction{}

func NewNormalizeEmailFunction() function.Function {
	return &NormalizeEmailFunction{}
}

// NormalizeEmailFunction implements the normalize_email function.
type NormalizeEmailFunction struct{}

// Metadata returns the function name.
func (f NormalizeEmailFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "normalize_email"
}

// Definition returns the function schema including parameters and return types.
func (f NormalizeEmailFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Normalize an email address the way user lookups do",
		Description: "Removes all whitespace, non-breaking spaces included, and lower-cases the result.",
		MarkdownDescription: "Removes all whitespace, non-breaking spaces included, and lower-cases the result, " +
			"producing the value matched against `mail`, `userPrincipalName` and SMTP proxy addresses.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "email",
				MarkdownDescription: "Email address to normalize.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f NormalizeEmailFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var email string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &email))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, ldapclient.NormalizeEmail(email)))
}
