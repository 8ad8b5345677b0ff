package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

var _ validator.String = emailValidator{}

// emailValidator warns when a non-empty value is not shaped local@domain. It
// never fails validation: such a record is still looked up and classified.
type emailValidator struct{}

func (v emailValidator) Description(_ context.Context) string {
	return "value should be empty or an email address of the form local@domain"
}

func (v emailValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

func (v emailValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()
	compact := ldapclient.NormalizeEmail(value)
	if compact == "" {
		return
	}

	local, domain, ok := strings.Cut(compact, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") ||
		strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		response.Diagnostics.AddAttributeWarning(
			request.Path,
			"Malformed Email Address",
			fmt.Sprintf("The value %q is not of the form local@domain. "+
				"The user is still classified, by short name when one is given, and otherwise lands in not_found or external.", value),
		)
	}
}

// Email returns a validator which warns when a configured attribute value is
// neither empty nor shaped like an email address.
//
// Unknown values and null values are skipped from validation.
func Email() validator.String {
	return emailValidator{}
}
