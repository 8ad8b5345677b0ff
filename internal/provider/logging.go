package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/terraform-provider-adstatus/internal/batch"
	ldapclient "github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

// initializeLogging registers the provider, ldap and batch subsystems. It
// should be called at the beginning of Configure and of each data source
// Read method.
func initializeLogging(ctx context.Context) context.Context {
	// Pattern: TF_LOG_PROVIDER_AD_<SUBSYSTEM>
	ctx = tflog.NewSubsystem(ctx, "provider",
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_PROVIDER"))
	ctx = tflog.NewSubsystem(ctx, ldapclient.Subsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_LDAP"))
	ctx = tflog.NewSubsystem(ctx, batch.Subsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_AD_BATCH"))
	return ctx
}
