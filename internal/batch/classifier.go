package batch

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/time/rate"

	"github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

// Classifier runs the per-record state machine. Records are processed
// strictly in order and never concurrently.
type Classifier struct {
	Resolver Resolver
	Domains  DomainSet

	// Limiter, when set, is waited on before each record's lookups.
	Limiter *rate.Limiter

	telemetry *telemetry
}

// Classify classifies every input and returns the four buckets. progress,
// if non-nil, receives (i, total) after each record and (total, total) once
// the run completes. On cancellation the records classified so far are
// returned together with an error matching ErrCancelled; no final progress is
// sent in that case.
func (c *Classifier) Classify(ctx context.Context, inputs []InputIdentifier, progress ProgressFunc) (*Result, error) {
	result := &Result{}
	total := len(inputs)

	report := func(processed int) {
		if progress != nil {
			progress(Progress{Processed: processed, Total: total})
		}
	}

	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			tflog.SubsystemInfo(ctx, Subsystem, "Batch cancelled", map[string]any{
				"processed": i,
				"total":     total,
			})
			return result, cancelled(err)
		}

		start := time.Now()
		outcome, err := c.classifyOne(ctx, in)
		if err != nil {
			tflog.SubsystemInfo(ctx, Subsystem, "Batch cancelled mid-record", map[string]any{
				"processed": i,
				"total":     total,
			})
			return result, cancelled(err)
		}

		if outcome.Fault != nil {
			tflog.SubsystemWarn(ctx, Subsystem, "Lookup failed, record classified as not found", map[string]any{
				"index":      i,
				"short_name": in.ShortName,
				"email":      in.Email,
				"error":      outcome.Fault.Error(),
			})
		}

		result.Add(outcome.User)
		c.telemetry.recordOutcome(ctx, outcome, time.Since(start))
		report(i + 1)
	}

	report(total)

	tflog.SubsystemInfo(ctx, Subsystem, "Batch classified", map[string]any{
		"total":     total,
		"enabled":   len(result.Enabled),
		"disabled":  len(result.Disabled),
		"not_found": len(result.NotFound),
		"external":  len(result.External),
	})

	return result, nil
}

// classifyOne classifies a single record. Directory faults are contained in
// the returned Outcome; only cancellation is returned as an error.
func (c *Classifier) classifyOne(ctx context.Context, in InputIdentifier) (Outcome, error) {
	if in.IsBlank() {
		return Outcome{User: notFound(in)}, nil
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			// Wait also fails early when the delay would outlast the
			// deadline; the next record boundary observes it.
			tflog.SubsystemWarn(ctx, Subsystem, "Rate limiter rejected wait", map[string]any{"error": err.Error()})
		}
	}

	lookup, err := c.resolve(ctx, in)
	if err != nil {
		if isCancellation(err) {
			return Outcome{}, err
		}
		return Outcome{User: notFound(in), Fault: err}, nil
	}

	if lookup.Found {
		return Outcome{User: found(in, lookup)}, nil
	}

	return Outcome{User: c.unresolved(in)}, nil
}

// resolve tries the email first, then the short name.
func (c *Classifier) resolve(ctx context.Context, in InputIdentifier) (ldap.Lookup, error) {
	if strings.TrimSpace(in.Email) != "" {
		lookup, err := c.Resolver.FindByEmail(ctx, in.Email)
		if err != nil || lookup.Found {
			return lookup, err
		}
	}

	if strings.TrimSpace(in.ShortName) != "" {
		return c.Resolver.FindByShortName(ctx, in.ShortName)
	}

	return ldap.Lookup{}, nil
}

// unresolved splits a miss into NotFound or External by the email domain.
// A record without an email domain can never be external.
func (c *Classifier) unresolved(in InputIdentifier) ResolvedUser {
	u := notFound(in)

	domain := ldap.EmailDomain(ldap.NormalizeEmail(in.Email))
	if domain == "" {
		return u
	}
	if c.Domains != nil && c.Domains.Contains(domain) {
		return u
	}

	u.Category = CategoryExternal
	return u
}

func notFound(in InputIdentifier) ResolvedUser {
	return ResolvedUser{
		ShortName:   in.ShortName,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Enabled:     ldap.EnabledUnknown,
		Category:    CategoryNotFound,
	}
}

// found merges the directory projection over the input. Directory values win
// when present; the email falls back to the input and then to the UPN.
func found(in InputIdentifier, lookup ldap.Lookup) ResolvedUser {
	u := ResolvedUser{
		ShortName:         firstNonBlank(lookup.ShortName, in.ShortName),
		DisplayName:       firstNonBlank(lookup.DisplayName, in.DisplayName),
		Email:             firstNonBlank(lookup.Mail, in.Email, lookup.UserPrincipalName),
		Enabled:           lookup.Enabled,
		DistinguishedName: lookup.DistinguishedName,
		ObjectSID:         lookup.ObjectSID,
	}

	switch lookup.Enabled {
	case ldap.EnabledTrue:
		u.Category = CategoryEnabled
	case ldap.EnabledFalse:
		u.Category = CategoryDisabled
	default:
		u.Category = CategoryNotFound
	}

	return u
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
