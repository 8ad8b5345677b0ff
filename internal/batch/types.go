// Package batch classifies a list of user identifiers against the directory,
// one record at a time, into enabled, disabled, not found and external
// buckets.
package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

// Subsystem is the tflog subsystem used by this package.
const Subsystem = "batch"

// ErrCancelled reports that a run stopped at a record boundary because its
// context was cancelled. Records classified before that point are kept.
var ErrCancelled = errors.New("batch cancelled")

type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	if e.cause != nil {
		return ErrCancelled.Error() + ": " + e.cause.Error()
	}
	return ErrCancelled.Error()
}

func (e *cancelledError) Is(target error) bool {
	return target == ErrCancelled
}

func (e *cancelledError) Unwrap() error {
	return e.cause
}

// cancelled wraps a context error so that both errors.Is(err, ErrCancelled)
// and errors.Is(err, context.Canceled) hold.
func cancelled(cause error) error {
	return &cancelledError{cause: cause}
}

// isCancellation reports whether err came from the context rather than the
// directory.
func isCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// InputIdentifier is one caller-supplied record. Any field may be blank.
type InputIdentifier struct {
	ShortName   string
	DisplayName string
	Email       string
}

// IsBlank reports whether the record has neither a short name nor an email.
func (in InputIdentifier) IsBlank() bool {
	return strings.TrimSpace(in.ShortName) == "" && strings.TrimSpace(in.Email) == ""
}

// Category is the bucket a record lands in.
type Category int

const (
	CategoryNotFound Category = iota
	CategoryEnabled
	CategoryDisabled
	CategoryExternal
)

func (c Category) String() string {
	switch c {
	case CategoryEnabled:
		return "enabled"
	case CategoryDisabled:
		return "disabled"
	case CategoryExternal:
		return "external"
	default:
		return "not_found"
	}
}

// ResolvedUser is the classified form of one input record.
type ResolvedUser struct {
	ShortName         string
	DisplayName       string
	Email             string
	Enabled           ldap.EnabledState
	Category          Category
	DistinguishedName string
	ObjectSID         string
}

// Outcome is the per-record result of classification. Fault is set when a
// directory error was contained and the record was downgraded to NotFound.
type Outcome struct {
	User  ResolvedUser
	Fault error
}

// Result holds the four buckets. Within a bucket, users keep input order.
type Result struct {
	Enabled  []ResolvedUser
	Disabled []ResolvedUser
	NotFound []ResolvedUser
	External []ResolvedUser
}

// Add appends u to the bucket named by its category.
func (r *Result) Add(u ResolvedUser) {
	switch u.Category {
	case CategoryEnabled:
		r.Enabled = append(r.Enabled, u)
	case CategoryDisabled:
		r.Disabled = append(r.Disabled, u)
	case CategoryExternal:
		r.External = append(r.External, u)
	default:
		r.NotFound = append(r.NotFound, u)
	}
}

// Bucket returns the users classified as c.
func (r *Result) Bucket(c Category) []ResolvedUser {
	switch c {
	case CategoryEnabled:
		return r.Enabled
	case CategoryDisabled:
		return r.Disabled
	case CategoryExternal:
		return r.External
	default:
		return r.NotFound
	}
}

// Total returns the number of classified users across all buckets.
func (r *Result) Total() int {
	return len(r.Enabled) + len(r.Disabled) + len(r.NotFound) + len(r.External)
}

// Progress is a (processed, total) report.
type Progress struct {
	Processed int
	Total     int
}

// Done reports whether every record has been processed.
func (p Progress) Done() bool {
	return p.Processed == p.Total
}

// ProgressFunc receives progress reports. It is called on the classifying
// goroutine and must not block for long.
type ProgressFunc func(Progress)

// Resolver is the lookup surface the classifier needs from the directory.
type Resolver interface {
	FindByEmail(ctx context.Context, email string) (ldap.Lookup, error)
	FindByShortName(ctx context.Context, name string) (ldap.Lookup, error)
}

// DomainSet answers whether an email domain belongs to the organisation.
type DomainSet interface {
	Contains(domain string) bool
}
