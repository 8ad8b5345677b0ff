package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/isometry/terraform-provider-adstatus/internal/ldap"
)

// Session is an open directory session owned by one run.
type Session interface {
	ldap.Directory
	Close()
}

// Opener opens the session for a run. A failure aborts the run before any
// record is processed.
type Opener func(ctx context.Context) (Session, error)

// Options tunes a run.
type Options struct {
	// QueryRateLimit caps records started per second; 0 disables the limit.
	QueryRateLimit float64 `default:"0"`
	// QueryBurst is the limiter bucket size.
	QueryBurst int `default:"1"`

	// NewID generates the run identifier; defaults to a random UUID.
	NewID func() string
}

// DefaultOptions returns Options with struct-tag defaults applied.
func DefaultOptions() (*Options, error) {
	opts := &Options{}
	if err := defaults.Set(opts); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	return opts, nil
}

func (o *Options) limiter() *rate.Limiter {
	if o == nil || o.QueryRateLimit <= 0 {
		return nil
	}
	burst := o.QueryBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.QueryRateLimit), burst)
}

func (o *Options) newID() string {
	if o != nil && o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

// Job is a run executing on its own goroutine.
type Job struct {
	id       string
	progress chan Progress
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	result  *Result
	domains ldap.InternalDomainSet
	err     error
}

// Start opens a session with opener, discovers the internal domains once,
// and classifies inputs in the background. The caller observes progress on
// Progress, may stop the run with Cancel, and collects the outcome with Wait.
func Start(ctx context.Context, opener Opener, inputs []InputIdentifier, opts *Options) *Job {
	runCtx, cancel := context.WithCancel(ctx)

	j := &Job{
		id:       opts.newID(),
		progress: make(chan Progress, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	runCtx = tflog.SubsystemSetField(runCtx, Subsystem, "run_id", j.id)

	go j.run(runCtx, opener, inputs, opts)

	return j
}

// ID returns the run identifier.
func (j *Job) ID() string { return j.id }

// Progress returns a channel carrying the latest progress report. Reports
// may be coalesced when the reader falls behind; the channel is closed when
// the run ends.
func (j *Job) Progress() <-chan Progress { return j.progress }

// Cancel requests cancellation. It takes effect at the next record boundary.
func (j *Job) Cancel() { j.cancel() }

// Done is closed when the run has ended.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the run ends and returns its result. After cancellation
// the partial result is returned with an error matching ErrCancelled.
func (j *Job) Wait() (*Result, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Domains returns the internal domains discovered for the run. It is only
// meaningful after Done is closed.
func (j *Job) Domains() ldap.InternalDomainSet {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.domains
}

func (j *Job) run(ctx context.Context, opener Opener, inputs []InputIdentifier, opts *Options) {
	defer close(j.done)
	defer close(j.progress)
	defer j.cancel()

	tel, err := newTelemetry(nil, nil)
	if err != nil {
		tflog.SubsystemWarn(ctx, Subsystem, "Telemetry unavailable", map[string]any{"error": err.Error()})
		tel = nil
	}

	ctx, endSpan := tel.startSpan(ctx, "batch.run",
		attribute.String("run_id", j.id),
		attribute.Int("records", len(inputs)),
	)

	result, domains, err := j.execute(ctx, opener, inputs, opts, tel)
	endSpan(err)

	j.mu.Lock()
	j.result, j.domains, j.err = result, domains, err
	j.mu.Unlock()
}

func (j *Job) execute(ctx context.Context, opener Opener, inputs []InputIdentifier, opts *Options, tel *telemetry) (*Result, ldap.InternalDomainSet, error) {
	var domains ldap.InternalDomainSet

	if err := ctx.Err(); err != nil {
		return &Result{}, domains, cancelled(err)
	}

	session, err := opener(ctx)
	if err != nil {
		if isCancellation(err) {
			return &Result{}, domains, cancelled(err)
		}
		return nil, domains, err
	}
	defer session.Close()

	domains, err = ldap.DiscoverInternalDomains(ctx, session)
	if err != nil {
		if isCancellation(err) {
			return &Result{}, domains, cancelled(err)
		}
		return nil, domains, fmt.Errorf("failed to discover internal domains: %w", err)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Starting classification", map[string]any{
		"records":          len(inputs),
		"internal_domains": domains.Sorted(),
	})

	classifier := &Classifier{
		Resolver:  ldap.NewUserResolver(session),
		Domains:   domains,
		Limiter:   opts.limiter(),
		telemetry: tel,
	}

	result, err := classifier.Classify(ctx, inputs, j.publish)
	return result, domains, err
}

// publish delivers p, replacing an unread older report.
func (j *Job) publish(p Progress) {
	for {
		select {
		case j.progress <- p:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}
