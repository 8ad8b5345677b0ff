package batch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/isometry/terraform-provider-adstatus/internal/batch"

// telemetry records spans and metrics for batch runs. Instruments come from
// the global providers, which are no-ops unless the host installs an SDK. A
// nil *telemetry records nothing.
type telemetry struct {
	tracer trace.Tracer

	records        metric.Int64Counter
	faults         metric.Int64Counter
	recordDuration metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	t := &telemetry{tracer: tp.Tracer(instrumentationName)}
	meter := mp.Meter(instrumentationName)

	var err error
	t.records, err = meter.Int64Counter(
		"adstatus.records",
		metric.WithDescription("Number of classified records by category"),
	)
	if err != nil {
		return nil, err
	}

	t.faults, err = meter.Int64Counter(
		"adstatus.record.faults",
		metric.WithDescription("Number of records downgraded after a directory fault"),
	)
	if err != nil {
		return nil, err
	}

	t.recordDuration, err = meter.Float64Histogram(
		"adstatus.record.duration",
		metric.WithDescription("Duration of per-record classification"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// startSpan starts the run span. The returned func ends it with err's status.
func (t *telemetry) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if t == nil || t.tracer == nil {
		return ctx, func(error) {}
	}

	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func (t *telemetry) recordOutcome(ctx context.Context, outcome Outcome, duration time.Duration) {
	if t == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("category", outcome.User.Category.String()))
	t.records.Add(ctx, 1, attrs)
	t.recordDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome.Fault != nil {
		t.faults.Add(ctx, 1)
	}
}
