// Package tracing reports wait and retry outcomes as OpenTelemetry spans.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/settle/observe"
)

// InstrumentationName is the tracer name used when none is configured.
const InstrumentationName = "github.com/aponysus/settle"

// Span names.
const (
	SpanWait    = "settle.wait"
	SpanAttempt = "settle.retry.attempt"
)

// Attribute keys.
const (
	AttrWaitName       = attribute.Key("settle.wait.name")
	AttrWaitHandle     = attribute.Key("settle.wait.handle")
	AttrWaitComposite  = attribute.Key("settle.wait.composite")
	AttrWaitAttempts   = attribute.Key("settle.wait.attempts")
	AttrOperation      = attribute.Key("settle.retry.operation")
	AttrAttempt        = attribute.Key("settle.retry.attempt")
	AttrMaxAttempts    = attribute.Key("settle.retry.max_attempts")
	AttrWillRetry      = attribute.Key("settle.retry.will_retry")
	AttrBackoffMillis  = attribute.Key("settle.retry.backoff_ms")
	AttrRetryExhausted = attribute.Key("settle.retry.exhausted")
)

// Observer creates one span per finished wait and one per retry attempt.
// Spans are parented by whatever span the event context carries.
type Observer struct {
	tracer trace.Tracer
	clock  func() time.Time
}

var _ observe.Observer = (*Observer)(nil)

// Options configures an Observer.
type Options struct {
	TracerProvider trace.TracerProvider
	Clock          func() time.Time
}

// Option configures an Observer.
type Option func(*Options)

// WithTracerProvider sets the provider spans are created from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) { o.TracerProvider = tp }
}

// WithClock sets the clock used to date wait spans.
func WithClock(f func() time.Time) Option {
	return func(o *Options) { o.Clock = f }
}

// New creates an Observer.
func New(opts ...Option) *Observer {
	var cfg Options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewFromOptions(cfg)
}

// NewFromOptions creates an Observer from an Options struct.
func NewFromOptions(opts Options) *Observer {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Observer{
		tracer: tp.Tracer(InstrumentationName),
		clock:  clock,
	}
}

// OnWaitOutcome records a span covering the wait. The event carries only the
// elapsed time, so the span ends now and starts Elapsed earlier.
func (o *Observer) OnWaitOutcome(ctx context.Context, ev observe.WaitEvent) {
	end := o.clock()
	start := end.Add(-ev.Outcome.Elapsed)

	_, span := o.tracer.Start(ctx, SpanWait,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrWaitName.String(ev.Name),
			AttrWaitHandle.String(ev.Handle),
			AttrWaitComposite.Bool(ev.Composite),
			AttrWaitAttempts.Int(ev.Outcome.Attempts),
		),
	)
	if err := ev.Outcome.LastError; err != nil {
		span.RecordError(err, trace.WithTimestamp(end))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// OnRetryOutcome records a span covering one attempt.
func (o *Observer) OnRetryOutcome(ctx context.Context, ev observe.RetryEvent) {
	start, end := ev.StartTime, ev.EndTime
	if end.IsZero() {
		end = o.clock()
	}
	if start.IsZero() {
		start = end
	}

	_, span := o.tracer.Start(ctx, SpanAttempt,
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrOperation.String(ev.Operation),
			AttrAttempt.Int(ev.Attempt),
			AttrMaxAttempts.Int(ev.MaxAttempts),
			AttrWillRetry.Bool(ev.WillRetry),
		),
	)
	if ev.WillRetry {
		span.SetAttributes(AttrBackoffMillis.Int64(ev.Backoff.Milliseconds()))
	}
	if ev.Err != nil {
		span.SetAttributes(AttrRetryExhausted.Bool(ev.Exhausted()))
		span.RecordError(ev.Err, trace.WithTimestamp(end))
		span.SetStatus(codes.Error, ev.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}
