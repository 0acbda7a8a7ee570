// Package metrics exports wait and retry outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/poll"
	"github.com/aponysus/settle/retry"
)

// Label values for the result label.
const (
	ResultSatisfied    = "satisfied"
	ResultTimeout      = "timeout"
	ResultCancelled    = "cancelled"
	ResultInvalidated  = "invalidated"
	ResultFatal        = "fatal"
	ResultSuccess      = "success"
	ResultRetry        = "retry"
	ResultExhausted    = "exhausted"
	ResultNonRetryable = "non_retryable"
)

// PrometheusConfig is a config of the Prometheus metrics provided by the
// observer.
//
// An instance can be created only by the [Prometheus] function. The zero
// value is invalid.
type PrometheusConfig struct {
	// Options for the finished waits counter.
	Waits prometheus.CounterOpts
	// Options for the wait duration histogram.
	WaitDuration prometheus.HistogramOpts
	// Options for the evaluations-per-wait histogram.
	WaitAttempts prometheus.HistogramOpts
	// Options for the retried operation attempts counter.
	RetryAttempts prometheus.CounterOpts
	// Options for the attempt duration histogram.
	AttemptDuration prometheus.HistogramOpts

	registerer prometheus.Registerer
}

// Prometheus returns a [PrometheusConfig] with the provided registerer. If
// registerer is nil, metrics will not be registered. Defaults can be changed
// by passing configuration functions.
func Prometheus(
	registerer prometheus.Registerer,
	configFuncs ...func(c *PrometheusConfig),
) *PrometheusConfig {
	const (
		namespace = "settle"
		subsystem = ""
	)

	c := PrometheusConfig{
		registerer: registerer,
		Waits: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "waits_total",
			Help:      "Number of finished waits by result",
		},
		WaitDuration: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for conditions",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		WaitAttempts: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "wait_evaluations",
			Help:      "Condition evaluations per wait",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		},
		RetryAttempts: prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_attempts_total",
			Help:      "Number of attempts of retried operations by result",
		},
		AttemptDuration: prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retry_attempt_duration_seconds",
			Help:      "Duration of single attempts of retried operations",
			Buckets:   prometheus.DefBuckets,
		},
	}

	for _, cf := range configFuncs {
		if cf != nil {
			cf(&c)
		}
	}

	return &c
}

// Observer builds the metrics, registers them and returns an observer that
// updates them. Call it once per registerer.
func (c *PrometheusConfig) Observer() *Observer {
	o := &Observer{
		waits:           prometheus.NewCounterVec(c.Waits, []string{"wait", "kind", "result"}),
		waitDuration:    prometheus.NewHistogramVec(c.WaitDuration, []string{"wait", "kind", "result"}),
		waitAttempts:    prometheus.NewHistogramVec(c.WaitAttempts, []string{"wait", "kind"}),
		retryAttempts:   prometheus.NewCounterVec(c.RetryAttempts, []string{"operation", "result"}),
		attemptDuration: prometheus.NewHistogramVec(c.AttemptDuration, []string{"operation"}),
	}

	if c.registerer != nil {
		c.registerer.MustRegister(
			o.waits,
			o.waitDuration,
			o.waitAttempts,
			o.retryAttempts,
			o.attemptDuration,
		)
	}

	return o
}

// Observer implements observe.Observer on top of Prometheus collectors.
type Observer struct {
	waits           *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	waitAttempts    *prometheus.HistogramVec
	retryAttempts   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
}

var _ observe.Observer = (*Observer)(nil)

func (o *Observer) OnWaitOutcome(_ context.Context, ev observe.WaitEvent) {
	kind := "condition"
	if ev.Composite {
		kind = "composite"
	}
	result := WaitResult(ev.Outcome)

	o.waits.WithLabelValues(ev.Name, kind, result).Inc()
	o.waitDuration.WithLabelValues(ev.Name, kind, result).Observe(ev.Outcome.Elapsed.Seconds())
	o.waitAttempts.WithLabelValues(ev.Name, kind).Observe(float64(ev.Outcome.Attempts))
}

func (o *Observer) OnRetryOutcome(_ context.Context, ev observe.RetryEvent) {
	o.retryAttempts.WithLabelValues(ev.Operation, RetryResult(ev)).Inc()
	o.attemptDuration.WithLabelValues(ev.Operation).Observe(ev.Duration().Seconds())
}

// WaitResult maps a wait outcome onto a result label value.
func WaitResult(out observe.Outcome) string {
	err := out.LastError
	switch {
	case out.Succeeded:
		return ResultSatisfied
	case errors.Is(err, poll.ErrWaitTimeout):
		return ResultTimeout
	case errors.Is(err, poll.ErrWaitCancelled):
		return ResultCancelled
	case errors.Is(err, poll.ErrInvalidationLimit):
		return ResultInvalidated
	default:
		return ResultFatal
	}
}

// RetryResult maps a retry event onto a result label value.
func RetryResult(ev observe.RetryEvent) string {
	switch {
	case ev.Err == nil:
		return ResultSuccess
	case ev.WillRetry:
		return ResultRetry
	case ev.Exhausted():
		return ResultExhausted
	case errors.Is(ev.Err, context.Canceled) || errors.Is(ev.Err, retry.ErrOperationCancelled):
		return ResultCancelled
	default:
		return ResultNonRetryable
	}
}
