// Package wait chains several conditions into one readiness wait on a handle.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/poll"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

// DefaultName is the wait name reported for composite waits that were not
// given one.
const DefaultName = "ready"

// Strategy evaluates the conditions of a WaitSpec in order, each through the
// poller, sharing one time budget between them.
type Strategy struct {
	poller   *poll.Poller
	observer observe.Observer

	evalRetry     *retry.Executor
	evalRetrySpec policy.RetrySpec
}

// Options configures a Strategy.
type Options struct {
	// Poller runs the individual conditions. Its clock also measures the
	// composite budget.
	Poller *poll.Poller

	// Observer receives the aggregate composite event. Per-condition events
	// are reported by the poller's own observer.
	Observer observe.Observer

	// EvaluationRetry, when set, retries Invalidated results in place per
	// EvaluationRetrySpec before the poller sees them.
	EvaluationRetry     *retry.Executor
	EvaluationRetrySpec policy.RetrySpec
}

// Option configures a Strategy.
type Option func(*Options)

// WithPoller sets the poller.
func WithPoller(p *poll.Poller) Option {
	return func(o *Options) { o.Poller = p }
}

// WithObserver sets the observer for composite events.
func WithObserver(obs observe.Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

// WithEvaluationRetry retries an Invalidated condition result through exec
// under spec, so a handle that was briefly replaced gets a few quick
// re-evaluations before counting against the invalidation limit.
func WithEvaluationRetry(exec *retry.Executor, spec policy.RetrySpec) Option {
	return func(o *Options) {
		o.EvaluationRetry = exec
		o.EvaluationRetrySpec = spec
	}
}

// New creates a Strategy.
func New(opts ...Option) *Strategy {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return NewFromOptions(o)
}

// NewFromOptions creates a Strategy from a config struct.
func NewFromOptions(opts Options) *Strategy {
	s := &Strategy{
		poller:        opts.Poller,
		observer:      opts.Observer,
		evalRetry:     opts.EvaluationRetry,
		evalRetrySpec: opts.EvaluationRetrySpec,
	}
	if s.poller == nil {
		s.poller = poll.New()
	}
	if s.observer == nil {
		s.observer = observe.NoopObserver{}
	}
	return s
}

// CallOption adjusts a single WaitUntilReady call.
type CallOption func(*call)

type call struct {
	name string
}

// Named sets the name reported in the composite event.
func Named(name string) CallOption {
	return func(c *call) {
		if name != "" {
			c.name = name
		}
	}
}

// WaitUntilReady evaluates the conditions of spec against h in list order.
//
// Under policy.Absolute each condition gets whatever remains of
// spec.Timeout(); under policy.PerCondition each gets the full timeout. The
// first condition that does not become Satisfied (Fatal, timeout or
// cancellation) ends the wait; later conditions are never evaluated.
//
// The aggregate Outcome sums attempts over all conditions run, reports the
// first terminal failure as LastError, and on success carries the value
// produced by the last condition.
func (s *Strategy) WaitUntilReady(ctx context.Context, h handle.Handle, spec policy.WaitSpec, opts ...CallOption) (observe.Outcome, error) {
	if s == nil {
		s = New()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := policy.ValidateTiming(spec.Timeout(), spec.PollInterval()); err != nil {
		return observe.Outcome{LastError: err}, err
	}

	c := call{name: DefaultName}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	clock := s.poller.Clock()
	desc := handle.Describe(h)
	start := clock()
	deadline := start.Add(spec.Timeout())

	var (
		attempts int
		value    any
	)

	finish := func(err error) (observe.Outcome, error) {
		out := observe.Outcome{
			Succeeded: err == nil,
			Attempts:  attempts,
			Elapsed:   clock().Sub(start),
			LastError: err,
		}
		if err == nil {
			out.Value = value
		}
		err = withTotals(err, out.Elapsed, attempts)
		out.LastError = err
		s.observer.OnWaitOutcome(ctx, observe.WaitEvent{Name: c.name, Handle: desc, Composite: true, Outcome: out})
		return out, err
	}

	for _, cond := range spec.Conditions() {
		if err := ctx.Err(); err != nil {
			return finish(&poll.WaitCancelledError{Condition: cond.Name, Handle: desc, Attempts: 0, Err: err})
		}

		allot := spec.Timeout()
		if spec.DeadlinePolicy() == policy.Absolute {
			allot = deadline.Sub(clock())
		}
		interval, ok := fitInterval(spec.PollInterval(), allot)
		if !ok {
			// The budget is spent: this condition times out unevaluated.
			return finish(&poll.WaitTimeoutError{
				Condition: cond.Name,
				Handle:    desc,
				Timeout:   max(allot, 0),
			})
		}

		var extra int
		if s.evalRetry != nil {
			cond = retryInvalidated(s.evalRetry, s.evalRetrySpec, cond, &extra)
		}

		out, err := s.poller.Poll(ctx, h, cond, allot, interval, poll.MaxInvalidations(spec.MaxInvalidations()))
		attempts += out.Attempts + extra
		if err != nil {
			return finish(err)
		}
		value = out.Value
	}
	return finish(nil)
}

// fitInterval shrinks interval so that it stays strictly below the allotted
// time. It reports false when no evaluation fits in allot.
func fitInterval(interval, allot time.Duration) (time.Duration, bool) {
	if allot <= 1 {
		return 0, false
	}
	if interval >= allot {
		interval = allot / 2
	}
	return interval, interval > 0
}

// errInvalidatedResult carries an Invalidated condition result through the
// retry executor.
type errInvalidatedResult struct{ err error }

func (e *errInvalidatedResult) Error() string {
	if e.err == nil {
		return "settle: handle invalidated"
	}
	return e.err.Error()
}

func (e *errInvalidatedResult) Unwrap() error { return e.err }

// withTotals restates the poller's terminal errors with the composite
// elapsed time and attempt count. The poller's own error value is left as
// it was reported.
func withTotals(err error, elapsed time.Duration, attempts int) error {
	switch e := err.(type) {
	case *poll.WaitTimeoutError:
		cp := *e
		cp.Elapsed, cp.Attempts = elapsed, attempts
		return &cp
	case *poll.WaitCancelledError:
		cp := *e
		cp.Elapsed, cp.Attempts = elapsed, attempts
		return &cp
	case *poll.InvalidationLimitError:
		cp := *e
		cp.Elapsed, cp.Attempts = elapsed, attempts
		return &cp
	}
	return err
}

// retryInvalidated wraps c so Invalidated results are re-evaluated through
// exec. Evaluations beyond the first of each call are added to extra. The
// retries run under the evaluation context, so they end with the poll
// deadline.
func retryInvalidated(exec *retry.Executor, spec policy.RetrySpec, c condition.Condition, extra *int) condition.Condition {
	spec = spec.WithPredicate(func(err error) bool {
		var inv *errInvalidatedResult
		return errors.As(err, &inv)
	})
	return condition.New(c.Name, func(ctx context.Context, h handle.Handle) condition.Result {
		var (
			last  condition.Result
			calls int
		)
		defer func() {
			if calls > 1 {
				*extra += calls - 1
			}
		}()
		_, _, _ = retry.DoValue(ctx, exec, c.Name, spec, func(ctx context.Context) (condition.Result, error) {
			calls++
			last = c.Evaluate(ctx, h)
			if last.Status == condition.StatusInvalidated {
				return last, &errInvalidatedResult{err: last.Err}
			}
			return last, nil
		})
		return last
	})
}
