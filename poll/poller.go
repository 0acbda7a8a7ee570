// Package poll evaluates a single condition repeatedly until it holds, the
// deadline passes, or the condition fails for good.
package poll

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
)

// Poller drives condition evaluation. It holds no per-call state and is safe
// for concurrent use.
type Poller struct {
	observer         observe.Observer
	clock            func() time.Time
	sleep            func(context.Context, time.Duration) error
	maxInvalidations int
	recoverPanics    bool
}

// Options configures a Poller.
type Options struct {
	Observer observe.Observer
	Clock    func() time.Time
	Sleep    func(context.Context, time.Duration) error

	// MaxInvalidations is the default for calls that do not pass their own.
	// Nil means policy.DefaultMaxInvalidations; zero means unlimited.
	MaxInvalidations *int

	RecoverPanics bool
}

// Option configures a Poller.
type Option func(*Options)

// WithObserver sets the observer.
func WithObserver(o observe.Observer) Option {
	return func(opts *Options) { opts.Observer = o }
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) Option {
	return func(opts *Options) { opts.Clock = f }
}

// WithSleep sets the function used to wait between evaluations.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(opts *Options) { opts.Sleep = f }
}

// WithMaxInvalidations sets the default invalidation limit.
func WithMaxInvalidations(n int) Option {
	return func(opts *Options) { opts.MaxInvalidations = &n }
}

// WithRecoverPanics sets whether panics in conditions are returned as Fatal
// PanicErrors instead of propagating.
func WithRecoverPanics(recover bool) Option {
	return func(opts *Options) { opts.RecoverPanics = recover }
}

// New creates a Poller.
func New(opts ...Option) *Poller {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return NewFromOptions(o)
}

// NewFromOptions creates a Poller from a config struct.
func NewFromOptions(opts Options) *Poller {
	p := &Poller{
		observer:         opts.Observer,
		clock:            opts.Clock,
		sleep:            opts.Sleep,
		maxInvalidations: policy.DefaultMaxInvalidations,
		recoverPanics:    opts.RecoverPanics,
	}
	if opts.MaxInvalidations != nil && *opts.MaxInvalidations >= 0 {
		p.maxInvalidations = *opts.MaxInvalidations
	}
	if p.observer == nil {
		p.observer = observe.NoopObserver{}
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.sleep == nil {
		p.sleep = sleepWithContext
	}
	return p
}

// Clock returns the poller's time source.
func (p *Poller) Clock() func() time.Time {
	if p == nil || p.clock == nil {
		return time.Now
	}
	return p.clock
}

// CallOption adjusts a single Poll call.
type CallOption func(*call)

type call struct {
	maxInvalidations int
	silent           bool
}

// MaxInvalidations overrides the invalidation limit for one call. Zero means
// unlimited.
func MaxInvalidations(n int) CallOption {
	return func(c *call) {
		if n >= 0 {
			c.maxInvalidations = n
		}
	}
}

// Silent suppresses the wait event for one call. Composite waits use it when
// they report an aggregate event of their own.
func Silent() CallOption {
	return func(c *call) { c.silent = true }
}

// Poll evaluates cond against h immediately, then every interval, until it
// is Satisfied, the timeout elapses, it turns Fatal, or ctx ends.
//
// The deadline is checked before every evaluation, each evaluation runs
// under a context that expires at the deadline, and sleeps are cut short at
// the deadline, so Poll never waits meaningfully longer than timeout. Invalidated results count as Pending until more than the
// invalidation limit have been seen; the next one is Fatal.
//
// The returned Outcome is always populated. Its LastError equals the
// returned error.
func (p *Poller) Poll(ctx context.Context, h handle.Handle, cond condition.Condition, timeout, interval time.Duration, opts ...CallOption) (observe.Outcome, error) {
	if p == nil {
		p = New()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := policy.ValidateTiming(timeout, interval); err != nil {
		return observe.Outcome{LastError: err}, err
	}

	c := call{maxInvalidations: p.maxInvalidations}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	desc := handle.Describe(h)
	start := p.clock()
	deadline := start.Add(timeout)

	var (
		attempts      int
		invalidations int
		lastObserved  error
	)

	finish := func(succeeded bool, value any, err error) (observe.Outcome, error) {
		out := observe.Outcome{
			Succeeded: succeeded,
			Attempts:  attempts,
			Elapsed:   p.clock().Sub(start),
			LastError: err,
			Value:     value,
		}
		switch e := err.(type) {
		case *WaitTimeoutError:
			e.Elapsed = out.Elapsed
		case *WaitCancelledError:
			e.Elapsed = out.Elapsed
		case *InvalidationLimitError:
			e.Elapsed = out.Elapsed
		}
		if !c.silent {
			p.observer.OnWaitOutcome(ctx, observe.WaitEvent{Name: cond.Name, Handle: desc, Outcome: out})
		}
		return out, err
	}

	cancelled := func(err error) (observe.Outcome, error) {
		return finish(false, nil, &WaitCancelledError{
			Condition: cond.Name,
			Handle:    desc,
			Attempts:  attempts,
			Err:       err,
		})
	}

	timedOut := func() (observe.Outcome, error) {
		return finish(false, nil, &WaitTimeoutError{
			Condition:    cond.Name,
			Handle:       desc,
			Timeout:      timeout,
			Attempts:     attempts,
			LastObserved: lastObserved,
		})
	}

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}
		remaining := deadline.Sub(p.clock())
		if remaining <= 0 {
			return timedOut()
		}

		attempts++
		evalCtx, cancel := context.WithTimeout(ctx, remaining)
		res := p.evaluate(evalCtx, h, cond)
		expired := evalCtx.Err() != nil && ctx.Err() == nil
		cancel()

		// An evaluation cut off by the deadline ends the wait as a timeout,
		// whatever the condition made of its cancelled context.
		if expired && res.Status != condition.StatusSatisfied {
			if res.Err != nil {
				lastObserved = res.Err
			}
			return timedOut()
		}

		switch res.Status {
		case condition.StatusSatisfied:
			return finish(true, res.Value, nil)
		case condition.StatusFatal:
			err := res.Err
			if err == nil {
				err = fmt.Errorf("settle: condition %q on %s failed", cond.Name, desc)
			}
			return finish(false, nil, err)
		case condition.StatusInvalidated:
			invalidations++
			if res.Err != nil {
				lastObserved = res.Err
			}
			if c.maxInvalidations > 0 && invalidations > c.maxInvalidations {
				return finish(false, nil, &InvalidationLimitError{
					Condition: cond.Name,
					Handle:    desc,
					Count:     invalidations,
					Attempts:  attempts,
					Err:       res.Err,
				})
			}
		case condition.StatusPending:
			if res.Err != nil {
				lastObserved = res.Err
			}
		default:
			return finish(false, nil, fmt.Errorf("settle: condition %q returned unknown status %v", cond.Name, res.Status))
		}

		remaining = deadline.Sub(p.clock())
		if remaining <= 0 {
			continue
		}
		if err := p.sleep(ctx, min(interval, remaining)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return cancelled(err)
		}
	}
}

func (p *Poller) evaluate(ctx context.Context, h handle.Handle, cond condition.Condition) (res condition.Result) {
	if p.recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				res = condition.Fatal(&PanicError{
					Condition: cond.Name,
					Value:     r,
					Stack:     debug.Stack(),
				})
			}
		}()
	}
	return cond.Evaluate(ctx, h)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
