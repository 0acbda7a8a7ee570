// Package retry runs an operation under a RetrySpec: bounded attempts,
// exponential backoff between them, and a predicate that separates
// retryable failures from fatal ones.
package retry

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/internal"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
)

type Operation func(ctx context.Context) error
type OperationValue[T any] func(ctx context.Context) (T, error)

// Executor runs operations with retries. It holds no per-call state and is
// safe for concurrent use.
type Executor struct {
	observer      observe.Observer
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
	classifier    classify.Classifier
	recoverPanics bool
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Observer observe.Observer
	Clock    func() time.Time
	Sleep    func(context.Context, time.Duration) error

	// Classifier, when set, may shorten or lengthen the next delay through
	// Verdict.BackoffOverride (for example an HTTP Retry-After header). It
	// does not decide whether to retry; the RetrySpec predicate does.
	Classifier classify.Classifier

	RecoverPanics bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*ExecutorOptions)

// WithObserver sets the observer.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(c *ExecutorOptions) { c.Observer = o }
}

// WithClock sets the clock function.
func WithClock(f func() time.Time) ExecutorOption {
	return func(c *ExecutorOptions) { c.Clock = f }
}

// WithSleep sets the function used to wait between attempts.
func WithSleep(f func(context.Context, time.Duration) error) ExecutorOption {
	return func(c *ExecutorOptions) { c.Sleep = f }
}

// WithClassifier sets the classifier consulted for backoff overrides.
func WithClassifier(cls classify.Classifier) ExecutorOption {
	return func(c *ExecutorOptions) { c.Classifier = cls }
}

// WithRecoverPanics sets whether to capture and report panics in user code.
func WithRecoverPanics(recover bool) ExecutorOption {
	return func(c *ExecutorOptions) { c.RecoverPanics = recover }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	var cfg ExecutorOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewExecutorFromOptions(cfg)
}

// NewExecutorFromOptions creates an Executor from a config struct.
func NewExecutorFromOptions(opts ExecutorOptions) *Executor {
	e := &Executor{
		observer:      opts.Observer,
		clock:         opts.Clock,
		sleep:         opts.Sleep,
		classifier:    opts.Classifier,
		recoverPanics: opts.RecoverPanics,
	}
	if e.observer == nil {
		e.observer = observe.NoopObserver{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	if internal.IsTypedNil(e.classifier) {
		e.classifier = nil
	}
	return e
}

// Do runs op under spec. See DoValue.
func (e *Executor) Do(ctx context.Context, name string, spec policy.RetrySpec, op Operation) (observe.Outcome, error) {
	_, out, err := DoValue[struct{}](ctx, e, name, spec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return out, err
}

// DoValue runs op until it succeeds, its error is rejected by the spec's
// predicate, spec.MaxAttempts attempts have failed, or ctx ends.
//
// Attempts are 1-indexed. After failed attempt k the executor sleeps
// spec.Delay(k) before attempt k+1. Cancellation is checked before every
// attempt and during every sleep. One RetryEvent is emitted per attempt.
//
// Errors:
//   - *NonRetryableError when the predicate rejects an error (or op panics
//     with recovery on);
//   - *RetriesExhaustedError after the last attempt fails;
//   - *OperationCancelledError when ctx ends.
func DoValue[T any](ctx context.Context, exec *Executor, name string, spec policy.RetrySpec, op OperationValue[T]) (T, observe.Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if exec == nil {
		exec = NewExecutor()
	}

	var zero T
	maxAttempts := spec.MaxAttempts()
	if maxAttempts < 1 {
		// A zero RetrySpec was not built through policy.NewRetrySpec.
		maxAttempts = 1
	}

	capture, wantTimeline := observe.TimelineCaptureFromContext(ctx)
	start := exec.clock()
	tl := observe.Timeline{Operation: name, Start: start, Attributes: map[string]string{}}

	var (
		attempts int
		history  []error
		lastErr  error
	)

	finish := func(val T, reason string, err error) (T, observe.Outcome, error) {
		end := exec.clock()
		out := observe.Outcome{
			Succeeded: err == nil,
			Attempts:  attempts,
			Elapsed:   end.Sub(start),
			LastError: err,
		}
		if err == nil {
			out.Value = val
		}
		switch e := err.(type) {
		case *OperationCancelledError:
			e.Elapsed = out.Elapsed
		case *RetriesExhaustedError:
			e.Elapsed = out.Elapsed
		case *NonRetryableError:
			e.Elapsed = out.Elapsed
		}
		if wantTimeline {
			tl.End = end
			tl.FinalErr = err
			tl.Attributes["stop_reason"] = reason
			observe.StoreTimelineCapture(capture, &tl)
		}
		return val, out, err
	}

	cancelled := func(ctxErr error) (T, observe.Outcome, error) {
		return finish(zero, "cancelled", &OperationCancelledError{
			Operation: name,
			Attempts:  attempts,
			Err:       ctxErr,
			Last:      lastErr,
		})
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		attempts = attempt
		attemptStart := exec.clock()
		attemptCtx := observe.WithAttemptInfo(observe.WithoutTimelineCapture(ctx), observe.AttemptInfo{
			Operation:   name,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
		})
		val, fatal, err := callOp(attemptCtx, exec.recoverPanics, name, op)
		attemptEnd := exec.clock()

		rec := observe.AttemptRecord{Attempt: attempt, StartTime: attemptStart, EndTime: attemptEnd, Err: err}
		ev := observe.RetryEvent{
			Operation:   name,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Err:         err,
			StartTime:   attemptStart,
			EndTime:     attemptEnd,
		}

		if err == nil {
			tl.Attempts = append(tl.Attempts, rec)
			exec.observer.OnRetryOutcome(ctx, ev)
			return finish(val, "success", nil)
		}

		lastErr = err
		history = append(history, err)

		ctxErr := ctx.Err()
		retryable := !fatal && ctxErr == nil && spec.ShouldRetry(err)
		if retryable && attempt < maxAttempts {
			ev.WillRetry = true
			ev.Backoff = exec.delay(spec, attempt, err)
			rec.Backoff = ev.Backoff
		}
		tl.Attempts = append(tl.Attempts, rec)
		exec.observer.OnRetryOutcome(ctx, ev)

		switch {
		case ctxErr != nil:
			return cancelled(ctxErr)
		case !retryable:
			return finish(zero, "non_retryable", &NonRetryableError{
				Operation: name,
				Attempts:  attempts,
				Err:       err,
			})
		case attempt == maxAttempts:
			return finish(zero, "exhausted", &RetriesExhaustedError{
				Operation: name,
				Attempts:  attempts,
				Last:      err,
				History:   history,
			})
		}

		if err := exec.sleep(ctx, ev.Backoff); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return cancelled(err)
		}
	}

	// Unreachable: the loop returns on its last iteration.
	return finish(zero, "exhausted", &RetriesExhaustedError{Operation: name, Attempts: attempts, Last: lastErr, History: history})
}

// callOp runs one attempt. fatal is set when the failure must not be retried
// regardless of the predicate.
func callOp[T any](ctx context.Context, recoverPanics bool, name string, op OperationValue[T]) (val T, fatal bool, err error) {
	if recoverPanics {
		defer func() {
			if r := recover(); r != nil {
				err = &PanicError{Operation: name, Value: r, Stack: debug.Stack()}
				fatal = true
			}
		}()
	}
	if op == nil {
		return val, true, errors.New("settle: nil operation")
	}
	val, err = op(ctx)
	return val, false, err
}

// delay returns the sleep after failed attempt k. A classifier verdict with a
// backoff override replaces the computed delay, still capped at MaxDelay.
func (e *Executor) delay(spec policy.RetrySpec, attempt int, err error) time.Duration {
	d := spec.Delay(attempt)
	if e.classifier != nil {
		if v := e.classifier.Classify(err); v.BackoffOverride > 0 {
			d = capBackoff(v.BackoffOverride, spec.MaxDelay())
		}
	}
	return d
}

func capBackoff(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
