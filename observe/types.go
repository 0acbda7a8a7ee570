// Package observe defines the outcome values returned by every wait and retry
// call, and the observer contract used to report them.
package observe

import (
	"context"
	"time"
)

// Outcome is the result of a wait or retry call. It is always fully
// populated, whether the call succeeded or not, and is never mutated after
// it is returned.
type Outcome struct {
	Succeeded bool
	Attempts  int
	Elapsed   time.Duration

	// LastError is the error that ended the call, or nil on success.
	LastError error

	// Value is what the final successful evaluation produced, if anything.
	Value any
}

// WaitEvent reports the terminal result of a wait.
type WaitEvent struct {
	// Name is the condition name, or the wait name for a composite wait.
	Name string
	// Handle is the description of the handle waited on.
	Handle string
	// Composite is set for the aggregate event of a multi-condition wait.
	Composite bool

	Outcome Outcome
}

// RetryEvent reports one finished attempt of a retried operation.
type RetryEvent struct {
	Operation   string
	Attempt     int
	MaxAttempts int

	// Err is nil when the attempt succeeded.
	Err error
	// WillRetry reports whether another attempt follows after Backoff.
	WillRetry bool
	Backoff   time.Duration

	StartTime time.Time
	EndTime   time.Time
}

// Duration is the wall time spent in the attempt.
func (e RetryEvent) Duration() time.Duration { return e.EndTime.Sub(e.StartTime) }

// Exhausted reports whether this failed attempt was the last one allowed.
func (e RetryEvent) Exhausted() bool {
	return e.Err != nil && !e.WillRetry && e.MaxAttempts > 0 && e.Attempt >= e.MaxAttempts
}

// AttemptRecord describes a single attempt in a Timeline.
type AttemptRecord struct {
	Attempt   int
	StartTime time.Time
	EndTime   time.Time
	Err       error

	// Backoff is the delay slept after this attempt (zero for the last one).
	Backoff time.Duration
}

// Timeline is the structured record of one retried call and all of its
// attempts.
type Timeline struct {
	Operation string
	Start     time.Time
	End       time.Time

	// Attributes holds call-level metadata such as the stop reason.
	Attributes map[string]string

	Attempts []AttemptRecord
	FinalErr error
}

// Observer receives one WaitEvent per terminal wait result and one
// RetryEvent per finished attempt. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnWaitOutcome(ctx context.Context, ev WaitEvent)
	OnRetryOutcome(ctx context.Context, ev RetryEvent)
}
