package retry

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOperationCancelled matches every OperationCancelledError via errors.Is.
	ErrOperationCancelled = errors.New("settle: operation cancelled")

	// ErrRetriesExhausted matches every RetriesExhaustedError via errors.Is.
	ErrRetriesExhausted = errors.New("settle: retries exhausted")

	// ErrNonRetryable matches every NonRetryableError via errors.Is.
	ErrNonRetryable = errors.New("settle: non-retryable failure")
)

// OperationCancelledError reports that the caller's context ended a retried
// call. It unwraps to the context error.
type OperationCancelledError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
	Err       error

	// Last is the error of the last attempt made, if any.
	Last error
}

func (e *OperationCancelledError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settle: operation %q cancelled after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *OperationCancelledError) Unwrap() error { return e.Err }

func (e *OperationCancelledError) Is(target error) bool { return target == ErrOperationCancelled }

// RetriesExhaustedError reports that every permitted attempt failed. It
// unwraps to the last attempt's error; History holds every attempt's error in
// order.
type RetriesExhaustedError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
	Last      error
	History   []error
}

func (e *RetriesExhaustedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settle: operation %q failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// NonRetryableError reports a failure the retry predicate rejected. It
// unwraps to the operation's error.
type NonRetryableError struct {
	Operation string
	Attempts  int
	Elapsed   time.Duration
	Err       error
}

func (e *NonRetryableError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settle: operation %q failed on attempt %d: %v", e.Operation, e.Attempts, e.Err)
}

func (e *NonRetryableError) Unwrap() error { return e.Err }

func (e *NonRetryableError) Is(target error) bool { return target == ErrNonRetryable }

// PanicError is returned when an operation panics and panic recovery is on.
// It is never retried.
type PanicError struct {
	Operation string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("settle: panic in operation %q: %v", e.Operation, e.Value)
}
