package poll

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWaitTimeout matches every WaitTimeoutError via errors.Is.
	ErrWaitTimeout = errors.New("settle: wait timed out")

	// ErrWaitCancelled matches every WaitCancelledError via errors.Is.
	ErrWaitCancelled = errors.New("settle: wait cancelled")

	// ErrInvalidationLimit matches every InvalidationLimitError via errors.Is.
	ErrInvalidationLimit = errors.New("settle: handle invalidated too many times")
)

// WaitTimeoutError reports that a condition did not become Satisfied before
// its deadline.
type WaitTimeoutError struct {
	Condition string
	Handle    string
	Timeout   time.Duration
	Elapsed   time.Duration
	Attempts  int

	// LastObserved is the last transient error seen while Pending, if any.
	LastObserved error
}

func (e *WaitTimeoutError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("settle: condition %q on %s not satisfied after %s (%d attempts)",
		e.Condition, e.Handle, e.Elapsed, e.Attempts)
	if e.LastObserved != nil {
		msg += ": last error: " + e.LastObserved.Error()
	}
	return msg
}

func (e *WaitTimeoutError) Unwrap() error { return e.LastObserved }

func (e *WaitTimeoutError) Is(target error) bool { return target == ErrWaitTimeout }

// WaitCancelledError reports that the caller's context ended the wait.
// It unwraps to the context error.
type WaitCancelledError struct {
	Condition string
	Handle    string
	Elapsed   time.Duration
	Attempts  int
	Err       error
}

func (e *WaitCancelledError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settle: wait for %q on %s cancelled after %s (%d attempts): %v",
		e.Condition, e.Handle, e.Elapsed, e.Attempts, e.Err)
}

func (e *WaitCancelledError) Unwrap() error { return e.Err }

func (e *WaitCancelledError) Is(target error) bool { return target == ErrWaitCancelled }

// InvalidationLimitError reports that a handle kept coming back Invalidated.
// It is Fatal and unwraps to the last invalidation error.
type InvalidationLimitError struct {
	Condition string
	Handle    string
	Count     int
	Elapsed   time.Duration
	Attempts  int
	Err       error
}

func (e *InvalidationLimitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("settle: handle %s invalidated %d times while waiting for %q after %s (%d attempts): %v",
		e.Handle, e.Count, e.Condition, e.Elapsed, e.Attempts, e.Err)
}

func (e *InvalidationLimitError) Unwrap() error { return e.Err }

func (e *InvalidationLimitError) Is(target error) bool { return target == ErrInvalidationLimit }

// PanicError is returned when a condition panics and panic recovery is on.
type PanicError struct {
	Condition string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("settle: panic in condition %q: %v", e.Condition, e.Value)
}
