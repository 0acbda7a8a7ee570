package policy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aponysus/settle/classify"
)

// RetrySpec describes a bounded retry. Attempts are 1-indexed and
// maxAttempts == 1 means no retry. It is an immutable value.
type RetrySpec struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	retryIf      func(error) bool
}

// RetryOption configures a RetrySpec under construction.
type RetryOption func(*RetrySpec)

// RetryIf sets the retryable predicate. A nil predicate retries every error
// except context cancellation.
func RetryIf(pred func(error) bool) RetryOption {
	return func(s *RetrySpec) { s.retryIf = pred }
}

// RetryClassifier derives the predicate from c: only Retryable verdicts retry.
func RetryClassifier(c classify.Classifier) RetryOption {
	return func(s *RetrySpec) {
		if c != nil {
			s.retryIf = classify.Predicate(c)
		}
	}
}

// NewRetrySpec validates and returns a RetrySpec.
func NewRetrySpec(maxAttempts int, initialDelay time.Duration, multiplier float64, maxDelay time.Duration, opts ...RetryOption) (RetrySpec, error) {
	s := RetrySpec{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		multiplier:   multiplier,
		maxDelay:     maxDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if err := s.validate(); err != nil {
		return RetrySpec{}, err
	}
	return s, nil
}

// MustRetrySpec is NewRetrySpec for static configuration; it panics on error.
func MustRetrySpec(maxAttempts int, initialDelay time.Duration, multiplier float64, maxDelay time.Duration, opts ...RetryOption) RetrySpec {
	s, err := NewRetrySpec(maxAttempts, initialDelay, multiplier, maxDelay, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s RetrySpec) validate() error {
	if s.maxAttempts < 1 {
		return invalid("max_attempts", s.maxAttempts, "must be >= 1")
	}
	if s.initialDelay < 0 {
		return invalid("initial_delay", s.initialDelay, "must be >= 0")
	}
	if math.IsNaN(s.multiplier) || math.IsInf(s.multiplier, 0) || s.multiplier < 1 {
		return invalid("backoff_multiplier", s.multiplier, "must be >= 1.0")
	}
	if s.maxDelay < s.initialDelay {
		return invalid("max_delay", s.maxDelay, fmt.Sprintf("must be >= initial_delay (%s)", s.initialDelay))
	}
	return nil
}

func (s RetrySpec) MaxAttempts() int            { return s.maxAttempts }
func (s RetrySpec) InitialDelay() time.Duration { return s.initialDelay }
func (s RetrySpec) Multiplier() float64         { return s.multiplier }
func (s RetrySpec) MaxDelay() time.Duration     { return s.maxDelay }

// Delay returns the sleep before the retry that follows attempt k:
// min(initialDelay * multiplier^(k-1), maxDelay). It is non-decreasing in k.
func (s RetrySpec) Delay(attempt int) time.Duration {
	if attempt < 1 || s.initialDelay <= 0 {
		return 0
	}
	d := float64(s.initialDelay)
	limit := float64(s.maxDelay)
	for i := 1; i < attempt; i++ {
		d *= s.multiplier
		if d >= limit {
			return s.maxDelay
		}
	}
	if d >= limit {
		return s.maxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether err is retryable under s. Context cancellation
// is never retryable.
func (s RetrySpec) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if s.retryIf == nil {
		return true
	}
	return s.retryIf(err)
}

// WithPredicate returns a copy of s using pred as the retryable predicate.
func (s RetrySpec) WithPredicate(pred func(error) bool) RetrySpec {
	s.retryIf = pred
	return s
}

// WithMaxAttempts returns a copy of s allowing n attempts.
func (s RetrySpec) WithMaxAttempts(n int) (RetrySpec, error) {
	s.maxAttempts = n
	if err := s.validate(); err != nil {
		return RetrySpec{}, err
	}
	return s, nil
}

func (s RetrySpec) String() string {
	return fmt.Sprintf("retry(attempts=%d, initial=%s, multiplier=%g, max=%s)",
		s.maxAttempts, s.initialDelay, s.multiplier, s.maxDelay)
}
