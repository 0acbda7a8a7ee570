package policy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aponysus/settle/classify"
)

func TestRetrySpec_DelaySequence(t *testing.T) {
	s := MustRetrySpec(3, 100*time.Millisecond, 2.0, time.Second)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := s.Delay(i + 1); got != w {
			t.Fatalf("Delay(%d)=%v, want %v", i+1, got, w)
		}
	}
	if got := s.Delay(0); got != 0 {
		t.Fatalf("Delay(0)=%v, want 0", got)
	}
}

func TestRetrySpec_DelayIsMonotonicAndCapped(t *testing.T) {
	specs := []RetrySpec{
		MustRetrySpec(10, 10*time.Millisecond, 1.0, 10*time.Millisecond),
		MustRetrySpec(10, 7*time.Millisecond, 1.5, 300*time.Millisecond),
		MustRetrySpec(10, time.Second, 10, time.Minute),
		MustRetrySpec(10, 0, 2, time.Second),
	}
	for _, s := range specs {
		prev := time.Duration(0)
		for k := 1; k <= 200; k++ {
			d := s.Delay(k)
			if d < prev {
				t.Fatalf("%v: Delay(%d)=%v < Delay(%d)=%v", s, k, d, k-1, prev)
			}
			if d > s.MaxDelay() {
				t.Fatalf("%v: Delay(%d)=%v > max %v", s, k, d, s.MaxDelay())
			}
			prev = d
		}
	}
}

func TestNewRetrySpec_Rejects(t *testing.T) {
	cases := []struct {
		name     string
		attempts int
		initial  time.Duration
		mult     float64
		max      time.Duration
		field    string
	}{
		{name: "zero_attempts", attempts: 0, initial: 0, mult: 1, max: 0, field: "max_attempts"},
		{name: "negative_initial", attempts: 1, initial: -1, mult: 1, max: 0, field: "initial_delay"},
		{name: "multiplier_below_one", attempts: 1, initial: 0, mult: 0.5, max: 0, field: "backoff_multiplier"},
		{name: "max_below_initial", attempts: 1, initial: time.Second, mult: 2, max: time.Millisecond, field: "max_delay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRetrySpec(tc.attempts, tc.initial, tc.mult, tc.max)
			var ise *InvalidSpecError
			if !errors.As(err, &ise) || ise.Field != tc.field {
				t.Fatalf("err=%v, want InvalidSpecError on %q", err, tc.field)
			}
		})
	}
}

func TestRetrySpec_ShouldRetry(t *testing.T) {
	s := MustRetrySpec(3, 0, 1, 0)
	if s.ShouldRetry(nil) {
		t.Fatalf("nil error must not retry")
	}
	if !s.ShouldRetry(errors.New("anything")) {
		t.Fatalf("default predicate should retry")
	}
	if s.ShouldRetry(fmt.Errorf("op: %w", context.Canceled)) {
		t.Fatalf("cancellation must not retry")
	}

	onlyTimeouts := s.WithPredicate(func(err error) bool { return err.Error() == "timeout" })
	if onlyTimeouts.ShouldRetry(errors.New("boom")) || !onlyTimeouts.ShouldRetry(errors.New("timeout")) {
		t.Fatalf("custom predicate not applied")
	}
	if !s.ShouldRetry(errors.New("boom")) {
		t.Fatalf("WithPredicate modified the receiver")
	}
}

func TestRetryClassifierOption(t *testing.T) {
	s := MustRetrySpec(3, 0, 1, 0, RetryClassifier(classify.DefaultSignatures()))

	if !s.ShouldRetry(errors.New("connection refused")) {
		t.Fatalf("transient error should retry")
	}
	if s.ShouldRetry(errors.New("element not found")) {
		t.Fatalf("invalidation should not retry")
	}
	if s.ShouldRetry(errors.New("syntax error")) {
		t.Fatalf("fatal error should not retry")
	}
}

func TestRetrySpec_WithMaxAttempts(t *testing.T) {
	s := MustRetrySpec(3, time.Millisecond, 2, time.Second)
	one, err := s.WithMaxAttempts(1)
	if err != nil || one.MaxAttempts() != 1 || s.MaxAttempts() != 3 {
		t.Fatalf("WithMaxAttempts(1)=%v,%v", one, err)
	}
	if _, err := s.WithMaxAttempts(0); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("err=%v, want ErrInvalidSpec", err)
	}
}
