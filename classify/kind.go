package classify

import (
	"fmt"
	"time"
)

// Kind is the classification of a failure against a remote entity.
type Kind int

const (
	KindUnknown Kind = iota
	// KindRetryable means the failure is transient; retry in place.
	KindRetryable
	// KindInvalidated means the handle no longer refers to a live entity and
	// must be re-acquired by the caller.
	KindInvalidated
	// KindFatal means the failure is a genuine fault; do not retry.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindInvalidated:
		return "invalidated"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Verdict describes the classification of a single error.
type Verdict struct {
	Kind   Kind
	Reason string

	// Attributes carries classifier-specific detail (status code, matched signature).
	Attributes map[string]string

	// BackoffOverride, when set, replaces the computed backoff before the next attempt.
	BackoffOverride time.Duration
}

// Classifier maps an error to a Verdict.
type Classifier interface {
	Classify(err error) Verdict
}

// Func adapts a function to Classifier.
type Func func(err error) Verdict

func (f Func) Classify(err error) Verdict { return f(err) }

// Predicate returns a retryable predicate backed by c, suitable for
// policy.RetryIf. Only KindRetryable verdicts are retried.
func Predicate(c Classifier) func(error) bool {
	return func(err error) bool {
		if err == nil || c == nil {
			return false
		}
		return c.Classify(err).Kind == KindRetryable
	}
}

// PredicateWithInvalidated is like Predicate but also retries KindInvalidated
// verdicts, for operations that re-acquire their handle on every attempt.
func PredicateWithInvalidated(c Classifier) func(error) bool {
	return func(err error) bool {
		if err == nil || c == nil {
			return false
		}
		switch c.Classify(err).Kind {
		case KindRetryable, KindInvalidated:
			return true
		default:
			return false
		}
	}
}
