package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Built-in classifier registry names.
const (
	ClassifierAlwaysRetry = "always"
	ClassifierSignatures  = "signatures"
	ClassifierHTTP        = "http"
	ClassifierAuto        = "auto"
)

// RegisterBuiltins registers core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierAlwaysRetry, AlwaysRetry{})
	reg.Register(ClassifierSignatures, DefaultSignatures())
	reg.Register(ClassifierHTTP, HTTPClassifier{})
	reg.Register(ClassifierAuto, AutoClassifier{})
}

// AlwaysRetry classifies every error as retryable, except context cancellation
// which is fatal.
type AlwaysRetry struct{}

func (AlwaysRetry) Classify(err error) Verdict {
	if err == nil {
		return Verdict{Kind: KindUnknown, Reason: "no_error"}
	}
	if errors.Is(err, context.Canceled) {
		return Verdict{Kind: KindFatal, Reason: "context_canceled"}
	}
	return Verdict{Kind: KindRetryable, Reason: "retryable_error"}
}

// InvalidationMarker may be implemented by driver errors that know the handle
// they were raised for is gone.
type InvalidationMarker interface {
	HandleInvalidated() bool
}

// TemporaryMarker may be implemented by driver errors that know they are transient.
type TemporaryMarker interface {
	Temporary() bool
}

// IdentityCheckError wraps a failure raised while the driver was verifying a
// handle's identity (for example re-reading its generation).
type IdentityCheckError struct {
	Err error
}

func (e *IdentityCheckError) Error() string {
	if e == nil || e.Err == nil {
		return "identity check failed"
	}
	return "identity check: " + e.Err.Error()
}

func (e *IdentityCheckError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Signatures classifies errors by matching their text against known
// signatures. Matching is case-insensitive. Errors matching neither list are
// fatal, so programming errors are never mistaken for flakiness.
type Signatures struct {
	// Invalidated lists substrings that mean the remote entity is gone.
	Invalidated []string
	// Retryable lists substrings that mean the failure is transient.
	Retryable []string
	// IdentityInvalidated lists substrings that mean invalidation only when the
	// error was raised during an identity check.
	IdentityInvalidated []string
}

// DefaultSignatures returns the signature sets used for browser elements and
// HTTP session resources.
func DefaultSignatures() Signatures {
	return Signatures{
		Invalidated: []string{
			"not found",
			"no such element",
			"detached",
			"stale element reference",
		},
		Retryable: []string{
			"temporarily unavailable",
			"timeout",
			"timed out",
			"connection refused",
		},
		IdentityInvalidated: []string{
			"connection reset by peer",
		},
	}
}

func (s Signatures) Classify(err error) Verdict {
	if err == nil {
		return Verdict{Kind: KindUnknown, Reason: "no_error"}
	}
	if errors.Is(err, context.Canceled) {
		return Verdict{Kind: KindFatal, Reason: "context_canceled"}
	}

	var inv InvalidationMarker
	if errors.As(err, &inv) && inv.HandleInvalidated() {
		return Verdict{Kind: KindInvalidated, Reason: "marked_invalidated"}
	}

	msg := strings.ToLower(err.Error())

	var ice *IdentityCheckError
	if errors.As(err, &ice) {
		if sig, ok := matchSignature(msg, s.IdentityInvalidated); ok {
			return signatureVerdict(KindInvalidated, "identity_check_failed", sig)
		}
	}
	if sig, ok := matchSignature(msg, s.Invalidated); ok {
		return signatureVerdict(KindInvalidated, "handle_invalidated", sig)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Verdict{Kind: KindRetryable, Reason: "context_deadline_exceeded"}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Verdict{Kind: KindRetryable, Reason: "connection_refused"}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Verdict{Kind: KindRetryable, Reason: "net_timeout"}
	}
	var tmp TemporaryMarker
	if errors.As(err, &tmp) && tmp.Temporary() {
		return Verdict{Kind: KindRetryable, Reason: "marked_temporary"}
	}
	if sig, ok := matchSignature(msg, s.Retryable); ok {
		return signatureVerdict(KindRetryable, "transient_error", sig)
	}

	return Verdict{Kind: KindFatal, Reason: "unrecognized_error"}
}

func matchSignature(msg string, sigs []string) (string, bool) {
	for _, sig := range sigs {
		if sig == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(sig)) {
			return sig, true
		}
	}
	return "", false
}

func signatureVerdict(kind Kind, reason, sig string) Verdict {
	return Verdict{
		Kind:       kind,
		Reason:     reason,
		Attributes: map[string]string{"signature": sig},
	}
}
