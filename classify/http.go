package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPError lets the HTTP classifier read status, method and Retry-After
// from an error without importing the package that produced it. Transport
// failures report status 0.
type HTTPError interface {
	HTTPStatusCode() int
	HTTPMethod() string
	RetryAfter() (time.Duration, bool)
}

// HTTPClassifier classifies failures of operations on HTTP session
// resources.
//
// Gone statuses (404 and 410 unless Invalidating is set) mean the resource
// behind the handle was replaced or deleted. Transport errors, 5xx, 408 and
// 429 are retried, but only for idempotent methods. Anything else is fatal.
type HTTPClassifier struct {
	// Retryable4xx adds retryable 4xx statuses.
	Retryable4xx map[int]struct{}
	// Invalidating replaces the set of statuses that invalidate the handle.
	Invalidating map[int]struct{}
}

func (c HTTPClassifier) Classify(err error) Verdict {
	switch {
	case err == nil:
		return Verdict{Kind: KindUnknown, Reason: "no_error"}
	case errors.Is(err, context.Canceled):
		return Verdict{Kind: KindFatal, Reason: "context_canceled"}
	case errors.Is(err, context.DeadlineExceeded):
		return Verdict{Kind: KindRetryable, Reason: "context_deadline_exceeded"}
	}

	var he HTTPError
	if !errors.As(err, &he) {
		return Verdict{
			Kind:   KindFatal,
			Reason: "classifier_type_mismatch",
			Attributes: map[string]string{
				"expected_type": "classify.HTTPError",
				"got_type":      fmt.Sprintf("%T", err),
			},
		}
	}

	status := he.HTTPStatusCode()
	method := strings.ToUpper(strings.TrimSpace(he.HTTPMethod()))
	v := Verdict{
		Attributes: map[string]string{
			"status": strconv.Itoa(status),
			"method": method,
		},
	}
	v.Kind, v.Reason = c.statusVerdict(status)

	if v.Kind == KindRetryable {
		if !idempotent(method) {
			v.Kind, v.Reason = KindFatal, "http_non_idempotent"
			return v
		}
		if d, ok := he.RetryAfter(); ok && d > 0 && (status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable || c.inSet(c.Retryable4xx, status)) {
			v.BackoffOverride = d
			v.Attributes["retry_after"] = d.String()
		}
	}
	return v
}

// statusVerdict maps a status code to a kind, ignoring the method.
func (c HTTPClassifier) statusVerdict(status int) (Kind, string) {
	gone := c.Invalidating
	if gone == nil {
		gone = defaultGone
	}
	switch {
	case c.inSet(gone, status):
		return KindInvalidated, "http_resource_gone"
	case status == 0:
		return KindRetryable, "http_transport_error"
	case status >= 500 && status <= 599:
		return KindRetryable, "http_5xx"
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, c.inSet(c.Retryable4xx, status):
		return KindRetryable, "http_" + strconv.Itoa(status)
	default:
		return KindFatal, "http_non_retryable_status"
	}
}

var defaultGone = map[int]struct{}{
	http.StatusNotFound: {},
	http.StatusGone:     {},
}

func (HTTPClassifier) inSet(set map[int]struct{}, status int) bool {
	_, ok := set[status]
	return ok
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
