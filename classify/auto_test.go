package classify

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type httpErr struct {
	status int
	method string
}

func (e httpErr) Error() string                     { return "http err" }
func (e httpErr) HTTPStatusCode() int               { return e.status }
func (e httpErr) HTTPMethod() string                { return e.method }
func (e httpErr) RetryAfter() (time.Duration, bool) { return 0, false }

func TestAutoClassifier_HTTPError(t *testing.T) {
	out := AutoClassifier{}.Classify(httpErr{status: 500, method: "GET"})
	if out.Kind != KindRetryable || out.Reason != "http_5xx" {
		t.Fatalf("out=%+v, want retryable http_5xx", out)
	}
}

func TestAutoClassifier_WrappedHTTPError(t *testing.T) {
	out := AutoClassifier{}.Classify(fmt.Errorf("fetch: %w", httpErr{status: 404, method: "GET"}))
	if out.Kind != KindInvalidated {
		t.Fatalf("out=%+v, want invalidated", out)
	}
}

func TestAutoClassifier_NonHTTPError(t *testing.T) {
	out := AutoClassifier{}.Classify(errors.New("boom"))
	if out.Kind != KindFatal || out.Reason != "unrecognized_error" {
		t.Fatalf("out=%+v, want fatal unrecognized_error", out)
	}
}
