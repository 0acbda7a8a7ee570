// Package httpx applies the retry and wait primitives to HTTP session
// resources.
package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

// drainLimit bounds how much of a failed response body is read before it is
// closed.
const drainLimit = 4096

// ErrBodyNotReplayable is returned when a request with a body cannot be sent
// more than once.
var ErrBodyNotReplayable = errors.New("settle: request body is not replayable (GetBody is nil)")

// Classifier is the classifier used for HTTP failures.
var Classifier classify.Classifier = classify.HTTPClassifier{}

// NewExecutor returns an executor that honours Retry-After headers through
// the HTTP classifier's backoff override. Later options win.
func NewExecutor(opts ...retry.ExecutorOption) *retry.Executor {
	all := append([]retry.ExecutorOption{retry.WithClassifier(Classifier)}, opts...)
	return retry.NewExecutor(all...)
}

// RetrySpec returns base with its predicate replaced by HTTP classification:
// transport errors, 5xx, 408 and 429 are retried for idempotent methods only.
func RetrySpec(base policy.RetrySpec) policy.RetrySpec {
	return base.WithPredicate(classify.Predicate(Classifier))
}

// DoHTTP sends req under spec, retrying per HTTP classification. The request
// is cloned for every attempt and failed response bodies are drained and
// closed. On success the caller owns the response body.
//
// The returned timeline lists every attempt.
func DoHTTP(ctx context.Context, exec *retry.Executor, name string, spec policy.RetrySpec, client *http.Client, req *http.Request) (*http.Response, observe.Timeline, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, observe.Timeline{}, ErrBodyNotReplayable
	}
	if client == nil {
		client = http.DefaultClient
	}

	op := func(ctx context.Context) (*http.Response, error) {
		return send(ctx, client, req)
	}

	ctx, capture := observe.RecordTimeline(ctx)
	resp, _, err := retry.DoValue(ctx, exec, name, RetrySpec(spec), op)

	var tl observe.Timeline
	if t := capture.Timeline(); t != nil {
		tl = *t
	}
	return resp, tl, err
}

// send performs one attempt. Any non-2xx response is turned into a
// *StatusError with its body released.
func send(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}

	resp, err := client.Do(out)
	if err != nil {
		// Status 0 marks a transport error for the classifier.
		return nil, &StatusError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	_, _ = io.CopyN(io.Discard, resp.Body, drainLimit)
	resp.Body.Close()

	return nil, &StatusError{
		Code:   resp.StatusCode,
		Method: req.Method,
		URL:    req.URL.String(),
		Header: resp.Header,
	}
}

// StatusError is a failed HTTP exchange. It implements classify.HTTPError.
type StatusError struct {
	Code   int
	Method string
	URL    string
	Header http.Header
	Err    error
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	msg := "http status " + strconv.Itoa(e.Code)
	if e.URL != "" {
		msg = e.Method + " " + e.URL + ": " + msg
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Code }
func (e *StatusError) HTTPMethod() string  { return e.Method }

// RetryAfter parses the Retry-After header as delta seconds or an HTTP date.
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	s := e.Header.Get("Retry-After")
	if s == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
