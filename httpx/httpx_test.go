package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

type sleepRecorder struct {
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return nil
}

func newExecutor(t *testing.T) (*retry.Executor, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	return NewExecutor(retry.WithSleep(rec.sleep)), rec
}

func spec() policy.RetrySpec {
	return policy.MustRetrySpec(3, 100*time.Millisecond, 2, 5*time.Second)
}

func TestDoHTTP_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Hello")
	}))
	defer server.Close()

	exec, _ := newExecutor(t)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, tl, err := DoHTTP(context.Background(), exec, "hello", spec(), server.Client(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello", strings.TrimSpace(string(body)))
	assert.Len(t, tl.Attempts, 1)
	assert.Equal(t, "hello", tl.Operation)
}

func TestDoHTTP_RetryOn503(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "try later")
			return
		}
		fmt.Fprintln(w, "Success")
	}))
	defer server.Close()

	exec, rec := newExecutor(t)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, tl, err := DoHTTP(context.Background(), exec, "fetch", spec(), server.Client(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, tl.Attempts, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.sleeps)
}

func TestDoHTTP_RespectsRetryAfter(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec, rec := newExecutor(t)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, _, err := DoHTTP(context.Background(), exec, "throttled", spec(), server.Client(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []time.Duration{time.Second}, rec.sleeps)
}

func TestDoHTTP_NonRetryableStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	exec, rec := newExecutor(t)
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, tl, err := DoHTTP(context.Background(), exec, "bad", spec(), server.Client(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrNonRetryable)

	var st *StatusError
	require.ErrorAs(t, err, &st)
	assert.Equal(t, http.StatusBadRequest, st.Code)
	assert.Len(t, tl.Attempts, 1)
	assert.Empty(t, rec.sleeps)
}

func TestDoHTTP_NonIdempotentNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	exec, _ := newExecutor(t)
	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	_, _, err = DoHTTP(context.Background(), exec, "create", spec(), server.Client(), req)
	assert.ErrorIs(t, err, retry.ErrNonRetryable)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDoHTTP_ReplaysBody(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	exec, _ := newExecutor(t)
	req, err := http.NewRequest(http.MethodPut, server.URL, strings.NewReader("payload"))
	require.NoError(t, err)

	resp, _, err := DoHTTP(context.Background(), exec, "put", spec(), server.Client(), req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []string{"payload", "payload"}, bodies)
}

func TestDoHTTP_BodyNotReplayable(t *testing.T) {
	req, err := http.NewRequest(http.MethodPut, "http://example.invalid", io.NopCloser(strings.NewReader("x")))
	require.NoError(t, err)
	req.GetBody = nil

	_, _, err = DoHTTP(context.Background(), nil, "put", spec(), nil, req)
	assert.ErrorIs(t, err, ErrBodyNotReplayable)
}

func TestStatusError(t *testing.T) {
	var nilErr *StatusError
	assert.Equal(t, "<nil>", nilErr.Error())

	e := &StatusError{Code: 503, Method: http.MethodGet, URL: "http://x/y"}
	assert.Equal(t, "GET http://x/y: http status 503", e.Error())

	transport := errors.New("connection refused")
	wrapped := &StatusError{Method: http.MethodGet, Err: transport}
	assert.ErrorIs(t, wrapped, transport)
	assert.Equal(t, classify.KindRetryable, Classifier.Classify(wrapped).Kind)

	tests := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{"missing", "", 0, false},
		{"seconds", "3", 3 * time.Second, true},
		{"past date", "Mon, 02 Jan 2006 15:04:05 GMT", 0, true},
		{"garbage", "soon", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Retry-After", tt.header)
			}
			d, ok := (&StatusError{Header: h}).RetryAfter()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, d)
		})
	}
}
