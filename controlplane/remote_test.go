package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aponysus/settle/httpx"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

// MockSource is a Source for testing.
type MockSource struct {
	FetchFunc func(ctx context.Context, profile string) ([]byte, error)
	Calls     int32
}

func (m *MockSource) Fetch(ctx context.Context, profile string) ([]byte, error) {
	atomic.AddInt32(&m.Calls, 1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, profile)
	}
	return nil, ErrPresetsNotFound
}

const ciDoc = "waits:\n  default: {timeout: 20s}\n"

func defaultTimeout(t *testing.T, ps policy.Presets) time.Duration {
	t.Helper()
	w, err := ps.Wait(policy.PresetDefault)
	if err != nil {
		t.Fatalf("default preset: %v", err)
	}
	return w.Timeout()
}

func TestRemoteProvider_CacheHit(t *testing.T) {
	source := &MockSource{
		FetchFunc: func(context.Context, string) ([]byte, error) {
			return []byte(ciDoc), nil
		},
	}
	provider := NewRemoteProvider(source, WithCacheTTL(time.Minute))

	ps, err := provider.Presets(context.Background(), "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := defaultTimeout(t, ps); got != 20*time.Second {
		t.Errorf("timeout=%v, want 20s", got)
	}

	if _, err := provider.Presets(context.Background(), "ci"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&source.Calls) != 1 {
		t.Errorf("expected 1 call to source (cached), got %d", source.Calls)
	}

	provider.Invalidate("ci")
	if _, err := provider.Presets(context.Background(), "ci"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&source.Calls) != 2 {
		t.Errorf("expected refetch after invalidate, got %d calls", source.Calls)
	}
}

func TestRemoteProvider_NegativeCache(t *testing.T) {
	source := &MockSource{}
	provider := NewRemoteProvider(source, WithNegativeCacheTTL(10*time.Minute))

	for i := 0; i < 2; i++ {
		_, err := provider.Presets(context.Background(), "missing")
		if !errors.Is(err, ErrPresetsNotFound) {
			t.Fatalf("want ErrPresetsNotFound, got %v", err)
		}
	}
	if atomic.LoadInt32(&source.Calls) != 1 {
		t.Errorf("expected 1 call to source, got %d", source.Calls)
	}
}

func TestRemoteProvider_LastKnownGood(t *testing.T) {
	var fail atomic.Bool
	source := &MockSource{
		FetchFunc: func(context.Context, string) ([]byte, error) {
			if fail.Load() {
				return nil, fmt.Errorf("%w: connection refused", ErrPresetsFetchFailed)
			}
			return []byte(ciDoc), nil
		},
	}
	provider := NewRemoteProvider(source)

	if _, err := provider.Presets(context.Background(), "ci"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fail.Store(true)
	provider.Invalidate("ci")

	ps, err := provider.Presets(context.Background(), "ci")
	if !errors.Is(err, ErrProviderUnavailable) || !errors.Is(err, ErrPresetsFetchFailed) {
		t.Fatalf("want ErrProviderUnavailable wrapping fetch failure, got %v", err)
	}
	if got := defaultTimeout(t, ps); got != 20*time.Second {
		t.Errorf("fallback timeout=%v, want 20s", got)
	}
}

func TestRemoteProvider_InvalidDocumentNotCached(t *testing.T) {
	source := &MockSource{
		FetchFunc: func(context.Context, string) ([]byte, error) {
			return []byte("waits:\n  default: {timeout: 1s, poll_interval: 2s}\n"), nil
		},
	}
	provider := NewRemoteProvider(source)

	for i := 0; i < 2; i++ {
		_, err := provider.Presets(context.Background(), "ci")
		if !errors.Is(err, policy.ErrInvalidSpec) {
			t.Fatalf("want ErrInvalidSpec, got %v", err)
		}
	}
	if atomic.LoadInt32(&source.Calls) != 2 {
		t.Errorf("invalid document must not be cached, got %d calls", source.Calls)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ci.yaml"), []byte(ciDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	src := FileSource{Dir: dir}

	data, err := src.Fetch(context.Background(), "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != ciDoc {
		t.Fatalf("got %q", data)
	}

	if _, err := src.Fetch(context.Background(), "local"); !errors.Is(err, ErrPresetsNotFound) {
		t.Fatalf("want ErrPresetsNotFound, got %v", err)
	}
	if _, err := src.Fetch(context.Background(), "../etc"); !errors.Is(err, errBadProfile) {
		t.Fatalf("want errBadProfile, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/presets/ci.yaml":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, ciDoc)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	spec := policy.MustRetrySpec(3, time.Millisecond, 1, time.Millisecond)
	src := HTTPSource{
		BaseURL:  server.URL + "/presets/",
		Client:   server.Client(),
		Executor: httpx.NewExecutor(retry.WithSleep(func(context.Context, time.Duration) error { return nil })),
		Retry:    &spec,
	}
	provider := NewRemoteProvider(src)

	ps, err := provider.Presets(context.Background(), "ci")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := defaultTimeout(t, ps); got != 20*time.Second {
		t.Errorf("timeout=%v, want 20s", got)
	}
	if hits.Load() != 2 {
		t.Errorf("expected one retried 503, got %d hits", hits.Load())
	}

	if _, err := provider.Presets(context.Background(), "nightly"); !errors.Is(err, ErrPresetsNotFound) {
		t.Fatalf("want ErrPresetsNotFound, got %v", err)
	}
}
