package controlplane

import (
	"testing"
	"time"

	"github.com/aponysus/settle/policy"
)

func TestPresetsCache_SetGetAndInvalidate(t *testing.T) {
	cache := NewPresetsCache()
	ps := policy.DefaultPresets()

	cache.Set("ci", ps, 50*time.Millisecond)
	got, found, negative := cache.Get("ci")
	if !found || negative {
		t.Fatalf("expected positive cache hit")
	}
	if len(got.WaitNames()) != 3 {
		t.Fatalf("got %d wait presets, want 3", len(got.WaitNames()))
	}

	cache.SetMissing("ci", 50*time.Millisecond)
	_, found, negative = cache.Get("ci")
	if !found || !negative {
		t.Fatalf("expected negative cache hit")
	}

	cache.Invalidate("ci")
	_, found, negative = cache.Get("ci")
	if found || negative {
		t.Fatalf("expected cache miss after invalidate")
	}
	if _, ok := cache.LastGood("ci"); !ok {
		t.Fatalf("expected last-known-good to survive invalidate")
	}
}

func TestPresetsCache_Expiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cache := NewPresetsCache()
	cache.nowFn = clock.Now

	cache.Set("ci", policy.DefaultPresets(), 10*time.Millisecond)
	clock.Advance(20 * time.Millisecond)

	_, found, negative := cache.Get("ci")
	if found || negative {
		t.Fatalf("expected expired cache entry to miss")
	}
	if _, ok := cache.LastGood("ci"); !ok {
		t.Fatalf("expected last-known-good after expiry")
	}
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}
