package settle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type recordingObserver struct {
	observe.BaseObserver
	mu    sync.Mutex
	waits []observe.WaitEvent
}

func (r *recordingObserver) OnWaitOutcome(_ context.Context, ev observe.WaitEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, ev)
}

func newToolkit(t *testing.T, opts ...Option) (*Toolkit, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	all := append([]Option{WithClock(clk.Now), WithSleep(clk.Sleep)}, opts...)
	tk, err := New(all...)
	require.NoError(t, err)
	return tk, clk
}

func afterN(name string, n int) condition.Condition {
	calls := 0
	return condition.New(name, func(context.Context, handle.Handle) condition.Result {
		calls++
		if calls >= n {
			return condition.Satisfied(name)
		}
		return condition.Pending()
	})
}

func TestToolkit_WaitFor(t *testing.T) {
	obs := &recordingObserver{}
	tk, clk := newToolkit(t, WithObserver(obs))
	h := handle.Ref{Key: "1", Label: "button#save"}

	out, err := tk.WaitFor(context.Background(), h, policy.PresetDefault, afterN("visible", 1), afterN("interactable", 3))
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 4, out.Attempts)
	assert.Equal(t, "interactable", out.Value)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, clk.sleeps)

	require.Len(t, obs.waits, 3)
	last := obs.waits[2]
	assert.True(t, last.Composite)
	assert.Equal(t, policy.PresetDefault, last.Name)
	assert.Equal(t, "button#save", last.Handle)
}

func TestToolkit_UnknownPreset(t *testing.T) {
	tk, _ := newToolkit(t)
	h := handle.Ref{Key: "1"}

	_, err := tk.WaitFor(context.Background(), h, "nope")
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)

	out, err := tk.Poll(context.Background(), h, "nope", afterN("visible", 1))
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)
	assert.ErrorIs(t, out.LastError, policy.ErrUnknownPreset)

	_, err = tk.Retry(context.Background(), "save", "nope", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)

	_, err = New(WithEvaluationRetry("nope"))
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)
}

func TestToolkit_Poll(t *testing.T) {
	tk, clk := newToolkit(t)

	out, err := tk.Poll(context.Background(), handle.Ref{Key: "1"}, policy.PresetShort, afterN("exists", 2))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clk.sleeps)
}

func TestToolkit_Retry(t *testing.T) {
	tk, clk := newToolkit(t)
	calls := 0

	out, err := tk.Retry(context.Background(), "save", policy.PresetDefaultRetry, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.sleeps)
}

func TestToolkit_RetryOnReplacedHandle(t *testing.T) {
	gen := handle.Generation("g1")
	src := handle.GenerationFunc(func(context.Context, handle.Handle) (handle.Generation, error) {
		return gen, nil
	})
	tk, clk := newToolkit(t, WithGenerationSource(src))
	h := handle.Ref{Key: "row-7", Label: "row 7"}
	ctx := context.Background()

	require.NoError(t, tk.Tracker.Observe(ctx, h))
	gen = "g2"

	calls := 0
	out, err := tk.RetryOn(ctx, h, "click", policy.PresetDefaultRetry, func(context.Context) error {
		calls++
		return errors.New("element is not attached")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrNonRetryable)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, clk.sleeps)
}

func TestDoValue(t *testing.T) {
	tk, _ := newToolkit(t)

	v, out, err := DoValue(context.Background(), tk, "load", policy.PresetDefaultRetry, func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 42, out.Value)

	_, _, err = DoValue(context.Background(), tk, "load", "nope", func(context.Context) (int, error) {
		return 0, nil
	})
	assert.ErrorIs(t, err, policy.ErrUnknownPreset)
}

func TestToolkit_EvaluationRetry(t *testing.T) {
	tk, _ := newToolkit(t, WithEvaluationRetry(policy.PresetDefaultRetry))
	calls := 0
	flicker := condition.New("attached", func(context.Context, handle.Handle) condition.Result {
		calls++
		if calls == 1 {
			return condition.Invalidated(errors.New("re-rendered"))
		}
		return condition.Satisfied(nil)
	})

	out, err := tk.WaitFor(context.Background(), handle.Ref{Key: "1"}, policy.PresetShort, flicker)
	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, out.Attempts)
}

func TestDefault(t *testing.T) {
	t.Cleanup(func() { global.Store(nil) })

	d := Default()
	require.NotNil(t, d)
	assert.Same(t, d, Default())

	custom, err := New()
	require.NoError(t, err)
	Init(custom)
	assert.Same(t, custom, Default())
}
