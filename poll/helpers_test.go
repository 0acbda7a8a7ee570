package poll

import (
	"context"
	"sync"
	"time"

	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/observe"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type recordingObserver struct {
	observe.BaseObserver
	mu    sync.Mutex
	waits []observe.WaitEvent
}

func (r *recordingObserver) OnWaitOutcome(_ context.Context, ev observe.WaitEvent) {
	r.mu.Lock()
	r.waits = append(r.waits, ev)
	r.mu.Unlock()
}

func (r *recordingObserver) events() []observe.WaitEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.WaitEvent(nil), r.waits...)
}

func newTestPoller(clock *fakeClock, obs observe.Observer, opts ...Option) *Poller {
	all := append([]Option{WithClock(clock.Now), WithSleep(clock.Sleep), WithObserver(obs)}, opts...)
	return New(all...)
}

var testHandle = handle.Ref{Key: "h1", Label: "button#submit"}

func scripted(name string, results ...condition.Result) (condition.Condition, *int) {
	calls := new(int)
	return condition.New(name, func(context.Context, handle.Handle) condition.Result {
		i := *calls
		*calls++
		if i < len(results) {
			return results[i]
		}
		return results[len(results)-1]
	}), calls
}

func durationsEqual(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
