package retry

import (
	"context"
	"sync"
	"time"

	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
)

type recordingObserver struct {
	observe.BaseObserver
	mu     sync.Mutex
	events []observe.RetryEvent
}

func (r *recordingObserver) OnRetryOutcome(_ context.Context, ev observe.RetryEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingObserver) snapshot() []observe.RetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observe.RetryEvent(nil), r.events...)
}

// newTestExecutor returns an executor whose sleeps advance a fake clock and
// are recorded in *slept.
func newTestExecutor(obs observe.Observer, opts ...ExecutorOption) (*Executor, *[]time.Duration) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	slept := &[]time.Duration{}

	base := []ExecutorOption{
		WithObserver(obs),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			now = now.Add(d)
			*slept = append(*slept, d)
			mu.Unlock()
			return nil
		}),
	}
	return NewExecutor(append(base, opts...)...), slept
}

func spec(attempts int, initial time.Duration, mult float64, max time.Duration, opts ...policy.RetryOption) policy.RetrySpec {
	return policy.MustRetrySpec(attempts, initial, mult, max, opts...)
}
