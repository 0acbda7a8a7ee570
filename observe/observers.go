package observe

import "context"

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnWaitOutcome(context.Context, WaitEvent)   {}
func (NoopObserver) OnRetryOutcome(context.Context, RetryEvent) {}

// BaseObserver implements Observer with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnWaitOutcome(context.Context, WaitEvent)   {}
func (BaseObserver) OnRetryOutcome(context.Context, RetryEvent) {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnWaitOutcome(ctx context.Context, ev WaitEvent) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnWaitOutcome(ctx, ev)
		}
	}
}

func (m MultiObserver) OnRetryOutcome(ctx context.Context, ev RetryEvent) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnRetryOutcome(ctx, ev)
		}
	}
}

// Multi combines observers, dropping nils. It returns NoopObserver when none
// remain and the observer itself when only one does.
func Multi(observers ...Observer) Observer {
	kept := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			kept = append(kept, o)
		}
	}
	switch len(kept) {
	case 0:
		return NoopObserver{}
	case 1:
		return kept[0]
	default:
		return MultiObserver{Observers: kept}
	}
}
