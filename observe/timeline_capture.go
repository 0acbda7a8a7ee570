package observe

import (
	"context"
	"sync/atomic"
)

// TimelineCapture receives the Timeline of one retried call once it has
// finished. Timeline returns nil before then.
type TimelineCapture struct {
	tl atomic.Pointer[Timeline]
}

// Timeline returns the captured timeline, or nil if the call has not
// finished. It is safe for concurrent use.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	return c.tl.Load()
}

type timelineCaptureKey struct{}

// noCapture marks a context whose ancestors requested capture for a
// different call.
type noCapture struct{}

// RecordTimeline returns a context that asks the next retried call made with
// it to publish its timeline into the returned capture.
//
//	ctx, capture := observe.RecordTimeline(ctx)
//	_, err := exec.Do(ctx, "save", spec, op)
//	for _, a := range capture.Timeline().Attempts { ... }
func RecordTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &TimelineCapture{}
	return context.WithValue(ctx, timelineCaptureKey{}, c), c
}

// TimelineCaptureFromContext returns the capture requested on ctx, if any.
func TimelineCaptureFromContext(ctx context.Context) (*TimelineCapture, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(timelineCaptureKey{}).(*TimelineCapture)
	return c, ok && c != nil
}

// WithoutTimelineCapture hides any capture on ctx from nested calls. The
// retry executor applies it to the context handed to each attempt.
func WithoutTimelineCapture(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := TimelineCaptureFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, timelineCaptureKey{}, noCapture{})
}

// StoreTimelineCapture publishes tl into c. Nil captures and timelines are
// ignored.
func StoreTimelineCapture(c *TimelineCapture, tl *Timeline) {
	if c == nil || tl == nil {
		return
	}
	c.tl.Store(tl)
}
