// Package staleness tracks whether remote handles still refer to the entity
// they were acquired for, and classifies handle errors accordingly.
//
// Each handle moves one way: Fresh, then Stale once its generation changes
// (or, with StaleOnInvalidated, once an error shows the entity is gone). A
// Stale handle classifies every
// further error as Invalidated without looking at it. The tracker never
// re-acquires handles; callers do that and start over with a new handle (or
// Forget the old one).
package staleness

import (
	"context"
	"fmt"
	"sync"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/internal"
)

// State is the staleness state of one handle.
type State int

const (
	Fresh State = iota
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reasons reported by the tracker itself.
const (
	ReasonStale             = "handle_stale"
	ReasonGenerationChanged = "generation_changed"
)

type entry struct {
	state      State
	generation handle.Generation
	reason     string
}

// Tracker keeps per-handle state keyed by handle ID. It is safe for
// concurrent use; one Tracker is typically shared by a whole session.
type Tracker struct {
	source             handle.GenerationSource
	classifier         classify.Classifier
	staleOnInvalidated bool

	mu      sync.Mutex
	entries map[string]*entry
}

// Options configures a Tracker.
type Options struct {
	// Source reports current generations. Without one, handles only go
	// Stale through StaleOnInvalidated.
	Source handle.GenerationSource

	// Classifier classifies errors of Fresh handles. Defaults to
	// classify.DefaultSignatures().
	Classifier classify.Classifier

	// StaleOnInvalidated makes an Invalidated classifier verdict mark the
	// handle Stale even when its generation is unchanged. Off by default, so
	// a "not found" before the entity first renders leaves the handle Fresh.
	StaleOnInvalidated bool
}

// Option configures a Tracker.
type Option func(*Options)

// WithSource sets the generation source.
func WithSource(src handle.GenerationSource) Option {
	return func(o *Options) { o.Source = src }
}

// WithClassifier sets the classifier used for Fresh handles.
func WithClassifier(c classify.Classifier) Option {
	return func(o *Options) { o.Classifier = c }
}

// WithStaleOnInvalidated sets whether Invalidated classifier verdicts mark
// handles Stale.
func WithStaleOnInvalidated(on bool) Option {
	return func(o *Options) { o.StaleOnInvalidated = on }
}

// NewTracker creates a Tracker.
func NewTracker(opts ...Option) *Tracker {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return NewTrackerFromOptions(o)
}

// NewTrackerFromOptions creates a Tracker from a config struct.
func NewTrackerFromOptions(opts Options) *Tracker {
	t := &Tracker{
		source:             opts.Source,
		classifier:         opts.Classifier,
		staleOnInvalidated: opts.StaleOnInvalidated,
		entries:            make(map[string]*entry),
	}
	if internal.IsTypedNil(t.source) {
		t.source = nil
	}
	if internal.IsTypedNil(t.classifier) {
		t.classifier = classify.DefaultSignatures()
	}
	return t
}

// Observe records the current generation of h as its baseline if none is
// known yet. Drivers call it when a handle is acquired.
func (t *Tracker) Observe(ctx context.Context, h handle.Handle) error {
	if h == nil {
		return nil
	}
	if t.source == nil {
		t.mu.Lock()
		t.entryLocked(h.ID())
		t.mu.Unlock()
		return nil
	}
	gen, err := t.source.CurrentGeneration(ctx, h)
	if err != nil {
		return fmt.Errorf("settle: observe generation of %s: %w", handle.Describe(h), err)
	}
	t.mu.Lock()
	e := t.entryLocked(h.ID())
	if e.generation == handle.Unknown {
		e.generation = gen
	}
	t.mu.Unlock()
	return nil
}

// Classify classifies err raised while using h.
//
// A Stale handle is Invalidated outright. Otherwise the current generation is
// compared with the baseline; a mismatch makes the handle Stale and the
// result Invalidated. Failing that, the configured classifier decides; its
// Invalidated verdict makes the handle Stale only with StaleOnInvalidated.
func (t *Tracker) Classify(ctx context.Context, h handle.Handle, err error) classify.Verdict {
	if h == nil {
		return t.classifier.Classify(err)
	}
	id := h.ID()

	t.mu.Lock()
	if e, ok := t.entries[id]; ok && e.state == Stale {
		t.mu.Unlock()
		return classify.Verdict{Kind: classify.KindInvalidated, Reason: ReasonStale}
	}
	t.mu.Unlock()

	// The generation lookup is a remote call; it runs without the lock.
	var (
		gen    handle.Generation
		genErr error
	)
	if t.source != nil {
		gen, genErr = t.source.CurrentGeneration(ctx, h)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	if e.state == Stale {
		return classify.Verdict{Kind: classify.KindInvalidated, Reason: ReasonStale}
	}
	if genErr == nil && gen != handle.Unknown {
		switch {
		case e.generation == handle.Unknown:
			e.generation = gen
		case e.generation != gen:
			e.state = Stale
			e.reason = ReasonGenerationChanged
			return classify.Verdict{
				Kind:   classify.KindInvalidated,
				Reason: ReasonGenerationChanged,
				Attributes: map[string]string{
					"previous_generation": string(e.generation),
					"current_generation":  string(gen),
				},
			}
		}
	}

	v := t.classifier.Classify(err)
	if v.Kind == classify.KindInvalidated && t.staleOnInvalidated {
		e.state = Stale
		e.reason = v.Reason
	}
	return v
}

// State returns the state of h. Unknown handles are Fresh.
func (t *Tracker) State(h handle.Handle) State {
	if h == nil {
		return Fresh
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[h.ID()]; ok {
		return e.state
	}
	return Fresh
}

// StaleReason returns why h became Stale, or "" if it is Fresh.
func (t *Tracker) StaleReason(h handle.Handle) string {
	if h == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[h.ID()]; ok && e.state == Stale {
		return e.reason
	}
	return ""
}

// Forget drops all state for h.
func (t *Tracker) Forget(h handle.Handle) {
	if h == nil {
		return
	}
	t.mu.Lock()
	delete(t.entries, h.ID())
	t.mu.Unlock()
}

// Len returns the number of tracked handles.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ClassifierFor binds the tracker to h, for use where a classify.Classifier
// is expected (condition probes, retry specs).
func (t *Tracker) ClassifierFor(ctx context.Context, h handle.Handle) classify.Classifier {
	return classify.Func(func(err error) classify.Verdict {
		return t.Classify(ctx, h, err)
	})
}

// Predicate returns a retry predicate for operations on h: only Retryable
// verdicts retry.
func (t *Tracker) Predicate(ctx context.Context, h handle.Handle) func(error) bool {
	return classify.Predicate(t.ClassifierFor(ctx, h))
}

func (t *Tracker) entryLocked(id string) *entry {
	e, ok := t.entries[id]
	if !ok {
		e = &entry{state: Fresh}
		t.entries[id] = e
	}
	return e
}
