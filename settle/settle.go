// Package settle bundles the poller, retry executor, composite wait strategy,
// staleness tracker and presets into one Toolkit sharing a clock and an
// observer.
//
//	tk := settle.New(settle.WithObserver(observe.NewLogObserver(logger)))
//	out, err := tk.WaitFor(ctx, button, policy.PresetDefault,
//		condition.Visible(probe), condition.Interactable(probe))
package settle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/condition"
	"github.com/aponysus/settle/handle"
	"github.com/aponysus/settle/internal"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/poll"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/retry"
	"github.com/aponysus/settle/staleness"
	"github.com/aponysus/settle/wait"
)

// Toolkit is the assembled set of primitives. Its fields are built once and
// may be used directly; the methods cover the common preset-driven calls.
type Toolkit struct {
	Poller   *poll.Poller
	Executor *retry.Executor
	Strategy *wait.Strategy
	Tracker  *staleness.Tracker
	Presets  policy.Presets
	Observer observe.Observer
}

// Options configures a Toolkit.
type Options struct {
	Observer observe.Observer
	Clock    func() time.Time
	Sleep    func(context.Context, time.Duration) error

	// Presets defaults to policy.DefaultPresets().
	Presets *policy.Presets

	// GenerationSource lets the tracker detect replaced handles.
	GenerationSource handle.GenerationSource
	// Classifier is used by the tracker and for executor backoff overrides.
	Classifier classify.Classifier

	// EvaluationRetry, when set, names the retry preset used to re-evaluate
	// Invalidated condition results in place.
	EvaluationRetry string

	RecoverPanics bool
}

// Option configures a Toolkit.
type Option func(*Options)

// WithObserver sets the observer shared by all components.
func WithObserver(o observe.Observer) Option {
	return func(opts *Options) { opts.Observer = o }
}

// WithClock sets the clock shared by all components.
func WithClock(f func() time.Time) Option {
	return func(opts *Options) { opts.Clock = f }
}

// WithSleep sets the sleep function shared by all components.
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(opts *Options) { opts.Sleep = f }
}

// WithPresets replaces the default presets.
func WithPresets(p policy.Presets) Option {
	return func(opts *Options) { opts.Presets = &p }
}

// WithGenerationSource sets the tracker's generation source.
func WithGenerationSource(src handle.GenerationSource) Option {
	return func(opts *Options) { opts.GenerationSource = src }
}

// WithClassifier sets the classifier used by the tracker and the executor.
func WithClassifier(c classify.Classifier) Option {
	return func(opts *Options) { opts.Classifier = c }
}

// WithEvaluationRetry re-evaluates Invalidated results under the named retry
// preset.
func WithEvaluationRetry(preset string) Option {
	return func(opts *Options) { opts.EvaluationRetry = preset }
}

// WithRecoverPanics sets whether panics in conditions and operations are
// reported as errors.
func WithRecoverPanics(recover bool) Option {
	return func(opts *Options) { opts.RecoverPanics = recover }
}

// New creates a Toolkit.
func New(opts ...Option) (*Toolkit, error) {
	var cfg Options
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return NewFromOptions(cfg)
}

// NewFromOptions creates a Toolkit from a config struct. It fails only when
// EvaluationRetry names an unknown preset.
func NewFromOptions(opts Options) (*Toolkit, error) {
	obs := opts.Observer
	if internal.IsTypedNil(obs) {
		obs = observe.NoopObserver{}
	}
	presets := policy.DefaultPresets()
	if opts.Presets != nil {
		presets = *opts.Presets
	}

	poller := poll.NewFromOptions(poll.Options{
		Observer:      obs,
		Clock:         opts.Clock,
		Sleep:         opts.Sleep,
		RecoverPanics: opts.RecoverPanics,
	})
	exec := retry.NewExecutorFromOptions(retry.ExecutorOptions{
		Observer:      obs,
		Clock:         opts.Clock,
		Sleep:         opts.Sleep,
		Classifier:    opts.Classifier,
		RecoverPanics: opts.RecoverPanics,
	})

	stratOpts := wait.Options{Poller: poller, Observer: obs}
	if opts.EvaluationRetry != "" {
		spec, err := presets.Retry(opts.EvaluationRetry)
		if err != nil {
			return nil, err
		}
		stratOpts.EvaluationRetry = exec
		stratOpts.EvaluationRetrySpec = spec
	}

	return &Toolkit{
		Poller:   poller,
		Executor: exec,
		Strategy: wait.NewFromOptions(stratOpts),
		Tracker: staleness.NewTrackerFromOptions(staleness.Options{
			Source:     opts.GenerationSource,
			Classifier: opts.Classifier,
		}),
		Presets:  presets,
		Observer: obs,
	}, nil
}

// WaitFor waits for conds on h in order, under the named wait preset.
func (tk *Toolkit) WaitFor(ctx context.Context, h handle.Handle, preset string, conds ...condition.Condition) (observe.Outcome, error) {
	spec, err := tk.Presets.Wait(preset)
	if err != nil {
		return observe.Outcome{LastError: err}, err
	}
	return tk.Strategy.WaitUntilReady(ctx, h, spec.WithConditions(conds...), wait.Named(preset))
}

// Poll waits for a single condition under the named wait preset.
func (tk *Toolkit) Poll(ctx context.Context, h handle.Handle, preset string, cond condition.Condition) (observe.Outcome, error) {
	spec, err := tk.Presets.Wait(preset)
	if err != nil {
		return observe.Outcome{LastError: err}, err
	}
	return tk.Poller.Poll(ctx, h, cond, spec.Timeout(), spec.PollInterval(), poll.MaxInvalidations(spec.MaxInvalidations()))
}

// Retry runs op under the named retry preset.
func (tk *Toolkit) Retry(ctx context.Context, name, preset string, op retry.Operation) (observe.Outcome, error) {
	spec, err := tk.Presets.Retry(preset)
	if err != nil {
		return observe.Outcome{LastError: err}, err
	}
	return tk.Executor.Do(ctx, name, spec, op)
}

// RetryOn runs op against h under the named retry preset. Failures are
// classified by the tracker, so an operation on a replaced handle stops
// instead of retrying.
func (tk *Toolkit) RetryOn(ctx context.Context, h handle.Handle, name, preset string, op retry.Operation) (observe.Outcome, error) {
	spec, err := tk.Presets.Retry(preset)
	if err != nil {
		return observe.Outcome{LastError: err}, err
	}
	return tk.Executor.Do(ctx, name, spec.WithPredicate(tk.Tracker.Predicate(ctx, h)), op)
}

// DoValue runs op under the named retry preset and returns its value.
func DoValue[T any](ctx context.Context, tk *Toolkit, name, preset string, op retry.OperationValue[T]) (T, observe.Outcome, error) {
	spec, err := tk.Presets.Retry(preset)
	if err != nil {
		var zero T
		return zero, observe.Outcome{LastError: err}, err
	}
	return retry.DoValue(ctx, tk.Executor, name, spec, op)
}

var global atomic.Pointer[Toolkit]

// Init sets the Toolkit returned by Default.
func Init(tk *Toolkit) {
	global.Store(tk)
}

// Default returns the Toolkit set by Init, or one built with default
// options.
func Default() *Toolkit {
	if tk := global.Load(); tk != nil {
		return tk
	}
	tk, _ := New()
	if global.CompareAndSwap(nil, tk) {
		return tk
	}
	return global.Load()
}
