package condition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aponysus/settle/handle"
)

// Names of the builtin conditions.
const (
	NameExists       = "exists"
	NameVisible      = "visible"
	NameInteractable = "interactable"
	NameStable       = "stable"
	NameTextEquals   = "text_equals"
	NameTextContains = "text_contains"
	NameCountEquals  = "count_equals"
	NameCountAtLeast = "count_at_least"
)

// DefaultSampleInterval separates the two geometry samples of Stable.
const DefaultSampleInterval = 50 * time.Millisecond

// Exists is Satisfied once the entity is present in the remote model.
func Exists(probe BoolProbe, opts ...ProbeOption) Condition {
	return Check(NameExists, probe, opts...)
}

// Visible is Satisfied once the entity is rendered and visible.
func Visible(probe BoolProbe, opts ...ProbeOption) Condition {
	return Check(NameVisible, probe, opts...)
}

// Interactable is Satisfied once the entity accepts input.
func Interactable(probe BoolProbe, opts ...ProbeOption) Condition {
	return Check(NameInteractable, probe, opts...)
}

// TextEquals is Satisfied once the entity text equals want exactly.
func TextEquals(probe TextProbe, want string, opts ...ProbeOption) Condition {
	return textCondition(NameTextEquals, probe, func(got string) bool { return got == want }, opts)
}

// TextContains is Satisfied once the entity text contains substr.
func TextContains(probe TextProbe, substr string, opts ...ProbeOption) Condition {
	return textCondition(NameTextContains, probe, func(got string) bool { return strings.Contains(got, substr) }, opts)
}

func textCondition(name string, probe TextProbe, match func(string) bool, opts []ProbeOption) Condition {
	cfg := newProbeConfig(opts)
	return New(name, func(ctx context.Context, h handle.Handle) Result {
		got, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if match(got) {
			return Satisfied(got)
		}
		return Pending()
	})
}

// CountEquals is Satisfied once the probed collection has exactly n members.
func CountEquals(probe CountProbe, n int, opts ...ProbeOption) Condition {
	return countCondition(NameCountEquals, probe, func(got int) bool { return got == n }, opts)
}

// CountAtLeast is Satisfied once the probed collection has at least n members.
func CountAtLeast(probe CountProbe, n int, opts ...ProbeOption) Condition {
	return countCondition(NameCountAtLeast, probe, func(got int) bool { return got >= n }, opts)
}

func countCondition(name string, probe CountProbe, match func(int) bool, opts []ProbeOption) Condition {
	cfg := newProbeConfig(opts)
	return New(name, func(ctx context.Context, h handle.Handle) Result {
		got, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if match(got) {
			return Satisfied(got)
		}
		return Pending()
	})
}

// StableOption configures Stable.
type StableOption func(*stableConfig)

type stableConfig struct {
	probeConfig
	interval time.Duration
	sleep    func(context.Context, time.Duration) error
}

// WithSampleInterval sets the micro-interval between the two geometry samples.
// It is independent of the poll interval.
func WithSampleInterval(d time.Duration) StableOption {
	return func(cfg *stableConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithStableClassifier sets the classifier used for geometry probe errors.
func WithStableClassifier(opts ...ProbeOption) StableOption {
	return func(cfg *stableConfig) {
		for _, opt := range opts {
			if opt != nil {
				opt(&cfg.probeConfig)
			}
		}
	}
}

// Stable is Satisfied when two geometry samples taken one sample interval
// apart are identical. The produced value is the settled Rect.
func Stable(probe GeometryProbe, opts ...StableOption) Condition {
	cfg := stableConfig{
		probeConfig: newProbeConfig(nil),
		interval:    DefaultSampleInterval,
		sleep:       sleepWithContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return New(NameStable, func(ctx context.Context, h handle.Handle) Result {
		first, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if err := cfg.sleep(ctx, cfg.interval); err != nil {
			// Cancellation mid-sample leaves the condition unresolved; the
			// poller observes ctx itself.
			return PendingWith(err)
		}
		second, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if first == second {
			return Satisfied(second)
		}
		return Pending()
	})
}

// Expression returns a condition that is Satisfied when the boolean
// expression src holds over the properties reported by probe. Properties
// missing from the probe result evaluate as nil.
//
//	Expression("enabled_button", `tag == "button" && disabled != true`, props)
func Expression(name, src string, probe PropsProbe, opts ...ProbeOption) (Condition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Condition{}, fmt.Errorf("settle: expression condition name is empty")
	}
	program, err := compileExpression(src)
	if err != nil {
		return Condition{}, fmt.Errorf("settle: compile expression %q: %w", name, err)
	}
	cfg := newProbeConfig(opts)
	return New(name, func(ctx context.Context, h handle.Handle) Result {
		props, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if props == nil {
			props = map[string]any{}
		}
		out, err := expr.Run(program, props)
		if err != nil {
			return Fatal(fmt.Errorf("settle: evaluate expression %q: %w", name, err))
		}
		if ok, _ := out.(bool); ok {
			return Satisfied(props)
		}
		return Pending()
	}), nil
}

// compileExpression compiles src once for the condition that owns it; the
// program lives only in that condition's closure.
func compileExpression(src string) (*vm.Program, error) {
	return expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AsBool(),
		expr.AllowUndefinedVariables(),
	)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
