package condition

import (
	"context"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/handle"
)

// Probes read one property of a handle from the driver. Probe errors are
// mapped onto results by a classifier: retryable errors keep the condition
// Pending, invalidation errors become Invalidated, anything else is Fatal.
type (
	BoolProbe     func(ctx context.Context, h handle.Handle) (bool, error)
	TextProbe     func(ctx context.Context, h handle.Handle) (string, error)
	CountProbe    func(ctx context.Context, h handle.Handle) (int, error)
	GeometryProbe func(ctx context.Context, h handle.Handle) (handle.Rect, error)
	PropsProbe    func(ctx context.Context, h handle.Handle) (map[string]any, error)
)

type probeConfig struct {
	classifier classify.Classifier
}

// ProbeOption configures how probe errors are classified.
type ProbeOption func(*probeConfig)

// WithClassifier sets the classifier used for probe errors. The default is
// classify.DefaultSignatures.
func WithClassifier(c classify.Classifier) ProbeOption {
	return func(cfg *probeConfig) {
		if c != nil {
			cfg.classifier = c
		}
	}
}

func newProbeConfig(opts []ProbeOption) probeConfig {
	cfg := probeConfig{classifier: classify.DefaultSignatures()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// FromError maps a probe error onto a Result using c.
func FromError(err error, c classify.Classifier) Result {
	if err == nil {
		return Pending()
	}
	if c == nil {
		c = classify.DefaultSignatures()
	}
	switch c.Classify(err).Kind {
	case classify.KindRetryable:
		return PendingWith(err)
	case classify.KindInvalidated:
		return Invalidated(err)
	default:
		return Fatal(err)
	}
}

// Check returns a condition that is Satisfied once probe reports true.
func Check(name string, probe BoolProbe, opts ...ProbeOption) Condition {
	cfg := newProbeConfig(opts)
	return New(name, func(ctx context.Context, h handle.Handle) Result {
		ok, err := probe(ctx, h)
		if err != nil {
			return FromError(err, cfg.classifier)
		}
		if ok {
			return Satisfied(true)
		}
		return Pending()
	})
}
