package observe

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSlowThreshold is the elapsed time above which waits and attempts
// are reported as slow.
const DefaultSlowThreshold = 5 * time.Second

// LogObserver writes events to a structured logger.
//
//	wait succeeded           Info
//	wait failed              Warn
//	attempt failed, retrying Debug
//	succeeded after retries  Info
//	retries exhausted        Error
//	gave up (not retryable)  Warn
//
// Anything slower than the slow threshold is logged at Warn with slow=true.
type LogObserver struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

// LogOption configures a LogObserver.
type LogOption func(*LogObserver)

// WithSlowThreshold sets the slow-operation threshold. Zero disables it.
func WithSlowThreshold(d time.Duration) LogOption {
	return func(o *LogObserver) {
		if d >= 0 {
			o.slowThreshold = d
		}
	}
}

// NewLogObserver returns a LogObserver writing to logger, or to
// slog.Default() when logger is nil.
func NewLogObserver(logger *slog.Logger, opts ...LogOption) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	o := &LogObserver{logger: logger, slowThreshold: DefaultSlowThreshold}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *LogObserver) OnWaitOutcome(ctx context.Context, ev WaitEvent) {
	attrs := []any{
		"wait", ev.Name,
		"handle", ev.Handle,
		"attempts", ev.Outcome.Attempts,
		"elapsed", ev.Outcome.Elapsed,
	}
	if ev.Composite {
		attrs = append(attrs, "composite", true)
	}
	slow := o.isSlow(ev.Outcome.Elapsed)
	if slow {
		attrs = append(attrs, "slow", true)
	}

	if ev.Outcome.Succeeded {
		level := slog.LevelInfo
		if slow {
			level = slog.LevelWarn
		}
		o.logger.Log(ctx, level, "wait satisfied", attrs...)
		return
	}
	attrs = append(attrs, "error", ev.Outcome.LastError)
	o.logger.WarnContext(ctx, "wait failed", attrs...)
}

func (o *LogObserver) OnRetryOutcome(ctx context.Context, ev RetryEvent) {
	attrs := []any{
		"operation", ev.Operation,
		"attempt", ev.Attempt,
		"max_attempts", ev.MaxAttempts,
		"duration", ev.Duration(),
	}

	var (
		level slog.Level
		msg   string
	)
	switch {
	case ev.Err == nil && ev.Attempt > 1:
		level, msg = slog.LevelInfo, "operation succeeded after retries"
	case ev.Err == nil:
		level, msg = slog.LevelDebug, "operation succeeded"
	case ev.WillRetry:
		level, msg = slog.LevelDebug, "attempt failed, retrying"
		attrs = append(attrs, "error", ev.Err, "backoff", ev.Backoff)
	case ev.Exhausted():
		level, msg = slog.LevelError, "operation failed, retries exhausted"
		attrs = append(attrs, "error", ev.Err)
	default:
		level, msg = slog.LevelWarn, "operation failed, not retrying"
		attrs = append(attrs, "error", ev.Err)
	}

	if o.isSlow(ev.Duration()) {
		attrs = append(attrs, "slow", true)
		if level < slog.LevelWarn {
			level = slog.LevelWarn
		}
	}
	o.logger.Log(ctx, level, msg, attrs...)
}

func (o *LogObserver) isSlow(d time.Duration) bool {
	return o.slowThreshold > 0 && d > o.slowThreshold
}
