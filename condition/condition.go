// Package condition defines named, idempotent predicates over remote handles
// and the tagged result they produce.
//
// A condition never signals "not yet true" through an error: Pending is an
// expected state. Errors are reserved for Invalidated (the handle must be
// re-acquired) and Fatal (a genuine fault).
package condition

import (
	"context"
	"errors"
	"fmt"

	"github.com/aponysus/settle/handle"
)

// Status is the tag of a Result.
type Status int

const (
	StatusPending Status = iota
	StatusSatisfied
	StatusInvalidated
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSatisfied:
		return "satisfied"
	case StatusInvalidated:
		return "invalidated"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNoEvaluator is reported when a Condition has no evaluation function.
var ErrNoEvaluator = errors.New("settle: condition has no evaluator")

// Result is the outcome of one condition evaluation.
type Result struct {
	Status Status

	// Value is the produced value for Satisfied results.
	Value any

	// Err is set for Invalidated and Fatal results. Pending results may carry
	// the last transient error observed, for diagnostics only.
	Err error
}

// Pending reports that the condition does not hold yet.
func Pending() Result { return Result{Status: StatusPending} }

// PendingWith reports Pending while recording the transient error that caused it.
func PendingWith(err error) Result { return Result{Status: StatusPending, Err: err} }

// Satisfied reports that the condition holds, producing v.
func Satisfied(v any) Result { return Result{Status: StatusSatisfied, Value: v} }

// Invalidated reports that the handle no longer refers to a live entity.
func Invalidated(err error) Result { return Result{Status: StatusInvalidated, Err: err} }

// Fatal reports an unrecoverable fault.
func Fatal(err error) Result { return Result{Status: StatusFatal, Err: err} }

// Func evaluates a condition against h. It must be idempotent.
type Func func(ctx context.Context, h handle.Handle) Result

// Condition is a named predicate over a handle.
type Condition struct {
	Name string
	Eval Func
}

// New returns a Condition named name backed by fn.
func New(name string, fn Func) Condition {
	return Condition{Name: name, Eval: fn}
}

// Evaluate runs the condition once. A Condition without Eval is Fatal.
func (c Condition) Evaluate(ctx context.Context, h handle.Handle) Result {
	if c.Eval == nil {
		return Fatal(fmt.Errorf("%w: %q", ErrNoEvaluator, c.Name))
	}
	return c.Eval(ctx, h)
}

func (c Condition) String() string {
	if c.Name == "" {
		return "<unnamed condition>"
	}
	return c.Name
}

// Evaluator is implemented by the driver layer: it evaluates the condition
// called name against h.
type Evaluator interface {
	EvaluateCondition(ctx context.Context, h handle.Handle, name string) Result
}

// Named returns a Condition that delegates evaluation of name to ev.
func Named(ev Evaluator, name string) Condition {
	return Condition{
		Name: name,
		Eval: func(ctx context.Context, h handle.Handle) Result {
			if ev == nil {
				return Fatal(fmt.Errorf("%w: %q", ErrNoEvaluator, name))
			}
			return ev.EvaluateCondition(ctx, h, name)
		},
	}
}
