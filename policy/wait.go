package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/aponysus/settle/condition"
)

// DeadlinePolicy decides how a composite wait shares its timeout between
// conditions.
type DeadlinePolicy int

const (
	// Absolute gives each condition whatever remains of the total timeout.
	Absolute DeadlinePolicy = iota
	// PerCondition gives each condition the full timeout.
	PerCondition
)

func (d DeadlinePolicy) String() string {
	switch d {
	case Absolute:
		return "absolute"
	case PerCondition:
		return "per_condition"
	default:
		return fmt.Sprintf("deadline_policy(%d)", int(d))
	}
}

// ParseDeadlinePolicy parses "absolute" or "per_condition". The empty string
// means Absolute.
func ParseDeadlinePolicy(s string) (DeadlinePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "absolute":
		return Absolute, nil
	case "per_condition", "percondition", "per-condition":
		return PerCondition, nil
	default:
		return Absolute, invalid("deadline_policy", s, "want absolute or per_condition")
	}
}

// DefaultMaxInvalidations is the number of Invalidated results a poll
// tolerates before treating the next one as Fatal.
const DefaultMaxInvalidations = 3

// WaitSpec describes a composite wait. It is an immutable value; the With*
// methods return modified copies.
type WaitSpec struct {
	conditions       []condition.Condition
	timeout          time.Duration
	interval         time.Duration
	deadline         DeadlinePolicy
	maxInvalidations int
}

// WaitOption configures a WaitSpec under construction.
type WaitOption func(*WaitSpec)

// Conditions sets the ordered condition list.
func Conditions(conds ...condition.Condition) WaitOption {
	return func(s *WaitSpec) {
		s.conditions = append([]condition.Condition(nil), conds...)
	}
}

// Deadline sets the deadline policy.
func Deadline(d DeadlinePolicy) WaitOption {
	return func(s *WaitSpec) { s.deadline = d }
}

// MaxInvalidations sets how many Invalidated results are treated as Pending.
// Zero means unlimited.
func MaxInvalidations(n int) WaitOption {
	return func(s *WaitSpec) { s.maxInvalidations = n }
}

// NewWaitSpec validates and returns a WaitSpec. The poll interval must be
// positive and strictly less than the timeout.
func NewWaitSpec(timeout, interval time.Duration, opts ...WaitOption) (WaitSpec, error) {
	s := WaitSpec{
		timeout:          timeout,
		interval:         interval,
		deadline:         Absolute,
		maxInvalidations: DefaultMaxInvalidations,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if err := s.validate(); err != nil {
		return WaitSpec{}, err
	}
	return s, nil
}

// MustWaitSpec is NewWaitSpec for static configuration; it panics on error.
func MustWaitSpec(timeout, interval time.Duration, opts ...WaitOption) WaitSpec {
	s, err := NewWaitSpec(timeout, interval, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s WaitSpec) validate() error {
	if err := ValidateTiming(s.timeout, s.interval); err != nil {
		return err
	}
	switch s.deadline {
	case Absolute, PerCondition:
	default:
		return invalid("deadline_policy", s.deadline, "unknown policy")
	}
	if s.maxInvalidations < 0 {
		return invalid("max_invalidations", s.maxInvalidations, "must be >= 0")
	}
	for i, c := range s.conditions {
		if c.Eval == nil {
			return invalid(fmt.Sprintf("conditions[%d]", i), c.Name, "condition has no evaluator")
		}
	}
	return nil
}

// ValidateTiming checks a timeout/poll interval pair.
func ValidateTiming(timeout, interval time.Duration) error {
	if timeout <= 0 {
		return invalid("timeout", timeout, "must be > 0")
	}
	if interval <= 0 {
		return invalid("poll_interval", interval, "must be > 0")
	}
	if interval >= timeout {
		return invalid("poll_interval", interval, fmt.Sprintf("must be < timeout (%s)", timeout))
	}
	return nil
}

func (s WaitSpec) Timeout() time.Duration         { return s.timeout }
func (s WaitSpec) PollInterval() time.Duration    { return s.interval }
func (s WaitSpec) DeadlinePolicy() DeadlinePolicy { return s.deadline }
func (s WaitSpec) MaxInvalidations() int          { return s.maxInvalidations }

// Conditions returns a copy of the ordered condition list.
func (s WaitSpec) Conditions() []condition.Condition {
	return append([]condition.Condition(nil), s.conditions...)
}

// ConditionNames returns the condition names in order.
func (s WaitSpec) ConditionNames() []string {
	names := make([]string, len(s.conditions))
	for i, c := range s.conditions {
		names[i] = c.Name
	}
	return names
}

// WithConditions returns a copy of s with the given condition list. Presets
// carry no conditions, so callers attach them per wait.
func (s WaitSpec) WithConditions(conds ...condition.Condition) WaitSpec {
	s.conditions = append([]condition.Condition(nil), conds...)
	return s
}

// WithDeadlinePolicy returns a copy of s using d.
func (s WaitSpec) WithDeadlinePolicy(d DeadlinePolicy) WaitSpec {
	s.deadline = d
	return s
}

// WithTimeout returns a copy of s with a new timeout, revalidated against the
// poll interval.
func (s WaitSpec) WithTimeout(timeout time.Duration) (WaitSpec, error) {
	s.timeout = timeout
	if err := s.validate(); err != nil {
		return WaitSpec{}, err
	}
	return s, nil
}

func (s WaitSpec) String() string {
	return fmt.Sprintf("wait(timeout=%s, poll=%s, deadline=%s, conditions=%v)",
		s.timeout, s.interval, s.deadline, s.ConditionNames())
}
