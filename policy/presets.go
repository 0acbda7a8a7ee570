package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Names of the built-in presets.
const (
	PresetDefault      = "default"
	PresetShort        = "short"
	PresetLong         = "long"
	PresetDefaultRetry = "defaultRetry"
)

// Presets is a named set of wait and retry specs, resolved once at startup
// and passed by value.
type Presets struct {
	waits   map[string]WaitSpec
	retries map[string]RetrySpec
}

// DefaultPresets returns the built-in presets:
//
//	default       timeout=10s poll=500ms
//	short         timeout=5s  poll=500ms
//	long          timeout=30s poll=500ms
//	defaultRetry  attempts=3 initial=1s multiplier=2.0 max=10s
func DefaultPresets() Presets {
	return Presets{
		waits: map[string]WaitSpec{
			PresetDefault: MustWaitSpec(10*time.Second, 500*time.Millisecond),
			PresetShort:   MustWaitSpec(5*time.Second, 500*time.Millisecond),
			PresetLong:    MustWaitSpec(30*time.Second, 500*time.Millisecond),
		},
		retries: map[string]RetrySpec{
			PresetDefaultRetry: MustRetrySpec(3, time.Second, 2.0, 10*time.Second),
		},
	}
}

// Wait returns the wait preset called name.
func (p Presets) Wait(name string) (WaitSpec, error) {
	s, ok := p.waits[strings.TrimSpace(name)]
	if !ok {
		return WaitSpec{}, fmt.Errorf("%w: wait %q", ErrUnknownPreset, name)
	}
	return s, nil
}

// Retry returns the retry preset called name.
func (p Presets) Retry(name string) (RetrySpec, error) {
	s, ok := p.retries[strings.TrimSpace(name)]
	if !ok {
		return RetrySpec{}, fmt.Errorf("%w: retry %q", ErrUnknownPreset, name)
	}
	return s, nil
}

// WaitNames returns the wait preset names in sorted order.
func (p Presets) WaitNames() []string { return sortedKeys(p.waits) }

// RetryNames returns the retry preset names in sorted order.
func (p Presets) RetryNames() []string { return sortedKeys(p.retries) }

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("500ms", "10s") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// WaitPresetDoc is the YAML form of a wait preset.
type WaitPresetDoc struct {
	Timeout          *Duration `yaml:"timeout,omitempty"`
	PollInterval     *Duration `yaml:"poll_interval,omitempty"`
	DeadlinePolicy   string    `yaml:"deadline_policy,omitempty"`
	MaxInvalidations *int      `yaml:"max_invalidations,omitempty"`
}

// RetryPresetDoc is the YAML form of a retry preset.
type RetryPresetDoc struct {
	MaxAttempts       *int      `yaml:"max_attempts,omitempty"`
	InitialDelay      *Duration `yaml:"initial_delay,omitempty"`
	BackoffMultiplier *float64  `yaml:"backoff_multiplier,omitempty"`
	MaxDelay          *Duration `yaml:"max_delay,omitempty"`
}

// PresetsDoc is the YAML document accepted by ParsePresets.
//
//	waits:
//	  default: {timeout: 10s, poll_interval: 500ms}
//	  checkout: {timeout: 45s, deadline_policy: per_condition}
//	retries:
//	  defaultRetry: {max_attempts: 5}
type PresetsDoc struct {
	Waits   map[string]WaitPresetDoc  `yaml:"waits,omitempty"`
	Retries map[string]RetryPresetDoc `yaml:"retries,omitempty"`
}

// ParsePresets decodes a YAML presets document and layers it over
// DefaultPresets. Fields left out of an entry are inherited from the preset
// of the same name, or from default/defaultRetry for new names. Every
// resulting spec is validated.
func ParsePresets(data []byte) (Presets, error) {
	var doc PresetsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Presets{}, fmt.Errorf("settle: parse presets: %w", err)
	}
	return DefaultPresets().Merge(doc)
}

// Merge returns a copy of p with the entries of doc applied.
func (p Presets) Merge(doc PresetsDoc) (Presets, error) {
	out := Presets{
		waits:   make(map[string]WaitSpec, len(p.waits)+len(doc.Waits)),
		retries: make(map[string]RetrySpec, len(p.retries)+len(doc.Retries)),
	}
	for k, v := range p.waits {
		out.waits[k] = v
	}
	for k, v := range p.retries {
		out.retries[k] = v
	}

	for _, name := range sortedKeys(doc.Waits) {
		key := strings.TrimSpace(name)
		if key == "" {
			return Presets{}, invalid("waits", name, "preset name is empty")
		}
		base, ok := out.waits[key]
		if !ok {
			base = out.waits[PresetDefault]
		}
		spec, err := applyWaitDoc(base, doc.Waits[name])
		if err != nil {
			return Presets{}, fmt.Errorf("wait preset %q: %w", key, err)
		}
		out.waits[key] = spec
	}

	for _, name := range sortedKeys(doc.Retries) {
		key := strings.TrimSpace(name)
		if key == "" {
			return Presets{}, invalid("retries", name, "preset name is empty")
		}
		base, ok := out.retries[key]
		if !ok {
			base = out.retries[PresetDefaultRetry]
		}
		spec, err := applyRetryDoc(base, doc.Retries[name])
		if err != nil {
			return Presets{}, fmt.Errorf("retry preset %q: %w", key, err)
		}
		out.retries[key] = spec
	}
	return out, nil
}

func applyWaitDoc(base WaitSpec, d WaitPresetDoc) (WaitSpec, error) {
	timeout, interval := base.timeout, base.interval
	if d.Timeout != nil {
		timeout = time.Duration(*d.Timeout)
	}
	if d.PollInterval != nil {
		interval = time.Duration(*d.PollInterval)
	}
	opts := []WaitOption{Deadline(base.deadline), MaxInvalidations(base.maxInvalidations)}
	if d.DeadlinePolicy != "" {
		dp, err := ParseDeadlinePolicy(d.DeadlinePolicy)
		if err != nil {
			return WaitSpec{}, err
		}
		opts = append(opts, Deadline(dp))
	}
	if d.MaxInvalidations != nil {
		opts = append(opts, MaxInvalidations(*d.MaxInvalidations))
	}
	return NewWaitSpec(timeout, interval, opts...)
}

func applyRetryDoc(base RetrySpec, d RetryPresetDoc) (RetrySpec, error) {
	attempts, initial, mult, maxDelay := base.maxAttempts, base.initialDelay, base.multiplier, base.maxDelay
	if d.MaxAttempts != nil {
		attempts = *d.MaxAttempts
	}
	if d.InitialDelay != nil {
		initial = time.Duration(*d.InitialDelay)
	}
	if d.BackoffMultiplier != nil {
		mult = *d.BackoffMultiplier
	}
	if d.MaxDelay != nil {
		maxDelay = time.Duration(*d.MaxDelay)
	}
	return NewRetrySpec(attempts, initial, mult, maxDelay, RetryIf(base.retryIf))
}

// Doc returns the YAML form of p, suitable for yaml.Marshal.
func (p Presets) Doc() PresetsDoc {
	doc := PresetsDoc{
		Waits:   make(map[string]WaitPresetDoc, len(p.waits)),
		Retries: make(map[string]RetryPresetDoc, len(p.retries)),
	}
	for name, s := range p.waits {
		timeout, interval := Duration(s.timeout), Duration(s.interval)
		maxInv := s.maxInvalidations
		doc.Waits[name] = WaitPresetDoc{
			Timeout:          &timeout,
			PollInterval:     &interval,
			DeadlinePolicy:   s.deadline.String(),
			MaxInvalidations: &maxInv,
		}
	}
	for name, s := range p.retries {
		attempts, mult := s.maxAttempts, s.multiplier
		initial, maxDelay := Duration(s.initialDelay), Duration(s.maxDelay)
		doc.Retries[name] = RetryPresetDoc{
			MaxAttempts:       &attempts,
			InitialDelay:      &initial,
			BackoffMultiplier: &mult,
			MaxDelay:          &maxDelay,
		}
	}
	return doc
}
