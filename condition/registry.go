package condition

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownCondition is returned when a name is not registered.
var ErrUnknownCondition = errors.New("settle: unknown condition")

// Registry maps names to conditions. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	conditions map[string]Condition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conditions: make(map[string]Condition)}
}

// Register stores c under its trimmed name, replacing any previous entry.
// Conditions without a name or evaluator are ignored.
func (r *Registry) Register(c Condition) {
	if r == nil || c.Eval == nil {
		return
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return
	}
	c.Name = name
	r.mu.Lock()
	r.conditions[name] = c
	r.mu.Unlock()
}

// Get returns the condition registered as name.
func (r *Registry) Get(name string) (Condition, bool) {
	if r == nil {
		return Condition{}, false
	}
	r.mu.RLock()
	c, ok := r.conditions[strings.TrimSpace(name)]
	r.mu.RUnlock()
	return c, ok
}

// Resolve looks up names in order. The first unknown name fails the whole call.
func (r *Registry) Resolve(names ...string) ([]Condition, error) {
	out := make([]Condition, 0, len(names))
	for _, name := range names {
		c, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, strings.TrimSpace(name))
		}
		out = append(out, c)
	}
	return out, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.conditions))
	for name := range r.conditions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
