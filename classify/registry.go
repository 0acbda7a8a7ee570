package classify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aponysus/settle/internal"
)

// ErrUnknownClassifier is returned by Lookup for unregistered names.
var ErrUnknownClassifier = errors.New("settle: unknown classifier")

// Registry maps names to classifiers, so configuration (flags, preset files)
// can select one by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Classifier
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Classifier)}
}

// NewBuiltinRegistry returns a registry holding the built-in classifiers.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// Register stores c under name, replacing any previous entry. Blank names
// and nil classifiers are ignored.
func (r *Registry) Register(name string, c Classifier) {
	key := strings.TrimSpace(name)
	if r == nil || key == "" || internal.IsTypedNil(c) {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byKey == nil {
		r.byKey = make(map[string]Classifier)
	}
	r.byKey[key] = c
}

func (r *Registry) Get(name string) (Classifier, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[strings.TrimSpace(name)]
	return c, ok
}

// Lookup is Get with an error naming the known classifiers.
func (r *Registry) Lookup(name string) (Classifier, error) {
	if c, ok := r.Get(name); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownClassifier, name, strings.Join(r.Names(), ", "))
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for name := range r.byKey {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
