// Package controlplane distributes wait and retry presets by profile name
// ("ci", "local", "nightly") from a static table, a directory or an HTTP
// endpoint.
package controlplane

import (
	"context"
	"strings"

	"github.com/aponysus/settle/policy"
)

// PresetsProvider supplies the presets of a profile.
type PresetsProvider interface {
	// Presets returns the presets for profile.
	//
	// Providers may return non-zero presets alongside a non-nil error to
	// communicate that they were obtained via a fallback path (for example,
	// last-known-good).
	Presets(ctx context.Context, profile string) (policy.Presets, error)
}

// StaticProvider is an in-process PresetsProvider backed by a map and an
// optional default.
type StaticProvider struct {
	Profiles map[string]policy.Presets
	Default  *policy.Presets
}

func (p *StaticProvider) Presets(_ context.Context, profile string) (policy.Presets, error) {
	if p != nil && p.Profiles != nil {
		if ps, ok := p.Profiles[strings.TrimSpace(profile)]; ok {
			return ps, nil
		}
	}
	if p != nil && p.Default != nil {
		return *p.Default, nil
	}
	return policy.DefaultPresets(), nil
}
