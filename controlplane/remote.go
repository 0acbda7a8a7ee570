package controlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aponysus/settle/policy"
)

// Source fetches raw YAML preset documents.
type Source interface {
	// Fetch returns the document for profile. If there is none it must
	// return an error matching ErrPresetsNotFound.
	Fetch(ctx context.Context, profile string) ([]byte, error)
}

// RemoteProvider is a PresetsProvider that fetches documents from a Source,
// parses them with policy.ParsePresets and caches the result.
type RemoteProvider struct {
	source           Source
	cache            *PresetsCache
	cacheTTL         time.Duration
	negativeCacheTTL time.Duration
}

// RemoteProviderOption configures a RemoteProvider.
type RemoteProviderOption func(*RemoteProvider)

// WithCacheTTL sets the TTL for successful lookups. Default is 1 minute.
func WithCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.cacheTTL = ttl
	}
}

// WithNegativeCacheTTL sets the TTL for missing profiles. Default is 10 seconds.
func WithNegativeCacheTTL(ttl time.Duration) RemoteProviderOption {
	return func(p *RemoteProvider) {
		p.negativeCacheTTL = ttl
	}
}

// NewRemoteProvider creates a new RemoteProvider.
func NewRemoteProvider(source Source, opts ...RemoteProviderOption) *RemoteProvider {
	p := &RemoteProvider{
		source:           source,
		cache:            NewPresetsCache(),
		cacheTTL:         1 * time.Minute,
		negativeCacheTTL: 10 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Presets returns the presets of profile, checking the cache first.
//
// When the source fails or serves an invalid document, the last presets
// fetched for the profile are returned together with an error matching
// ErrProviderUnavailable.
func (p *RemoteProvider) Presets(ctx context.Context, profile string) (policy.Presets, error) {
	profile = strings.TrimSpace(profile)

	ps, foundInCache, isNegative := p.cache.Get(profile)
	if foundInCache {
		if isNegative {
			return policy.Presets{}, fmt.Errorf("%w: %q", ErrPresetsNotFound, profile)
		}
		return ps, nil
	}

	data, err := p.source.Fetch(ctx, profile)
	if err != nil {
		if errors.Is(err, ErrPresetsNotFound) {
			p.cache.SetMissing(profile, p.negativeCacheTTL)
			return policy.Presets{}, err
		}
		return p.fallback(profile, err)
	}

	// A document that does not validate is never cached.
	ps, err = policy.ParsePresets(data)
	if err != nil {
		return p.fallback(profile, err)
	}

	p.cache.Set(profile, ps, p.cacheTTL)
	return ps, nil
}

// Invalidate drops the cached presets of profile so the next call refetches.
func (p *RemoteProvider) Invalidate(profile string) {
	p.cache.Invalidate(strings.TrimSpace(profile))
}

func (p *RemoteProvider) fallback(profile string, cause error) (policy.Presets, error) {
	err := fmt.Errorf("%w: profile %q: %w", ErrProviderUnavailable, profile, cause)
	if ps, ok := p.cache.LastGood(profile); ok {
		return ps, err
	}
	return policy.Presets{}, err
}
