package adapters

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"listingsync/internal/platforms"
)

var ErrPlatformNotFound = errors.New("platform not found")

// Descriptor is the UI-facing view of a platform
type Descriptor struct {
	Key           string                 `json:"key"`
	DisplayName   string                 `json:"displayName"`
	Available     bool                   `json:"available"`
	OAuthRequired bool                   `json:"oauthRequired"`
	Capabilities  platforms.Capabilities `json:"capabilities"`
	Pricing       platforms.Pricing      `json:"pricing"`
}

// Registry manages all registered platform adapters
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]platforms.Adapter
	logger   *slog.Logger
}

// NewRegistry creates a new adapter registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters: make(map[string]platforms.Adapter),
		logger:   logger.With("component", "registry"),
	}
}

// Register adds an adapter. A later registration for the same key wins.
func (r *Registry) Register(adapter platforms.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := adapter.Settings().Key
	if _, exists := r.adapters[key]; exists {
		r.logger.Warn("Platform adapter replaced", "platform", key)
	}
	r.adapters[key] = adapter
}

// Get retrieves an adapter by platform key
func (r *Registry) Get(key string) (platforms.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPlatformNotFound, key)
	}
	return adapter, nil
}

// All returns every adapter ordered by key
func (r *Registry) All() []platforms.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]platforms.Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		out = append(out, adapter)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Settings().Key < out[j].Settings().Key
	})
	return out
}

// Available returns adapters whose configuration is complete
func (r *Registry) Available() []platforms.Adapter {
	return r.filter(func(a platforms.Adapter) bool {
		return len(MissingConfig(a.Settings())) == 0
	})
}

// ByCapability returns adapters supporting feature
func (r *Registry) ByCapability(feature platforms.Feature) []platforms.Adapter {
	return r.filter(func(a platforms.Adapter) bool {
		return a.Settings().Capabilities.Has(feature)
	})
}

// ByCost returns all adapters, free tiers first, then by ascending
// per-listing cost, ties broken by key
func (r *Registry) ByCost() []platforms.Adapter {
	out := r.All()
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Settings().Pricing, out[j].Settings().Pricing
		if pi.FreeTier != pj.FreeTier {
			return pi.FreeTier
		}
		if !pi.CostPerListing.Equal(pj.CostPerListing) {
			return pi.CostPerListing.LessThan(pj.CostPerListing)
		}
		return out[i].Settings().Key < out[j].Settings().Key
	})
	return out
}

// Validate returns the configuration fields missing for key
func (r *Registry) Validate(key string) ([]string, error) {
	adapter, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	return MissingConfig(adapter.Settings()), nil
}

// Descriptors returns UI-facing descriptors for every platform
func (r *Registry) Descriptors() []Descriptor {
	all := r.All()
	out := make([]Descriptor, 0, len(all))
	for _, adapter := range all {
		s := adapter.Settings()
		out = append(out, Descriptor{
			Key:           s.Key,
			DisplayName:   s.DisplayName,
			Available:     len(MissingConfig(s)) == 0,
			OAuthRequired: s.RequiresOAuth(),
			Capabilities:  s.Capabilities,
			Pricing:       s.Pricing,
		})
	}
	return out
}

// MissingConfig lists what a platform needs before it can be used: a base
// URL and declared capabilities, OAuth client credentials when OAuth is
// required, and the API key for key-authenticated platforms.
func MissingConfig(s platforms.Settings) []string {
	var missing []string
	if s.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if s.Capabilities.IsZero() {
		missing = append(missing, "capabilities")
	}
	if s.RequiresOAuth() {
		if s.OAuth.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if s.OAuth.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
	}
	if s.APIKeyHeader != "" && s.APIKey == "" {
		missing = append(missing, "api_key")
	}
	return missing
}

func (r *Registry) filter(keep func(platforms.Adapter) bool) []platforms.Adapter {
	var out []platforms.Adapter
	for _, adapter := range r.All() {
		if keep(adapter) {
			out = append(out, adapter)
		}
	}
	return out
}
