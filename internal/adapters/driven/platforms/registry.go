// Package platforms holds the per-platform OAuth adapters and the
// plumbing they share.
package platforms

import (
	"sync"

	"github.com/custodia-labs/sercha-social/internal/core/domain"
	"github.com/custodia-labs/sercha-social/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.PlatformRegistry = (*Registry)(nil)

// Registry maps platforms to their adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Platform]driven.PlatformAdapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...driven.PlatformAdapter) *Registry {
	r := &Registry{adapters: make(map[domain.Platform]driven.PlatformAdapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its platform.
func (r *Registry) Register(adapter driven.PlatformAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Platform()] = adapter
}

// Get returns the adapter for a platform.
func (r *Registry) Get(platform domain.Platform) (driven.PlatformAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	return a, ok
}

// Platforms returns registered platforms in display order.
func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Platform
	for _, p := range domain.AllPlatforms() {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Configured returns the registered platforms that have credentials.
func (r *Registry) Configured() []domain.Platform {
	var out []domain.Platform
	for _, p := range r.Platforms() {
		if a, _ := r.Get(p); a.Configured() {
			out = append(out, p)
		}
	}
	return out
}
