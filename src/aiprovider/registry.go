package aiprovider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/elee1766/chainpilot/src/aisdk"
)

// Factory builds a provider on first use.
type Factory func(ctx context.Context) (aisdk.Provider, error)

// Registry lazily constructs providers by id and caches them. Concurrent
// first requests for the same id share one construction.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	cache     map[string]aisdk.Provider
	group     singleflight.Group
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		cache:     make(map[string]aisdk.Provider),
		logger:    logger.With("component", "provider_registry"),
	}
}

// Register adds or replaces the factory for id and drops any cached instance.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	delete(r.cache, id)
}

// Get returns the provider for id, constructing it if needed.
func (r *Registry) Get(ctx context.Context, id string) (aisdk.Provider, error) {
	r.mu.RLock()
	p, ok := r.cache[id]
	f, known := r.factories[id]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}
	if !known {
		return nil, fmt.Errorf("unknown provider %q", id)
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		r.mu.RLock()
		cached, ok := r.cache[id]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		p, err := f(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[id] = p
		r.mu.Unlock()
		r.logger.Debug("provider constructed", "provider", id)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(aisdk.Provider), nil
}

// Invalidate drops the cached instance for id.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

// IDs lists registered provider ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
