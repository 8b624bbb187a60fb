package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps market names to their engines. Markets register once at
// bootstrap or through the admin API; engines are never replaced or removed.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]*Engine),
	}
}

// Register adds an engine under its market name. Duplicate names fail.
func (r *Registry) Register(e *Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Market()
	if _, exists := r.engines[name]; exists {
		return fmt.Errorf("market %s already registered", name)
	}
	r.engines[name] = e
	return nil
}

// Get returns the engine for a market, or nil if unknown.
func (r *Registry) Get(market string) *Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.engines[market]
}

// Markets returns all registered market names, sorted.
func (r *Registry) Markets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.engines))
	for name := range r.engines {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByFeed returns every engine priced against the given feed.
func (r *Registry) ByFeed(feed string) []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Engine
	for _, e := range r.engines {
		if e.Params().Feed == feed {
			out = append(out, e)
		}
	}
	return out
}
