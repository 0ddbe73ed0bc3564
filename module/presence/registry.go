package presence

import (
	"sync"
)

// Hooks receive the 0→1 and 1→0 transitions. Callbacks run on the calling
// goroutine, outside the registry lock.
type Hooks struct {
	OnOnline  func(principalID string)
	OnOffline func(principalID string)
}

// Registry tracks live connections per principal. A principal is online
// iff it owns at least one registered connection. State is process-local
// and rebuilt from scratch on restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // principal -> conn_id set
	hooks Hooks
}

func NewRegistry(hooks Hooks) *Registry {
	return &Registry{
		conns: make(map[string]map[string]struct{}),
		hooks: hooks,
	}
}

// Connect registers a connection. Returns true on the 0→1 transition.
// Registering the same connection id twice is a no-op.
func (r *Registry) Connect(principalID, connID string) bool {
	if principalID == "" || connID == "" {
		return false
	}
	r.mu.Lock()
	set := r.conns[principalID]
	if set == nil {
		set = make(map[string]struct{})
		r.conns[principalID] = set
	}
	if _, dup := set[connID]; dup {
		r.mu.Unlock()
		return false
	}
	set[connID] = struct{}{}
	wentOnline := len(set) == 1
	r.mu.Unlock()

	if wentOnline && r.hooks.OnOnline != nil {
		r.hooks.OnOnline(principalID)
	}
	return wentOnline
}

// Disconnect removes a connection. Unknown connection ids are a no-op:
// sessions may be torn down twice (network blip plus explicit close).
// Returns true on the 1→0 transition, which also removes the map entry.
func (r *Registry) Disconnect(principalID, connID string) bool {
	r.mu.Lock()
	set := r.conns[principalID]
	if set == nil {
		r.mu.Unlock()
		return false
	}
	if _, ok := set[connID]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(set, connID)
	wentOffline := len(set) == 0
	if wentOffline {
		delete(r.conns, principalID)
	}
	r.mu.Unlock()

	if wentOffline && r.hooks.OnOffline != nil {
		r.hooks.OnOffline(principalID)
	}
	return wentOffline
}

func (r *Registry) IsOnline(principalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[principalID]) > 0
}

// Count returns the live-connection count; never negative by construction.
func (r *Registry) Count(principalID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[principalID])
}

// ListOnline snapshots the online principal ids for public presence views.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.conns))
	for p := range r.conns {
		out = append(out, p)
	}
	return out
}
