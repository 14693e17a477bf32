package session

import "sync"

// Registry tracks live engines by attempt ID so a reconnecting WebSocket
// can reattach to its in-flight attempt instead of starting a new timer.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]*Engine)}
}

// Get returns the live engine for an attempt, if any.
func (r *Registry) Get(attemptID string) (*Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[attemptID]
	return e, ok
}

// GetOrCreate returns the existing engine or registers the one produced by
// factory. The factory runs under the lock, so concurrent connections for
// the same attempt share a single engine and a single timer.
func (r *Registry) GetOrCreate(attemptID string, factory func() (*Engine, error)) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[attemptID]; ok {
		return e, nil
	}
	e, err := factory()
	if err != nil {
		return nil, err
	}
	r.engines[attemptID] = e
	return e, nil
}

// Remove drops the engine for a finished or abandoned attempt.
func (r *Registry) Remove(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, attemptID)
}

// Len reports the number of live attempts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
