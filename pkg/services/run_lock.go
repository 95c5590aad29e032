package services

import (
	"sync"

	"github.com/google/uuid"
)

// RunLockRegistry guarantees at most one in-flight run per config within
// this process. TryAcquire is non-blocking: the scheduler skips a config
// whose lock is held rather than queueing behind it.
type RunLockRegistry struct {
	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewRunLockRegistry creates an empty registry.
func NewRunLockRegistry() *RunLockRegistry {
	return &RunLockRegistry{
		active: make(map[uuid.UUID]struct{}),
	}
}

// TryAcquire claims the lock for a config. Returns false when a run for
// the config is already in flight.
func (r *RunLockRegistry) TryAcquire(configID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.active[configID]; held {
		return false
	}
	r.active[configID] = struct{}{}
	return true
}

// Release frees the lock for a config. Safe to call for an unheld lock.
func (r *RunLockRegistry) Release(configID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, configID)
}

// Held reports whether a run for the config is in flight.
func (r *RunLockRegistry) Held(configID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, held := r.active[configID]
	return held
}
