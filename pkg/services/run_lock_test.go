package services

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRunLockRegistry(t *testing.T) {
	locks := NewRunLockRegistry()
	configID := uuid.New()

	assert.True(t, locks.TryAcquire(configID))
	assert.True(t, locks.Held(configID))
	assert.False(t, locks.TryAcquire(configID))

	locks.Release(configID)
	assert.False(t, locks.Held(configID))
	assert.True(t, locks.TryAcquire(configID))
}

func TestRunLockRegistry_IndependentConfigs(t *testing.T) {
	locks := NewRunLockRegistry()
	a, b := uuid.New(), uuid.New()

	assert.True(t, locks.TryAcquire(a))
	assert.True(t, locks.TryAcquire(b))
}

func TestRunLockRegistry_ReleaseUnheldIsSafe(t *testing.T) {
	locks := NewRunLockRegistry()
	locks.Release(uuid.New())
}

func TestRunLockRegistry_ConcurrentAcquire(t *testing.T) {
	locks := NewRunLockRegistry()
	configID := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if locks.TryAcquire(configID) {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
}
