package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LockManager hands out one mutual-exclusion slot per challenge id.
// Waiting is bounded; slots are dropped once nobody holds or waits for them.
type LockManager struct {
	mu    sync.Mutex
	slots map[uint]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{slots: make(map[uint]*slot)}
}

// Acquire takes the lock of id, waiting at most wait. The returned func releases it.
// It fails with ErrBusy on timeout and with the context error on cancellation.
func (m *LockManager) Acquire(ctx context.Context, id uint, wait time.Duration) (func(), error) {
	s := m.ref(id)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				m.unref(id)
			})
		}, nil
	case <-timer.C:
		m.unref(id)
		return nil, fmt.Errorf("waited %s for challenge %d: %w", wait, id, ErrBusy)
	case <-ctx.Done():
		m.unref(id)
		return nil, ctx.Err()
	}
}

func (m *LockManager) ref(id uint) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, found := m.slots[id]
	if !found {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[id] = s
	}
	s.refs++
	return s
}

func (m *LockManager) unref(id uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[id]
	s.refs--
	if s.refs == 0 {
		delete(m.slots, id)
	}
}

// size returns the number of live slots.
func (m *LockManager) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}
