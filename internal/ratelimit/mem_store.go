package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-process Counter Store backend: a mutex-guarded map of
// live tokens per key, swept lazily on access (spec §4.A: "no background
// thread required"). This is the default single-node backend.
type MemStore struct {
	mu      sync.Mutex
	deadline time.Duration
	entries map[string]map[string]time.Time // key -> token id -> deadline
}

// NewMemStore builds a MemStore. ttl bounds how long an unreleased token is
// honored before the store's lazy sweep reclaims its slot.
func NewMemStore(ttl time.Duration) *MemStore {
	return &MemStore{
		deadline: ttl,
		entries:  make(map[string]map[string]time.Time),
	}
}

func (m *MemStore) TryAcquire(_ context.Context, key string, cap int) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(key)

	live := m.entries[key]
	if live == nil {
		live = make(map[string]time.Time)
		m.entries[key] = live
	}
	if len(live) >= cap {
		return nil, ErrCapacityExceeded
	}

	id := uuid.NewString()
	live[id] = time.Now().Add(m.deadline)
	return &Token{key: key, id: id}, nil
}

func (m *MemStore) Release(_ context.Context, tok *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.entries[tok.key]
	if live == nil {
		return ErrAlreadyReleased
	}
	if _, ok := live[tok.id]; !ok {
		return ErrAlreadyReleased
	}
	delete(live, tok.id)
	return nil
}

func (m *MemStore) Count(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(key)
	return len(m.entries[key]), nil
}

// sweepLocked drops expired tokens for key. Caller must hold m.mu.
func (m *MemStore) sweepLocked(key string) {
	live := m.entries[key]
	if live == nil {
		return
	}
	now := time.Now()
	for id, deadline := range live {
		if now.After(deadline) {
			delete(live, id)
		}
	}
}
