package storage

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is an in-memory implementation of Store. It is intended for
// tests and single-instance deployments; the mutex gives it the same
// atomicity the redis backend gets from its server-side primitives.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	windows   map[string]memoryWindow
	sweep     time.Duration
	stopSweep chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewMemoryStore creates a new in-memory store with a background sweep that
// drops expired entries.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]memoryEntry),
		windows:   make(map[string]memoryWindow),
		sweep:     time.Minute,
		stopSweep: make(chan struct{}),
		now:       time.Now,
	}

	go s.sweepLoop()

	return s
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

// Get returns the value stored under key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Put stores value under key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = s.newEntry(value, ttl)
	return nil
}

// PutIfAbsent stores value only if key does not already hold a live entry.
func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && !s.expired(e) {
		return false, nil
	}

	s.entries[key] = s.newEntry(value, ttl)
	return true, nil
}

func (s *MemoryStore) newEntry(value []byte, ttl time.Duration) memoryEntry {
	stored := make([]byte, len(value))
	copy(stored, value)

	e := memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return e
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// IncrWindow atomically increments the fixed-window counter under key.
func (s *MemoryStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// First request opens the window; reset is relative to it, not to
		// a wall-clock boundary.
		w = memoryWindow{count: 0, resetAt: now.Add(window)}
	}
	w.count++
	s.windows[key] = w

	return w.count, w.resetAt, nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopSweep) })
	return nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}
