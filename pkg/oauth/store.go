package oauth

import (
	"context"
	"sync"
	"time"
)

// Store persists cached tokens with a store-level expiry.
type Store interface {
	// Get returns the token stored under key, or ErrTokenNotFound.
	Get(ctx context.Context, key string) (CachedToken, error)

	// Put stores tok under key. The entry disappears after ttl.
	Put(ctx context.Context, key string, tok CachedToken, ttl time.Duration) error
}

type memoryEntry struct {
	token   CachedToken
	evictAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for TTL eviction.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (CachedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return CachedToken{}, ErrTokenNotFound
	}
	if !e.evictAt.IsZero() && !s.now().Before(e.evictAt) {
		delete(s.entries, key)
		return CachedToken{}, ErrTokenNotFound
	}
	return e.token, nil
}

// Put implements Store. A non-positive ttl keeps the entry until overwritten.
func (s *MemoryStore) Put(_ context.Context, key string, tok CachedToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evictAt time.Time
	if ttl > 0 {
		evictAt = s.now().Add(ttl)
	}
	s.entries[key] = memoryEntry{token: tok, evictAt: evictAt}
	return nil
}

var _ Store = (*MemoryStore)(nil)
