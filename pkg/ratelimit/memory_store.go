package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default in-process BucketStore.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]Bucket
}

// NewMemoryStore creates a new in-memory bucket store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]Bucket),
	}
}

// Get retrieves the bucket stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Bucket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.buckets[key]
	if !ok {
		return nil, false, nil
	}
	// Return a copy so callers never alias stored state.
	return &bucket, true, nil
}

// Set stores the bucket under key.
func (s *MemoryStore) Set(ctx context.Context, key string, bucket *Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key] = *bucket
	return nil
}

// Delete removes the bucket stored under key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// ClearExpired removes buckets whose window has fully passed.
func (s *MemoryStore) ClearExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, bucket := range s.buckets {
		if bucket.Expired(now) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed, nil
}

// Close releases store resources; a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}
