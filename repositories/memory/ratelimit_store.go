package memory

import (
	"context"
	"sync"
	"time"

	"github.com/heycarlitos/llm-proxy/models"
	"github.com/heycarlitos/llm-proxy/repositories"
)

// RateLimitStore keeps rate limit entries in process memory.
// Thread-safe implementation using sync.Mutex; entries are copied on the
// way in and out so callers never share state with the map.
type RateLimitStore struct {
	mu      sync.Mutex
	entries map[string]models.RateLimitEntry
}

var _ repositories.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates an empty in-memory store
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		entries: make(map[string]models.RateLimitEntry),
	}
}

// Update applies fn under the store lock
func (s *RateLimitStore) Update(ctx context.Context, callerID string, fn repositories.UpdateFunc) (*models.RateLimitEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current *models.RateLimitEntry
	if entry, ok := s.entries[callerID]; ok {
		current = &entry
	}

	next := fn(current)
	if next == nil {
		return current, nil
	}

	stored := *next
	stored.CallerID = callerID
	s.entries[callerID] = stored

	out := stored
	return &out, nil
}

// Get returns a copy of the caller's entry
func (s *RateLimitStore) Get(ctx context.Context, callerID string) (*models.RateLimitEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[callerID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Sweep deletes entries whose window started before the cutoff
func (s *RateLimitStore) Sweep(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.entries {
		if entry.WindowStart.Before(before) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked callers
func (s *RateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Ping always succeeds for the in-memory store
func (s *RateLimitStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store
func (s *RateLimitStore) Close() error {
	return nil
}
