package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/heycarlitos/llm-proxy/models"
)

// ErrConflict is returned when a store could not apply an update atomically
// after exhausting its retries.
var ErrConflict = errors.New("concurrent rate limit update")

// UpdateFunc receives the caller's current entry (nil when none is stored)
// and returns the entry to persist. Returning nil leaves the store untouched.
type UpdateFunc func(current *models.RateLimitEntry) *models.RateLimitEntry

// RateLimitStore persists per-caller rate limit entries.
// Implementations must run Update as an atomic read-modify-write per key.
type RateLimitStore interface {
	// Update applies fn to the caller's entry and persists the result.
	// It returns the entry that is stored once the call completes.
	Update(ctx context.Context, callerID string, fn UpdateFunc) (*models.RateLimitEntry, error)

	// Get returns the stored entry, or nil when the caller has none.
	Get(ctx context.Context, callerID string) (*models.RateLimitEntry, error)

	// Sweep removes entries whose window started before the cutoff
	// and returns how many were removed.
	Sweep(ctx context.Context, before time.Time) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
