package models

import "time"

// RateLimitEntry is the per-caller counter for the current fixed window.
type RateLimitEntry struct {
	CallerID    string    `json:"caller_id" db:"caller_id"`
	Count       int       `json:"count" db:"count"`
	WindowStart time.Time `json:"window_start" db:"window_start"`
}

// TableName returns the table name for the RateLimitEntry model
func (RateLimitEntry) TableName() string {
	return "rate_limit_entries"
}

// NewRateLimitEntry starts a fresh window for a caller with a count of one.
func NewRateLimitEntry(callerID string, now time.Time) *RateLimitEntry {
	return &RateLimitEntry{
		CallerID:    callerID,
		Count:       1,
		WindowStart: now,
	}
}

// Expired reports whether more than window has elapsed since WindowStart.
func (e *RateLimitEntry) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(e.WindowStart) > window
}

// ResetAt returns the moment the current window ends.
func (e *RateLimitEntry) ResetAt(window time.Duration) time.Time {
	return e.WindowStart.Add(window)
}
