package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/heycarlitos/llm-proxy/internal/observability"
	"github.com/heycarlitos/llm-proxy/models"
	"github.com/heycarlitos/llm-proxy/repositories"
	"github.com/heycarlitos/llm-proxy/services"
	"go.uber.org/zap"
)

const (
	DefaultCapacity = 20
	DefaultWindow   = time.Hour
)

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RateLimitService enforces a fixed-window request quota per caller.
// The counter is incremented before the request is served and is never
// refunded, even when the upstream call later fails.
type RateLimitService struct {
	store    repositories.RateLimitStore
	capacity int
	window   time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewRateLimitService creates a new RateLimitService instance. Non-positive
// capacity or window fall back to 20 requests per hour.
func NewRateLimitService(store repositories.RateLimitStore, capacity int, window time.Duration, metrics *observability.Metrics, logger *zap.Logger) *RateLimitService {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimitService{
		store:    store,
		capacity: capacity,
		window:   window,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Capacity returns the number of requests allowed per window
func (s *RateLimitService) Capacity() int {
	return s.capacity
}

// Window returns the window length
func (s *RateLimitService) Window() time.Duration {
	return s.window
}

// Check records a request for callerID and reports whether it is allowed.
// A denied request does not touch the stored counter.
func (s *RateLimitService) Check(ctx context.Context, callerID string) (*Result, error) {
	now := s.now()

	var result Result
	_, err := s.store.Update(ctx, callerID, func(current *models.RateLimitEntry) *models.RateLimitEntry {
		var next *models.RateLimitEntry
		next, result = decide(current, callerID, now, s.window, s.capacity)
		return next
	})
	if err != nil {
		return nil, services.WrapInternal("failed to check rate limit", err)
	}

	s.metrics.RecordRateLimitDecision(result.Allowed)
	if !result.Allowed {
		s.logger.Info("rate limit exceeded",
			zap.String("caller_id", callerID),
			zap.Time("reset_at", result.ResetAt))
	}

	return &result, nil
}

// decide applies the fixed-window policy to the caller's current entry.
// It returns the entry to persist, or nil when nothing should be written.
func decide(current *models.RateLimitEntry, callerID string, now time.Time, window time.Duration, capacity int) (*models.RateLimitEntry, Result) {
	if current == nil || current.Expired(now, window) {
		fresh := models.NewRateLimitEntry(callerID, now)
		return fresh, Result{
			Allowed:   true,
			Remaining: capacity - 1,
			Limit:     capacity,
			ResetAt:   fresh.ResetAt(window),
		}
	}

	if current.Count >= capacity {
		return nil, Result{
			Allowed:   false,
			Remaining: 0,
			Limit:     capacity,
			ResetAt:   current.ResetAt(window),
		}
	}

	next := *current
	next.Count++
	return &next, Result{
		Allowed:   true,
		Remaining: capacity - next.Count,
		Limit:     capacity,
		ResetAt:   next.ResetAt(window),
	}
}

// CleanupExpired removes entries whose window has fully elapsed
func (s *RateLimitService) CleanupExpired(ctx context.Context) (int64, error) {
	cutoffTime := s.now().Add(-s.window)

	removed, err := s.store.Sweep(ctx, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired entries: %w", err)
	}

	s.logger.Debug("cleaned up expired rate limit entries",
		zap.Int64("entries_deleted", removed),
		zap.Time("cutoff_time", cutoffTime))

	return removed, nil
}

// StartCleanupWorker starts a background worker to periodically clean up expired entries.
// A non-positive interval sweeps once per window.
func (s *RateLimitService) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("window", s.window))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupExpired(ctx); err != nil {
				s.logger.Error("failed to cleanup expired entries", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}

// Ready checks the backing store
func (s *RateLimitService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}
