package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/heycarlitos/llm-proxy/config"
	"github.com/heycarlitos/llm-proxy/models"
	"github.com/heycarlitos/llm-proxy/repositories"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fieldCount       = "count"
	fieldWindowStart = "window_start"

	defaultMaxRetries = 25

	// ttlMargin keeps a key alive slightly past its window so the limiter,
	// not Redis expiry, decides when a window is over.
	ttlMargin = time.Minute
)

// NewClient creates a go-redis client from configuration
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RateLimitStore keeps one hash per caller in Redis. Entries expire on their
// own through key TTLs, so Sweep has nothing to do.
type RateLimitStore struct {
	client     goredis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
	logger     *zap.Logger
}

var _ repositories.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates a store whose keys outlive window by a small margin
func NewRateLimitStore(client goredis.UniversalClient, prefix string, window time.Duration, logger *zap.Logger) *RateLimitStore {
	return &RateLimitStore{
		client:     client,
		prefix:     prefix,
		ttl:        window + ttlMargin,
		maxRetries: defaultMaxRetries,
		logger:     logger,
	}
}

func (s *RateLimitStore) key(callerID string) string {
	return s.prefix + callerID
}

// Update runs fn inside a WATCH/MULTI transaction, retrying on conflicts
func (s *RateLimitStore) Update(ctx context.Context, callerID string, fn repositories.UpdateFunc) (*models.RateLimitEntry, error) {
	key := s.key(callerID)

	var result *models.RateLimitEntry
	txf := func(tx *goredis.Tx) error {
		current, err := readEntry(ctx, tx, key, callerID)
		if err != nil {
			return err
		}

		next := fn(current)
		if next == nil {
			result = current
			return nil
		}
		next.CallerID = callerID

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldCount, next.Count,
				fieldWindowStart, next.WindowStart.UnixNano())
			pipe.PExpire(ctx, key, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		result = next
		return nil
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return nil, fmt.Errorf("failed to update rate limit entry: %w", err)
		}
		s.logger.Debug("rate limit update conflict, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt+1))
	}

	return nil, repositories.ErrConflict
}

// Get reads the caller's hash
func (s *RateLimitStore) Get(ctx context.Context, callerID string) (*models.RateLimitEntry, error) {
	entry, err := readEntry(ctx, s.client, s.key(callerID), callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}
	return entry, nil
}

// Sweep is a no-op; Redis expires keys by TTL
func (s *RateLimitStore) Sweep(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Ping checks Redis connectivity
func (s *RateLimitStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the client
func (s *RateLimitStore) Close() error {
	return s.client.Close()
}

func readEntry(ctx context.Context, c goredis.Cmdable, key, callerID string) (*models.RateLimitEntry, error) {
	values, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	count, err := strconv.Atoi(values[fieldCount])
	if err != nil {
		return nil, fmt.Errorf("corrupt count for %s: %w", key, err)
	}
	startNanos, err := strconv.ParseInt(values[fieldWindowStart], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt window start for %s: %w", key, err)
	}

	return &models.RateLimitEntry{
		CallerID:    callerID,
		Count:       count,
		WindowStart: time.Unix(0, startNanos).UTC(),
	}, nil
}
