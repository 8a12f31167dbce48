package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/heycarlitos/llm-proxy/models"
	"github.com/heycarlitos/llm-proxy/repositories"
	"go.uber.org/zap"
)

// RateLimitRepository stores rate limit entries in PostgreSQL so several
// proxy instances share one quota per caller.
type RateLimitRepository struct {
	db     *DB
	logger *zap.Logger
}

var _ repositories.RateLimitStore = (*RateLimitRepository)(nil)

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *DB, logger *zap.Logger) *RateLimitRepository {
	return &RateLimitRepository{
		db:     db,
		logger: logger,
	}
}

// maxInsertAttempts bounds retries when two transactions create the same
// caller's first entry at once
const maxInsertAttempts = 3

// errInsertRace means another transaction inserted the caller's row first
var errInsertRace = errors.New("rate limit entry inserted concurrently")

// Update locks the caller's row for the duration of fn. A missing row cannot
// be locked, so a lost first-insert race is retried against the new row.
func (r *RateLimitRepository) Update(ctx context.Context, callerID string, fn repositories.UpdateFunc) (*models.RateLimitEntry, error) {
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		result, err := r.update(ctx, callerID, fn)
		if !errors.Is(err, errInsertRace) {
			return result, err
		}
		r.logger.Debug("retrying rate limit update after insert race",
			zap.String("caller_id", callerID),
			zap.Int("attempt", attempt))
	}
	return nil, repositories.ErrConflict
}

func (r *RateLimitRepository) update(ctx context.Context, callerID string, fn repositories.UpdateFunc) (*models.RateLimitEntry, error) {
	var result *models.RateLimitEntry

	err := r.db.InTransaction(ctx, func(tx *sql.Tx) error {
		current, err := r.selectForUpdate(ctx, tx, callerID)
		if err != nil {
			return err
		}

		next := fn(current)
		if next == nil {
			result = current
			return nil
		}
		next.CallerID = callerID

		if current == nil {
			if err := r.insert(ctx, tx, next); err != nil {
				return err
			}
		} else {
			query := `
				UPDATE rate_limit_entries
				SET count = $2, window_start = $3
				WHERE caller_id = $1
			`
			if _, err := tx.ExecContext(ctx, query, callerID, next.Count, next.WindowStart); err != nil {
				return fmt.Errorf("failed to update rate limit entry: %w", err)
			}
		}

		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *RateLimitRepository) insert(ctx context.Context, tx *sql.Tx, entry *models.RateLimitEntry) error {
	query := `
		INSERT INTO rate_limit_entries (caller_id, count, window_start)
		VALUES ($1, $2, $3)
		ON CONFLICT (caller_id) DO NOTHING
	`

	res, err := tx.ExecContext(ctx, query, entry.CallerID, entry.Count, entry.WindowStart)
	if err != nil {
		return fmt.Errorf("failed to insert rate limit entry: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errInsertRace
	}

	return nil
}

// Get retrieves the caller's entry without locking
func (r *RateLimitRepository) Get(ctx context.Context, callerID string) (*models.RateLimitEntry, error) {
	query := `
		SELECT caller_id, count, window_start
		FROM rate_limit_entries
		WHERE caller_id = $1
	`

	entry := &models.RateLimitEntry{}
	err := r.db.QueryRowContext(ctx, query, callerID).Scan(&entry.CallerID, &entry.Count, &entry.WindowStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit entry: %w", err)
	}

	return entry, nil
}

// Sweep deletes entries whose window started before the cutoff
func (r *RateLimitRepository) Sweep(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM rate_limit_entries
		WHERE window_start < $1
	`

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep rate limit entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// Ping checks database connectivity
func (r *RateLimitRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the underlying pool
func (r *RateLimitRepository) Close() error {
	return r.db.Close()
}

func (r *RateLimitRepository) selectForUpdate(ctx context.Context, tx *sql.Tx, callerID string) (*models.RateLimitEntry, error) {
	query := `
		SELECT caller_id, count, window_start
		FROM rate_limit_entries
		WHERE caller_id = $1
		FOR UPDATE
	`

	entry := &models.RateLimitEntry{}
	err := tx.QueryRowContext(ctx, query, callerID).Scan(&entry.CallerID, &entry.Count, &entry.WindowStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock rate limit entry: %w", err)
	}

	return entry, nil
}
