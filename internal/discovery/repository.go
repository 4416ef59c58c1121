package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-dirigera/internal/infrastructure/database"
)

// Page size bounds for attempt queries.
const (
	defaultAttemptLimit = 50
	maxAttemptLimit     = 200
)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// AttemptFilter selects attempts to list.
type AttemptFilter struct {
	DeviceID string  // optional
	Outcome  Outcome // optional
	Limit    int     // default 50, max 200
}

// AttemptRepository persists discovery attempts.
type AttemptRepository interface {
	Recorder
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
}

// SQLiteAttemptRepository stores attempts in the discovery_attempts table.
type SQLiteAttemptRepository struct {
	db *database.DB
}

// NewSQLiteAttemptRepository creates a repository on an open database.
func NewSQLiteAttemptRepository(db *database.DB) *SQLiteAttemptRepository {
	return &SQLiteAttemptRepository{db: db}
}

// RecordAttempt inserts a.
func (r *SQLiteAttemptRepository) RecordAttempt(ctx context.Context, a *Attempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO discovery_attempts (id, device_id, vendor_type, category, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.VendorType,
		nullableString(a.Category), string(a.Outcome), nullableString(a.Error),
		a.DurationMS, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting discovery attempt: %w", err)
	}
	return nil
}

// ListAttempts returns matching attempts, newest first.
func (r *SQLiteAttemptRepository) ListAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAttemptLimit
	}
	if filter.Limit > maxAttemptLimit {
		filter.Limit = maxAttemptLimit
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, device_id, vendor_type, category, outcome, error, duration_ms, created_at
		 FROM discovery_attempts %s ORDER BY created_at DESC LIMIT ?`, where)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying discovery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []Attempt{}
	for rows.Next() {
		var a Attempt
		var category, errText sql.NullString
		var outcome, createdAt string
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.VendorType, &category, &outcome, &errText, &a.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning discovery attempt: %w", err)
		}
		a.Category = category.String
		a.Error = errText.String
		a.Outcome = Outcome(outcome)
		if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing attempt timestamp %q: %w", createdAt, err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating discovery attempts: %w", err)
	}
	return attempts, nil
}

// Prune deletes attempts created before cutoff, then trims the table to
// the newest maxRows rows. A zero cutoff or maxRows skips that step.
// Both deletes run in one transaction.
//
// Returns:
//   - int64: number of rows removed
//   - error: if either delete fails; nothing is removed in that case
func (r *SQLiteAttemptRepository) Prune(ctx context.Context, cutoff time.Time, maxRows int) (int64, error) {
	var removed int64
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if !cutoff.IsZero() {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM discovery_attempts WHERE created_at < ?`,
				cutoff.UTC().Format(timeLayout))
			if err != nil {
				return fmt.Errorf("pruning attempts by age: %w", err)
			}
			n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports affected rows
			removed += n
		}
		if maxRows > 0 {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM discovery_attempts WHERE id IN (
				   SELECT id FROM discovery_attempts
				   ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?)`,
				maxRows)
			if err != nil {
				return fmt.Errorf("pruning attempts by count: %w", err)
			}
			n, _ := res.RowsAffected() //nolint:errcheck // sqlite always reports affected rows
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// RetentionPolicy bounds the discovery_attempts table.
type RetentionPolicy struct {
	MaxAge   time.Duration // 0 keeps attempts regardless of age
	MaxRows  int           // 0 disables the row cap
	Interval time.Duration // how often to prune
}

// RunRetention prunes once immediately and then every policy.Interval
// until ctx is cancelled. It returns at once if the policy bounds nothing.
func (r *SQLiteAttemptRepository) RunRetention(ctx context.Context, policy RetentionPolicy, logger Logger) {
	if policy.MaxAge <= 0 && policy.MaxRows <= 0 {
		return
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if policy.Interval <= 0 {
		policy.Interval = time.Hour
	}

	prune := func() {
		var cutoff time.Time
		if policy.MaxAge > 0 {
			cutoff = time.Now().Add(-policy.MaxAge)
		}
		removed, err := r.Prune(ctx, cutoff, policy.MaxRows)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("pruning discovery attempts failed", "error", err)
			}
			return
		}
		if removed > 0 {
			logger.Debug("pruned discovery attempts", "removed", removed)
		}
	}

	prune()
	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
