package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/crisp/internal/quota"
)

// Quotas is the SQLite-backed refresh quota counter, used when no Redis is
// configured. A user without a row has the full daily allowance.
type Quotas struct {
	db    *DB
	daily int
	now   func() time.Time
}

// NewQuotas returns a quota counter granting daily refreshes per UTC day.
func NewQuotas(db *DB, daily int) *Quotas {
	return &Quotas{db: db, daily: daily, now: time.Now}
}

// Remaining returns how many refreshes the user has left.
func (q *Quotas) Remaining(ctx context.Context, userID string) (int, error) {
	var remaining int
	err := q.db.QueryRowContext(ctx, `SELECT remaining FROM quotas WHERE user_id = ?`, userID).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return q.daily, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota remaining %s: %w", userID, err)
	}
	return remaining, nil
}

// Decrement consumes one refresh. It never goes below zero.
func (q *Quotas) Decrement(ctx context.Context, userID string) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO quotas (user_id, remaining, reset_at) VALUES (?, MAX(? - 1, 0), ?)
		ON CONFLICT(user_id) DO UPDATE SET remaining = MAX(remaining - 1, 0)
	`, userID, q.daily, quota.NextReset(now))
	if err != nil {
		return fmt.Errorf("quota decrement %s: %w", userID, err)
	}
	return nil
}

// ResetIfExpired restores the daily allowance once the reset time has passed.
func (q *Quotas) ResetIfExpired(ctx context.Context, userID string) error {
	now := q.now()
	_, err := q.db.ExecContext(ctx, `
		UPDATE quotas SET remaining = ?, reset_at = ?
		WHERE user_id = ? AND reset_at <= ?
	`, q.daily, quota.NextReset(now), userID, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("quota reset %s: %w", userID, err)
	}
	return nil
}

// ResetAt returns when the user's allowance next rolls over.
func (q *Quotas) ResetAt(ctx context.Context, userID string) (time.Time, error) {
	var resetAt int64
	err := q.db.QueryRowContext(ctx, `SELECT reset_at FROM quotas WHERE user_id = ?`, userID).Scan(&resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.UnixMilli(quota.NextReset(q.now())), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("quota reset_at %s: %w", userID, err)
	}
	return time.UnixMilli(resetAt), nil
}
