package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed limiter. A user's window state lives in a single
// row; consuming a slot is one conditional upsert, so the count can never be
// pushed past the limit by concurrent requests.
type PG struct {
	pool   pgxQuerier
	limit  int
	window time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, limit int, window time.Duration) *PG {
	return newPG(pool, limit, window)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter over any querier.
func NewPGWithQuerier(q pgxQuerier, limit int, window time.Duration) *PG {
	return newPG(q, limit, window)
}

func newPG(q pgxQuerier, limit int, window time.Duration) *PG {
	if limit <= 0 {
		limit = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &PG{pool: q, limit: limit, window: window}
}

// Consume takes one slot. The row is created on first use, reset in place
// once the window has expired, and incremented while under the limit; at the
// limit nothing is mutated. last_request_at is only touched when a slot is
// consumed, and every now() in the statement is the same transaction
// timestamp, so the RETURNING comparison tells consumption apart from
// rejection.
func (l *PG) Consume(ctx context.Context, userID string) (Decision, error) {
	const q = `
INSERT INTO ai_rate_limits (user_id, count, reset_at, last_request_at)
VALUES ($1, 1, now() + $2::interval, now())
ON CONFLICT (user_id) DO UPDATE SET
  count = CASE
    WHEN ai_rate_limits.reset_at <= now() THEN 1
    WHEN ai_rate_limits.count < $3 THEN ai_rate_limits.count + 1
    ELSE ai_rate_limits.count
  END,
  reset_at = CASE
    WHEN ai_rate_limits.reset_at <= now() THEN now() + $2::interval
    ELSE ai_rate_limits.reset_at
  END,
  last_request_at = CASE
    WHEN ai_rate_limits.reset_at <= now() OR ai_rate_limits.count < $3 THEN now()
    ELSE ai_rate_limits.last_request_at
  END
RETURNING count, reset_at, last_request_at = now()`

	var (
		count    int
		resetAt  time.Time
		consumed bool
	)
	if err := l.pool.QueryRow(ctx, q, userID, l.window, l.limit).Scan(&count, &resetAt, &consumed); err != nil {
		return Decision{}, err
	}

	d := Decision{Limit: l.limit, ResetAt: resetAt}
	if consumed {
		d.Allowed = true
		d.Remaining = l.limit - count
		return d, nil
	}
	d.RetryAfter = time.Until(resetAt)
	return d, nil
}

// Peek reports the quota state without consuming. A missing or expired row
// means the full quota is available.
func (l *PG) Peek(ctx context.Context, userID string) (Decision, error) {
	const q = `SELECT count, reset_at FROM ai_rate_limits WHERE user_id=$1`

	var (
		count   int
		resetAt time.Time
	)
	err := l.pool.QueryRow(ctx, q, userID).Scan(&count, &resetAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
	case err != nil:
		return Decision{}, err
	}

	if !resetAt.After(time.Now()) {
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}, nil
	}
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{Allowed: remaining > 0, Limit: l.limit, Remaining: remaining, ResetAt: resetAt}
	if !d.Allowed {
		d.RetryAfter = time.Until(resetAt)
	}
	return d, nil
}
