package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newMockLimiter(t *testing.T) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewPGWithQuerier(mock, 5, 24*time.Hour), mock
}

func expectConsume(mock pgxmock.PgxPoolIface, userID string) *pgxmock.ExpectedQuery {
	return mock.ExpectQuery(`INSERT INTO ai_rate_limits`).
		WithArgs(userID, 24*time.Hour, 5)
}

func TestConsume_FirstRequest(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	resetAt := time.Now().Add(24 * time.Hour)
	expectConsume(mock, "u1").WillReturnRows(
		pgxmock.NewRows([]string{"count", "reset_at", "consumed"}).AddRow(1, resetAt, true))

	d, err := l.Consume(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 5, d.Limit)
	require.Equal(t, 4, d.Remaining)
	require.WithinDuration(t, resetAt, d.ResetAt, time.Second)
	require.Zero(t, d.RetryAfter)
}

func TestConsume_UnderLimit(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	expectConsume(mock, "u1").WillReturnRows(
		pgxmock.NewRows([]string{"count", "reset_at", "consumed"}).AddRow(3, time.Now().Add(time.Hour), true))

	d, err := l.Consume(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Remaining)
}

func TestConsume_LastSlot(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	expectConsume(mock, "u1").WillReturnRows(
		pgxmock.NewRows([]string{"count", "reset_at", "consumed"}).AddRow(5, time.Now().Add(time.Hour), true))

	d, err := l.Consume(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Zero(t, d.Remaining)
}

func TestConsume_AtLimit_Rejected(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	resetAt := time.Now().Add(10 * time.Hour)
	expectConsume(mock, "u1").WillReturnRows(
		pgxmock.NewRows([]string{"count", "reset_at", "consumed"}).AddRow(5, resetAt, false))

	d, err := l.Consume(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))
	require.WithinDuration(t, resetAt, d.ResetAt, time.Second)
}

func TestConsume_DBError_Propagates(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	expectConsume(mock, "u1").WillReturnError(errors.New("db boom"))

	_, err := l.Consume(context.Background(), "u1")
	require.Error(t, err)
}

func TestPeek_NoRecord_FullQuota(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count, reset_at FROM ai_rate_limits`).
		WithArgs("u1").
		WillReturnError(pgx.ErrNoRows)

	d, err := l.Peek(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 5, d.Remaining)
}

func TestPeek_ActiveWindow(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count, reset_at FROM ai_rate_limits`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "reset_at"}).AddRow(4, time.Now().Add(time.Hour)))

	d, err := l.Peek(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)
}

func TestPeek_AtLimit(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count, reset_at FROM ai_rate_limits`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "reset_at"}).AddRow(5, time.Now().Add(time.Hour)))

	d, err := l.Peek(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestPeek_ExpiredWindow_FullQuota(t *testing.T) {
	l, mock := newMockLimiter(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT count, reset_at FROM ai_rate_limits`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "reset_at"}).AddRow(5, time.Now().Add(-time.Minute)))

	d, err := l.Peek(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, 5, d.Remaining)
}
