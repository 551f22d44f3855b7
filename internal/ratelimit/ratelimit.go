// Package ratelimit gates AI-backed endpoints with a per-user windowed quota.
package ratelimit

import (
	"context"
	"time"
)

// Default quota policy: five AI requests per 24-hour rolling window.
const (
	DefaultMaxRequests = 5
	DefaultWindow      = 24 * time.Hour
)

// Decision reports the outcome of a quota check for one user.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // non-zero only when blocked
}

// Limiter consumes and inspects per-user quota slots.
type Limiter interface {
	// Consume takes one quota slot if available. The consume step is atomic:
	// concurrent callers cannot exceed the limit.
	Consume(ctx context.Context, userID string) (Decision, error)

	// Peek reports the current quota state without consuming a slot.
	Peek(ctx context.Context, userID string) (Decision, error)
}
