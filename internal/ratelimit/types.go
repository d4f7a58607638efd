package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned for fail-closed rules when the counter store is down.
var ErrUnavailable = errors.New("rate limit: counter store unavailable")

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter provides sliding-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Rule configures one rate-limited route.
type Rule struct {
	Max        int
	Window     time.Duration
	FailClosed bool
}
