// Package ratelimit enforces per-client fixed-window quotas on mutating
// action classes. Counters live in the shared durable store so every
// gateway instance sees the same window; the test-and-increment is a single
// atomic store operation, never a read followed by a write.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hfi/report-gateway/internal/storage"
)

// Action identifies a rate-limited class of mutating operation.
type Action string

const (
	// ActionReportSend covers report send requests.
	ActionReportSend Action = "report-send"

	// ActionCSVUpload covers CSV data uploads.
	ActionCSVUpload Action = "csv-upload"
)

// ErrUnknownAction indicates a check against an action class with no
// configured limit.
var ErrUnknownAction = errors.New("ratelimit: unknown action class")

// Limit is the quota for one action class.
type Limit struct {
	// Max is the number of allowed actions per window.
	Max int

	// Window is the fixed window length. The window opens on the first
	// action, not on a wall-clock boundary.
	Window time.Duration
}

// Result is returned by every check, allowed or rejected, and carries the
// values surfaced as X-RateLimit-* response headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// DefaultLimits returns the stock per-client quotas.
func DefaultLimits() map[Action]Limit {
	return map[Action]Limit{
		ActionReportSend: {Max: 10, Window: time.Hour},
		ActionCSVUpload:  {Max: 20, Window: time.Hour},
	}
}

// Limiter checks actions against their per-client windows.
type Limiter struct {
	store  storage.Store
	limits map[Action]Limit
}

// New creates a limiter with the given per-action limits. A nil map selects
// DefaultLimits.
func New(store storage.Store, limits map[Action]Limit) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Limiter{
		store:  store,
		limits: limits,
	}
}

// LargestWindow returns the longest configured window, used to derive
// retention for replay records.
func (l *Limiter) LargestWindow() time.Duration {
	var max time.Duration
	for _, limit := range l.limits {
		if limit.Window > max {
			max = limit.Window
		}
	}
	return max
}

// Check atomically counts one attempt for (clientID, action) and reports
// whether it fits the window. Callers must not execute the action when
// Allowed is false. Remaining is post-decrement and never negative.
func (l *Limiter) Check(ctx context.Context, clientID string, action Action) (Result, error) {
	limit, ok := l.limits[action]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	key := fmt.Sprintf("ratelimit:%s:%s", clientID, action)
	count, resetAt, err := l.store.IncrWindow(ctx, key, limit.Window)
	if err != nil {
		return Result{}, err
	}

	remaining := int64(limit.Max) - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit.Max),
		Limit:     limit.Max,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}, nil
}
