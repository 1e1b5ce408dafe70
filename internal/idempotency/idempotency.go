// Package idempotency replays the stored outcome of a mutating request when
// the caller retries it under the same token, without re-executing side
// effects. Records are claimed with a create-if-absent write so two
// concurrent first attempts cannot both execute.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hfi/report-gateway/internal/storage"
)

// ErrCheckFailed indicates the replay check itself could not be completed:
// another caller holds the claim but has not persisted an outcome within
// the wait deadline. Distinct from an execution failure: the caller should
// retry the request, not assume the action ran.
var ErrCheckFailed = errors.New("idempotency: check failed")

// Subject scopes a token to one client and action class.
type Subject struct {
	ClientID string
	Action   string
}

func (s Subject) key(token string) string {
	return fmt.Sprintf("idem:%s:%s:%s", s.ClientID, s.Action, token)
}

// Outcome is the stored result of one execution: an HTTP-shaped status and
// an opaque response body. Failures are outcomes too: a stored 4xx replays
// as that same 4xx.
type Outcome struct {
	Status    int             `json:"status"`
	Body      json.RawMessage `json:"body,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// record is the durable envelope. A pending record is the claim the first
// caller writes before executing; it is overwritten with the outcome.
type record struct {
	State   string   `json:"state"` // "pending" or "done"
	Outcome *Outcome `json:"outcome,omitempty"`
}

const (
	statePending = "pending"
	stateDone    = "done"
)

// Cache serializes and replays executions per (subject, token).
type Cache struct {
	store storage.Store
	ttl   time.Duration

	// Bounded wait for a concurrent first attempt to finish. No call may
	// block indefinitely on the claim holder.
	pollInterval time.Duration
	waitDeadline time.Duration
}

// New creates a cache whose records are retained for ttl. Retention should
// cover at least one full rate-limit window so retries stay replayable
// across the same quota period.
func New(store storage.Store, ttl time.Duration) *Cache {
	return &Cache{
		store:        store,
		ttl:          ttl,
		pollInterval: 100 * time.Millisecond,
		waitDeadline: 2 * time.Second,
	}
}

// ExecuteOnce runs fn at most once per (subject, token) within the
// retention window. An empty token requests no idempotency guarantee and
// always executes. The returned bool reports whether the outcome was
// replayed from a previous execution.
//
// fn returns the outcome to store, or an error when no meaningful outcome
// exists (infrastructure failure); in that case the claim is released so a
// retry can execute again.
func (c *Cache) ExecuteOnce(ctx context.Context, subject Subject, token string, fn func(context.Context) (Outcome, error)) (Outcome, bool, error) {
	if token == "" {
		out, err := fn(ctx)
		return out, false, err
	}

	key := subject.key(token)

	pending, err := json.Marshal(record{State: statePending})
	if err != nil {
		return Outcome{}, false, fmt.Errorf("marshal claim: %w", err)
	}

	won, err := c.store.PutIfAbsent(ctx, key, pending, c.ttl)
	if err != nil {
		return Outcome{}, false, err
	}

	if !won {
		out, err := c.awaitOutcome(ctx, key)
		if err != nil {
			return Outcome{}, false, err
		}
		return out, true, nil
	}

	out, err := fn(ctx)
	if err != nil {
		// No outcome to store; release the claim so the caller can retry.
		if derr := c.store.Delete(ctx, key); derr != nil {
			return Outcome{}, false, errors.Join(err, derr)
		}
		return Outcome{}, false, err
	}

	out.CreatedAt = time.Now().UTC()
	done, merr := json.Marshal(record{State: stateDone, Outcome: &out})
	if merr != nil {
		return Outcome{}, false, fmt.Errorf("marshal outcome: %w", merr)
	}
	if perr := c.store.Put(ctx, key, done, c.ttl); perr != nil {
		return Outcome{}, false, perr
	}

	return out, false, nil
}

// awaitOutcome reads the record under key, polling while it is still
// pending. If the claim holder has not persisted an outcome by the wait
// deadline, the check fails distinctly rather than blocking.
func (c *Cache) awaitOutcome(ctx context.Context, key string) (Outcome, error) {
	deadline := time.Now().Add(c.waitDeadline)

	for {
		data, err := c.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			// Claim released (execution failed without an outcome) or the
			// record expired mid-check.
			return Outcome{}, ErrCheckFailed
		}
		if err != nil {
			return Outcome{}, err
		}

		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return Outcome{}, fmt.Errorf("unmarshal idempotency record: %w", err)
		}
		if rec.State == stateDone && rec.Outcome != nil {
			return *rec.Outcome, nil
		}

		if !time.Now().Before(deadline) {
			return Outcome{}, ErrCheckFailed
		}

		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}
