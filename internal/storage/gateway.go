package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pixelgrove/service/internal/derivative"
)

// immutableCacheControl is written on every derivative. Objects at a given
// key are never mutated in place — a changed image gets a new base ID — so
// clients and CDNs may cache forever.
const immutableCacheControl = "public, max-age=31536000, immutable"

// DeleteOutcome classifies the result of one key in a fan-out delete.
type DeleteOutcome string

const (
	OutcomeDeleted  DeleteOutcome = "deleted"
	OutcomeNotFound DeleteOutcome = "notFound"
	OutcomeError    DeleteOutcome = "error"
)

// DeleteEntry is the per-key result of a fan-out delete.
type DeleteEntry struct {
	Key     string        `json:"key"`
	Outcome DeleteOutcome `json:"outcome"`
	Error   string        `json:"error,omitempty"`
}

// DeleteReport collects per-key outcomes of a fan-out delete. Individual
// key failures never fail the call; only a systemic store fault does.
type DeleteReport struct {
	Entries []DeleteEntry `json:"entries"`
}

// Failed returns the entries that ended in an error after retries.
func (r DeleteReport) Failed() []DeleteEntry {
	var failed []DeleteEntry
	for _, e := range r.Entries {
		if e.Outcome == OutcomeError {
			failed = append(failed, e)
		}
	}
	return failed
}

// Gateway manages the derivative key-space as a single logical unit on top
// of an ObjectStore: immutable-cache puts with bounded retry, URL
// resolution, and idempotent fan-out deletion. It owns no state; every
// call is independent.
type Gateway struct {
	store      ObjectStore
	publicBase string
	folder     string
	retries    int
	backoff    time.Duration
}

// NewGateway creates a Gateway. publicBase is the browser-accessible base
// URL (CDN origin when one is configured, else the store's native URL);
// folder is the key prefix for derivatives; retries bounds attempts beyond
// the first for transient faults, with exponential backoff.
func NewGateway(store ObjectStore, publicBase, folder string, retries int, backoff time.Duration) *Gateway {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Gateway{
		store:      store,
		publicBase: strings.TrimRight(publicBase, "/"),
		folder:     strings.Trim(folder, "/"),
		retries:    retries,
		backoff:    backoff,
	}
}

// Folder returns the derivative key prefix the gateway writes under.
func (g *Gateway) Folder() string { return g.folder }

// URL resolves the publicly fetchable URL for a key.
func (g *Gateway) URL(key string) string {
	return g.publicBase + "/" + key
}

// Put writes an object with the immutable cache header and returns its
// resolved URL. Transient faults are retried a bounded number of times
// before surfacing as ErrStorage.
func (g *Gateway) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	err := g.withRetry(ctx, func() error {
		return g.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType, immutableCacheControl)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return g.URL(key), nil
}

// Get opens the object at key for read-through/proxy paths.
func (g *Gateway) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	return g.store.Get(ctx, key)
}

// Stat checks existence of the object at key without fetching its bytes.
func (g *Gateway) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	return g.store.Stat(ctx, key)
}

// Delete removes the object at key. Deleting an absent key is a success.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	err := g.withRetry(ctx, func() error {
		err := g.store.Remove(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// PresignPut issues a scoped, time-limited write credential for key.
func (g *Gateway) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return g.store.PresignPut(ctx, key, contentType, expiry)
}

// DeleteAssetDerivatives recomputes the full expected key-space for
// baseID from the plan and issues a delete per key. Missing keys are not
// errors (idempotent delete); per-key failures after retries are collected
// in the report. The call itself only fails when every key errors, which
// indicates the store is unreachable.
func (g *Gateway) DeleteAssetDerivatives(ctx context.Context, baseID string, plan []derivative.Spec) (DeleteReport, error) {
	report := DeleteReport{Entries: make([]DeleteEntry, 0, len(plan))}
	errored := 0
	for _, spec := range plan {
		key := derivative.ObjectKey(g.folder, baseID, spec.Tier, spec.Encoding)
		entry := DeleteEntry{Key: key, Outcome: OutcomeDeleted}

		err := g.withRetry(ctx, func() error {
			return g.store.Remove(ctx, key)
		})
		switch {
		case errors.Is(err, ErrNotFound):
			entry.Outcome = OutcomeNotFound
		case err != nil:
			entry.Outcome = OutcomeError
			entry.Error = err.Error()
			errored++
		}
		report.Entries = append(report.Entries, entry)
	}
	if len(plan) > 0 && errored == len(plan) {
		return report, fmt.Errorf("%w: all %d deletes failed", ErrStorage, errored)
	}
	return report, nil
}

// withRetry runs op up to retries+1 times with exponential backoff.
// ErrNotFound is never retried — it is a definitive answer, not a fault.
func (g *Gateway) withRetry(ctx context.Context, op func() error) error {
	var err error
	delay := g.backoff
	for attempt := 0; attempt <= g.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		err = op()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return err
}
