// Package storage is the only component that talks to the object store.
// It provides put/get/delete, presigned write credentials, URL resolution
// (CDN rewrite when configured), and the fan-out delete across an asset's
// full derivative key-space. The MinIO implementation works with any
// S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no object exists at the requested key.
var ErrNotFound = errors.New("object not found")

// ErrStorage wraps transient store faults that survived the bounded retry.
var ErrStorage = errors.New("object store unavailable")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ContentType string
	Size        int64
}

// ObjectStore is the raw object-store client surface. Each call is
// independent; put overwrites, and remove of a missing key maps to
// ErrNotFound so callers can decide whether that matters.
type ObjectStore interface {
	// Put streams data to the store under key. size must be the exact
	// byte count.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType, cacheControl string) error
	// Get opens the object at key for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Stat returns object metadata without reading the body.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Remove deletes the object at key.
	Remove(ctx context.Context, key string) error
	// PresignPut returns a time-limited URL that authorizes exactly one
	// PUT of the given content type to key.
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
}
