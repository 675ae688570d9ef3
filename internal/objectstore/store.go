// Package objectstore is the narrow stream-oriented port the ingestion,
// retrieval, and admin controllers use for bytes (C5). Two backends
// implement Store: an S3-compatible client and a local-disk fallback.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Operation names the action a presigned URL authorizes.
type Operation string

const (
	OperationGet Operation = "GET"
	OperationPut Operation = "PUT"
)

// Store is the object-store port every controller depends on. Every
// implementation must be safe for concurrent use.
type Store interface {
	// Put writes the full content of r to key with the given content type
	// and length.
	Put(ctx context.Context, key string, r io.Reader, contentType string, contentLength int64) error

	// Get opens a read-once stream for key. Callers must Close it on every
	// exit path. Returns a NOT_FOUND *errs.Error when key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head reports whether key exists, without transferring its body.
	Head(ctx context.Context, key string) (bool, error)

	// Delete removes key. Idempotent: deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited URL a client can use directly to
	// perform op against key.
	Presign(ctx context.Context, op Operation, key string, ttl time.Duration) (string, error)
}
