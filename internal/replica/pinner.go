// Package replica is the optional secondary content-addressed replica
// port (C6). The catalog and ingestion controller must function when no
// Pinner is configured — callers pass a nil replica.Pinner in that case
// and the ingestion controller skips S9 entirely (spec.md §4.6).
package replica

import (
	"context"
	"io"
)

// PinResult is the outcome of a successful pin.
type PinResult struct {
	CID  string
	Size int64
}

// Pinner replicates content to a secondary content-addressed network.
// Implementations must parse/validate any CID they return with
// github.com/ipfs/go-cid before handing it back to a caller.
type Pinner interface {
	// Pin uploads the full content of r and returns its CID.
	Pin(ctx context.Context, r io.Reader) (PinResult, error)

	// Unpin releases a previously pinned CID. Tolerates an already-unpinned
	// or unknown cid as a no-op success.
	Unpin(ctx context.Context, cidV1 string) error

	// GatewayURL returns a public HTTP gateway URL for cidV1.
	GatewayURL(cidV1 string) string

	// Ping reports whether the backend is reachable, for the /ready probe.
	Ping(ctx context.Context) error
}
