// Package digest computes streaming SHA-256 digests over evidence blobs.
//
// Streaming is mandatory: the full object must never be buffered into
// memory, even for the local-disk backend. The engine observes timing for
// metrics but never retries on I/O errors — retry, if any, is the
// controller's job (spec.md §4.1).
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
)

var hexDigestPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Result is the outcome of hashing a stream: the lowercase hex SHA-256 and
// the total number of bytes observed.
type Result struct {
	Digest    string
	SizeBytes int64
	Elapsed   time.Duration
}

// HashStream consumes r exactly once, computing its SHA-256 digest and
// byte count. On a read error the partial hash state is discarded; the
// caller (the ingestion controller) classifies the failure — spec.md
// §4.8.3 S5 maps any such IO error to the STORAGE error kind.
func HashStream(r io.Reader) (Result, error) {
	start := time.Now()
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Result{}, fmt.Errorf("reading stream for digest: %w", err)
	}
	return Result{
		Digest:    hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
		Elapsed:   time.Since(start),
	}, nil
}

// HashBuffer is a convenience wrapper for in-memory payloads.
func HashBuffer(b []byte) Result {
	sum := sha256.Sum256(b)
	return Result{
		Digest:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(b)),
	}
}

// IsValidDigest reports whether s is a normalized lowercase 64-hex SHA-256
// digest.
func IsValidDigest(s string) bool {
	return hexDigestPattern.MatchString(s)
}

// Normalize strips a leading "0x"/"0X" prefix and lowercases s.
func Normalize(s string) string {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strings.ToLower(s)
}
