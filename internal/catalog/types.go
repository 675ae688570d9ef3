// Package catalog persists Artifact and UploadSession records in Postgres
// and enforces the uniqueness/transition invariants spec.md §4 requires.
package catalog

import "time"

// ScanStatus is the antivirus-rescan status, independent of the integrity
// state machine (spec.md §3).
type ScanStatus string

const (
	ScanPending   ScanStatus = "PENDING"
	ScanClean     ScanStatus = "CLEAN"
	ScanInfected  ScanStatus = "INFECTED"
)

// SessionStatus is the UploadSession lifecycle state (spec.md §4.8.3).
type SessionStatus string

const (
	SessionPending  SessionStatus = "PENDING"
	SessionComplete SessionStatus = "COMPLETE"
	SessionAborted  SessionStatus = "ABORTED"
	SessionExpired  SessionStatus = "EXPIRED"
)

// Artifact is the authoritative record of a unique stored blob (spec.md §3).
// digest, sizeBytes, bucketKey, createdAt are never mutated after creation
// (I3); digest is unique across all Artifacts (I1).
type Artifact struct {
	ID            string
	Digest        string
	SizeBytes     int64
	Mime          string
	Filename      string
	BucketKey     string
	CIDV1         *string
	UploaderOrgID string
	ProjectID     string
	IssuanceID    string
	MetaJSON      string
	VerifiedAt    time.Time
	ScanStatus    ScanStatus
	CreatedAt     time.Time
}

// UploadSession is the short-lived ticket coordinating the two-phase upload
// (spec.md §3). Once Status leaves PENDING it is frozen (I4).
type UploadSession struct {
	ID             string
	Token          string
	DeclaredDigest string
	// ResolvedDigest is the actual digest computed at complete time,
	// persisted at S10 so a session that completed without a declared
	// digest can still be resolved to its artifact on a second,
	// idempotent complete call (spec.md §4.8.4, P5). Empty until the
	// session reaches COMPLETE.
	ResolvedDigest string
	Filename       string
	ExpectedSize   int64
	MimeHint       string
	BucketKey      string
	UploaderOrgID  string
	ProjectID      string
	IssuanceID     string
	Status         SessionStatus
	CreatedAt      time.Time
	ExpiresAt      time.Time
	CompletedAt    *time.Time
}
