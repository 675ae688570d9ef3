// Package ingestion implements the two-phase upload protocol (C8): init
// mints a presigned PUT and a PENDING session, complete streams the
// staged object through the digest engine, dedupes against the catalog,
// and transitions the session to its terminal state.
package ingestion

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/carbonregistry/evidence-registry/internal/auth"
	"github.com/carbonregistry/evidence-registry/internal/catalog"
	"github.com/carbonregistry/evidence-registry/internal/digest"
	"github.com/carbonregistry/evidence-registry/internal/errs"
	"github.com/carbonregistry/evidence-registry/internal/keyderiver"
	"github.com/carbonregistry/evidence-registry/internal/metrics"
	"github.com/carbonregistry/evidence-registry/internal/mimeguard"
	"github.com/carbonregistry/evidence-registry/internal/objectstore"
	"github.com/carbonregistry/evidence-registry/internal/replica"
)

const defaultMime = "application/octet-stream"

// Controller wires C1–C7 together into the init/complete state machine.
// Pinner may be nil — the controller treats a nil secondary replica as
// "not configured" at S9, per spec.md §4.6.
type Controller struct {
	catalog        *catalog.Store
	objects        objectstore.Store
	pinner         replica.Pinner
	tokens         *auth.UploadTokenIssuer
	sessionTTL     time.Duration
	presignTTL     time.Duration
	maxUploadBytes int64
}

// New builds a Controller. pinner may be nil to disable secondary
// replication entirely.
func New(store *catalog.Store, objects objectstore.Store, pinner replica.Pinner, tokens *auth.UploadTokenIssuer, sessionTTL, presignTTL time.Duration, maxUploadBytes int64) *Controller {
	return &Controller{
		catalog:        store,
		objects:        objects,
		pinner:         pinner,
		tokens:         tokens,
		sessionTTL:     sessionTTL,
		presignTTL:     presignTTL,
		maxUploadBytes: maxUploadBytes,
	}
}

// InitRequest carries the caller-supplied hints for a new upload.
type InitRequest struct {
	Filename       string
	SizeBytes      int64 // 0 means unknown
	MimeHint       string
	DeclaredDigest string
	UploaderOrgID  string
	ProjectID      string
	IssuanceID     string
}

// InitResult is returned to the caller to drive the direct PUT.
type InitResult struct {
	UploadID  string
	Token     string
	PutURL    string
	BucketKey string
	ExpiresAt time.Time
}

// Init mints a session and a presigned PUT URL (spec.md §4.8.1). Failures
// are total: nothing is persisted if any step fails.
func (c *Controller) Init(ctx context.Context, req InitRequest) (*InitResult, error) {
	if req.SizeBytes > 0 && req.SizeBytes > c.maxUploadBytes {
		return nil, errs.Newf(errs.KindFileTooLarge, "declared size %d exceeds the maximum of %d bytes", req.SizeBytes, c.maxUploadBytes)
	}
	if req.MimeHint != "" {
		if err := mimeguard.Validate(req.MimeHint); err != nil {
			return nil, err
		}
	}

	declaredDigest := ""
	if req.DeclaredDigest != "" {
		declaredDigest = digest.Normalize(req.DeclaredDigest)
		if !digest.IsValidDigest(declaredDigest) {
			return nil, errs.New(errs.KindValidation, "declaredDigest is not a valid 64-hex sha256")
		}
	}

	// Staging key: the declared digest if the caller gave one, otherwise a
	// fresh random string so concurrent sessions never collide on the same
	// staging key (spec.md §4.8.1 step 2). The canonical key — derived from
	// the *actual* digest — is only known at complete.
	keySeed := declaredDigest
	if keySeed == "" {
		keySeed = uuid.New().String()
	}
	bucketKey := keyderiver.BucketKey(keySeed, req.Filename)

	uploadID := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(c.sessionTTL)

	token, err := c.tokens.Issue(uploadID, c.sessionTTL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "issue upload token", err)
	}

	putURL, err := c.objects.Presign(ctx, objectstore.OperationPut, bucketKey, c.presignTTL)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "presign upload", err)
	}

	sess := &catalog.UploadSession{
		ID:             uploadID,
		Token:          token,
		DeclaredDigest: declaredDigest,
		Filename:       keyderiver.Sanitize(req.Filename),
		ExpectedSize:   req.SizeBytes,
		MimeHint:       req.MimeHint,
		BucketKey:      bucketKey,
		UploaderOrgID:  req.UploaderOrgID,
		ProjectID:      req.ProjectID,
		IssuanceID:     req.IssuanceID,
		Status:         catalog.SessionPending,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}
	if err := c.catalog.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	metrics.IngestInitTotal.Inc()
	slog.Info("upload session created",
		"upload_id", uploadID,
		"bucket_key", bucketKey,
		"expires_at", expiresAt,
	)

	return &InitResult{
		UploadID:  uploadID,
		Token:     token,
		PutURL:    putURL,
		BucketKey: bucketKey,
		ExpiresAt: expiresAt,
	}, nil
}

// CompleteRequest names the session to finalize.
type CompleteRequest struct {
	UploadID string
}

// CompleteResult is the artifact descriptor returned to the caller.
type CompleteResult struct {
	ArtifactID  string
	Digest      string
	SizeBytes   int64
	Mime        string
	BucketKey   string
	CIDV1       *string
	DownloadURL string
}

// Complete runs the S1-S11 step table (spec.md §4.8.3): it is the heart
// of the ingestion pipeline.
func (c *Controller) Complete(ctx context.Context, req CompleteRequest) (*CompleteResult, error) {
	// S1: load session.
	sess, err := c.catalog.FindSession(ctx, req.UploadID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errs.New(errs.KindNotFound, "upload session not found")
	}

	now := time.Now().UTC()

	// Idempotent complete (P5): a session already in a terminal state
	// short-circuits straight to S7/S11 using the digest it resolved to at
	// S10, rather than re-running S2-S10. ResolvedDigest is persisted for
	// every completion, declared-digest or not (§4.8.4), so this covers
	// the common no-declared-digest path, not just scenario 2's.
	if sess.Status != catalog.SessionPending {
		if sess.Status == catalog.SessionComplete && sess.ResolvedDigest != "" {
			if artifact, aerr := c.catalog.FindArtifactByDigest(ctx, sess.ResolvedDigest); aerr == nil && artifact != nil {
				return c.toResult(ctx, artifact), nil
			}
		}
		return nil, c.terminalStateError(sess.Status)
	}

	// S2: expiry check.
	if sess.ExpiresAt.Before(now) {
		if _, err := c.catalog.UpdateSessionStatus(ctx, sess.ID, catalog.SessionPending, catalog.SessionExpired, &now); err != nil {
			return nil, err
		}
		metrics.IngestCompleteTotal.WithLabelValues("expired").Inc()
		return nil, errs.New(errs.KindSessionExpired, "upload session has expired")
	}

	// S3: bucketKey must be set (always true post-init, guarded defensively).
	if sess.BucketKey == "" {
		return nil, errs.New(errs.KindValidation, "upload session has no staged bucket key")
	}

	// S4: open the staged object.
	stream, err := c.objects.Get(ctx, sess.BucketKey)
	if err != nil {
		return nil, err
	}

	// S5: hash it.
	result, hashErr := digest.HashStream(stream)
	closeErr := stream.Close()
	if hashErr != nil {
		return nil, errs.Wrap(errs.KindStorage, "read staged object for hashing", hashErr)
	}
	if closeErr != nil {
		slog.Warn("close staged object stream failed", "upload_id", sess.ID, "error", closeErr)
	}
	metrics.HashDurationSeconds.Observe(result.Elapsed.Seconds())

	// S6: declared-digest check.
	if sess.DeclaredDigest != "" && sess.DeclaredDigest != result.Digest {
		if _, err := c.catalog.UpdateSessionStatus(ctx, sess.ID, catalog.SessionPending, catalog.SessionAborted, &now); err != nil {
			return nil, err
		}
		metrics.IngestCompleteTotal.WithLabelValues("hash_mismatch").Inc()
		return nil, errs.Newf(errs.KindHashMismatch, "declared digest %s does not match actual digest %s", sess.DeclaredDigest, result.Digest).
			WithDetails(map[string]interface{}{"declaredDigest": sess.DeclaredDigest, "actualDigest": result.Digest})
	}

	// Canonical key reconciliation (spec.md §9): the staging key may have
	// been derived from a random placeholder, not the actual digest. Move
	// the bytes to their canonical location before they ever reach the
	// catalog, so bucketKey always conforms to sha256/<digest>/... (I2).
	canonicalKey := keyderiver.BucketKey(result.Digest, sess.Filename)
	bucketKey := sess.BucketKey
	if canonicalKey != sess.BucketKey {
		if err := c.relocate(ctx, sess.BucketKey, canonicalKey); err != nil {
			return nil, err
		}
		bucketKey = canonicalKey
	}

	mime := sess.MimeHint
	if mime == "" {
		mime = defaultMime
	}

	// S7: dedup lookup.
	existing, err := c.catalog.FindArtifactByDigest(ctx, result.Digest)
	if err != nil {
		return nil, err
	}
	var artifact *catalog.Artifact
	var createdHere bool
	if existing != nil {
		// S8a: dedup hit. Do not create a new artifact, do not pin.
		artifact = existing
		metrics.IngestCompleteTotal.WithLabelValues("dedup").Inc()
	} else {
		// S8b: new artifact.
		candidate := &catalog.Artifact{
			ID:            uuid.New().String(),
			Digest:        result.Digest,
			SizeBytes:     result.SizeBytes,
			Mime:          mime,
			Filename:      sess.Filename,
			BucketKey:     bucketKey,
			UploaderOrgID: sess.UploaderOrgID,
			ProjectID:     sess.ProjectID,
			IssuanceID:    sess.IssuanceID,
			MetaJSON:      "{}",
			VerifiedAt:    now,
			ScanStatus:    catalog.ScanPending,
			CreatedAt:     now,
		}
		created, isNew, err := c.catalog.CreateArtifactIfAbsent(ctx, candidate)
		if err != nil {
			return nil, err
		}
		artifact = created
		createdHere = isNew
		if isNew {
			metrics.IngestCompleteTotal.WithLabelValues("new").Inc()
		} else {
			// A concurrent completion won the race; fall back to S8a (I6).
			metrics.IngestCompleteTotal.WithLabelValues("dedup").Inc()
		}
	}

	// S9: optional secondary replication, only for the genuinely new
	// artifact this call created — a dedup hit (S8a, including the
	// concurrent-loser fallback from S8b) never re-pins. Never fails the
	// request.
	if createdHere && c.pinner != nil {
		c.pinBestEffort(ctx, artifact, bucketKey)
	}

	// S10: mark session complete and persist the digest it resolved to, so
	// a later idempotent complete on this session can re-resolve the
	// artifact without re-hashing (spec.md §4.8.4, P5); guarded by current
	// status=PENDING.
	if _, err := c.catalog.CompleteSession(ctx, sess.ID, result.Digest, now); err != nil {
		return nil, err
	}

	// Reload so a concurrently-won pin (S9 on a racing session for the
	// same digest) is reflected in the response.
	if refreshed, err := c.catalog.FindArtifactByDigest(ctx, artifact.Digest); err == nil && refreshed != nil {
		artifact = refreshed
	}

	return c.toResult(ctx, artifact), nil
}

// relocate copies the bytes at src to dst and removes src, so the
// Artifact is only ever persisted with its canonical key.
func (c *Controller) relocate(ctx context.Context, src, dst string) error {
	r, err := c.objects.Get(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	// GetObject's body is a non-seekable stream with no known length, but
	// Put needs a real content length for strict S3-compatible backends
	// (Retrying.Put only skips its seekable-replay retry, it doesn't solve
	// the missing length). Buffer through a seekable temp file so the
	// relocated PUT carries an accurate Content-Length.
	tmp, err := os.CreateTemp("", "evidence-relocate-*")
	if err != nil {
		return errs.Wrap(errs.KindStorage, "stage relocation temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindStorage, "buffer staged object for relocation", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindStorage, "seek relocation temp file", err)
	}

	if err := c.objects.Put(ctx, dst, tmp, "application/octet-stream", size); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindStorage, "relocate staged object to canonical key", err)
	}
	tmp.Close()

	if err := c.objects.Delete(ctx, src); err != nil {
		slog.Warn("failed to remove staging object after relocation", "src", src, "dst", dst, "error", err)
	}
	return nil
}

func (c *Controller) pinBestEffort(ctx context.Context, artifact *catalog.Artifact, bucketKey string) {
	r, err := c.objects.Get(ctx, bucketKey)
	if err != nil {
		metrics.IPFSPinFailuresTotal.Inc()
		slog.Warn("pin: reopen object failed", "artifact_id", artifact.ID, "error", err)
		return
	}
	defer r.Close()

	pinned, err := c.pinner.Pin(ctx, r)
	if err != nil {
		metrics.IPFSPinFailuresTotal.Inc()
		slog.Warn("pin failed", "artifact_id", artifact.ID, "error", err)
		return
	}
	if err := c.catalog.SetArtifactCID(ctx, artifact.ID, &pinned.CID); err != nil {
		metrics.IPFSPinFailuresTotal.Inc()
		slog.Warn("persist cid failed", "artifact_id", artifact.ID, "error", err)
		return
	}
	artifact.CIDV1 = &pinned.CID
}

// toResult builds the complete-phase response, including a best-effort
// presigned download URL (spec.md §6's downloadUrl field). A presign
// failure here must not fail the request: the caller already has the
// durable artifact descriptor and can re-fetch it via /v1/artifacts/{d}.
func (c *Controller) toResult(ctx context.Context, a *catalog.Artifact) *CompleteResult {
	result := &CompleteResult{
		ArtifactID: a.ID,
		Digest:     a.Digest,
		SizeBytes:  a.SizeBytes,
		Mime:       a.Mime,
		BucketKey:  a.BucketKey,
		CIDV1:      a.CIDV1,
	}
	if url, err := c.objects.Presign(ctx, objectstore.OperationGet, a.BucketKey, c.presignTTL); err == nil {
		result.DownloadURL = url
	} else {
		slog.Warn("presign download url failed", "artifact_id", a.ID, "error", err)
	}
	return result
}

func (c *Controller) terminalStateError(status catalog.SessionStatus) error {
	switch status {
	case catalog.SessionExpired:
		return errs.New(errs.KindSessionExpired, "upload session has expired")
	case catalog.SessionAborted:
		return errs.New(errs.KindHashMismatch, "upload session was aborted due to a hash mismatch")
	default:
		return errs.New(errs.KindConflict, "upload session already completed")
	}
}
