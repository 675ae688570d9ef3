package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// Store is the pgx-backed catalog (C7). All operations are transactional
// with respect to Postgres; CreateArtifactIfAbsent additionally relies on
// the database's own unique index on digest to be race-safe across
// concurrent completions (spec.md §4.7).
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateSession inserts a new PENDING upload session.
func (s *Store) CreateSession(ctx context.Context, sess *UploadSession) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO upload_sessions
		   (id, token, declared_digest, resolved_digest, filename, expected_size,
		    mime_hint, bucket_key, uploader_org_id, project_id, issuance_id, status,
		    created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sess.ID, sess.Token, sess.DeclaredDigest, sess.ResolvedDigest, sess.Filename,
		sess.ExpectedSize, sess.MimeHint, sess.BucketKey, sess.UploaderOrgID,
		sess.ProjectID, sess.IssuanceID, sess.Status, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "create upload session", err)
	}
	return nil
}

// FindSession loads a session by id, or returns nil if it does not exist.
func (s *Store) FindSession(ctx context.Context, id string) (*UploadSession, error) {
	var sess UploadSession
	var completedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, token, declared_digest, resolved_digest, filename, expected_size,
		        mime_hint, bucket_key, uploader_org_id, project_id, issuance_id, status,
		        created_at, expires_at, completed_at
		 FROM upload_sessions WHERE id = $1`,
		id,
	).Scan(
		&sess.ID, &sess.Token, &sess.DeclaredDigest, &sess.ResolvedDigest, &sess.Filename,
		&sess.ExpectedSize, &sess.MimeHint, &sess.BucketKey, &sess.UploaderOrgID,
		&sess.ProjectID, &sess.IssuanceID, &sess.Status, &sess.CreatedAt, &sess.ExpiresAt,
		&completedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "find upload session", err)
	}
	sess.CompletedAt = completedAt
	return &sess, nil
}

// UpdateSessionStatus transitions a session's status, guarded by the
// caller-supplied expected current status — this is the compare-and-swap
// that enforces I4 (a session's status and completedAt freeze once it
// leaves PENDING). Returns (applied=false, nil) when the guard does not
// match, i.e. a concurrent request already won the transition.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, expectedCurrent, next SessionStatus, completedAt *time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_sessions SET status = $1, completed_at = $2
		 WHERE id = $3 AND status = $4`,
		next, completedAt, id, expectedCurrent,
	)
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, "update session status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteSession transitions a session from PENDING to COMPLETE and
// persists the digest it resolved to, guarded by the same
// current-status compare-and-swap as UpdateSessionStatus. Persisting the
// resolved digest here — not just for sessions that carried a
// declaredDigest — lets a second, idempotent complete call on a
// no-declared-digest session still resolve to the original artifact
// (spec.md §4.8.4, P5) instead of only being able to re-derive it for
// declared-digest sessions.
func (s *Store) CompleteSession(ctx context.Context, id, resolvedDigest string, completedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_sessions SET status = $1, completed_at = $2, resolved_digest = $3
		 WHERE id = $4 AND status = $5`,
		SessionComplete, completedAt, resolvedDigest, id, SessionPending,
	)
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, "complete upload session", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FindArtifactByDigest returns the Artifact for digest, or nil if none
// exists.
func (s *Store) FindArtifactByDigest(ctx context.Context, digest string) (*Artifact, error) {
	a, err := s.scanArtifact(s.pool.QueryRow(ctx, artifactSelectColumns+` FROM artifacts WHERE digest = $1`, digest))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "find artifact by digest", err)
	}
	return a, nil
}

// CreateArtifactIfAbsent atomically inserts an Artifact, or returns the
// existing row for a's digest if one already exists (I1, I6). The
// `ON CONFLICT ... DO UPDATE ... RETURNING (xmax = 0) AS is_new` idiom
// (the teacher's exact get-or-create pattern) makes this race-safe: two
// concurrent completions of the same digest produce one insert and one
// "existing" return (spec.md §4.8.4).
func (s *Store) CreateArtifactIfAbsent(ctx context.Context, a *Artifact) (artifact *Artifact, created bool, err error) {
	var isNew bool
	row := s.pool.QueryRow(ctx,
		`INSERT INTO artifacts
		   (id, digest, size_bytes, mime, filename, bucket_key, cid_v1,
		    uploader_org_id, project_id, issuance_id, meta_json,
		    verified_at, scan_status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (digest) DO UPDATE SET digest = EXCLUDED.digest
		 RETURNING id, digest, size_bytes, mime, filename, bucket_key, cid_v1,
		           uploader_org_id, project_id, issuance_id, meta_json,
		           verified_at, scan_status, created_at, (xmax = 0) AS is_new`,
		a.ID, a.Digest, a.SizeBytes, a.Mime, a.Filename, a.BucketKey, a.CIDV1,
		a.UploaderOrgID, a.ProjectID, a.IssuanceID, a.MetaJSON, a.VerifiedAt,
		a.ScanStatus, a.CreatedAt,
	)
	var out Artifact
	scanErr := row.Scan(
		&out.ID, &out.Digest, &out.SizeBytes, &out.Mime, &out.Filename, &out.BucketKey,
		&out.CIDV1, &out.UploaderOrgID, &out.ProjectID, &out.IssuanceID, &out.MetaJSON,
		&out.VerifiedAt, &out.ScanStatus, &out.CreatedAt, &isNew,
	)
	if scanErr != nil {
		return nil, false, errs.Wrap(errs.KindInternal, "create artifact if absent", scanErr)
	}
	return &out, isNew, nil
}

// SetArtifactCID sets (or clears, when cid is nil) the artifact's cidV1.
func (s *Store) SetArtifactCID(ctx context.Context, id string, cidV1 *string) error {
	_, err := s.pool.Exec(ctx, `UPDATE artifacts SET cid_v1 = $1 WHERE id = $2`, cidV1, id)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "set artifact cid", err)
	}
	return nil
}

// SetArtifactScanStatus records the result of a rescan.
func (s *Store) SetArtifactScanStatus(ctx context.Context, id string, status ScanStatus, verifiedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE artifacts SET scan_status = $1, verified_at = $2 WHERE id = $3`,
		status, verifiedAt, id,
	)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "set artifact scan status", err)
	}
	return nil
}

// ListArtifactsCreatedBefore returns every artifact created strictly before
// cutoff, oldest caller of the retention sweep (spec.md §4.10).
func (s *Store) ListArtifactsCreatedBefore(ctx context.Context, cutoff time.Time) ([]*Artifact, error) {
	rows, err := s.pool.Query(ctx, artifactSelectColumns+` FROM artifacts WHERE created_at < $1 ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list artifacts created before", err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, scanErr := s.scanArtifactRows(rows)
		if scanErr != nil {
			return nil, errs.Wrap(errs.KindInternal, "scan artifact row", scanErr)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "list artifacts created before", err)
	}
	return out, nil
}

// DeleteArtifact removes the catalog row for id. Idempotent: deleting an
// already-absent id is not an error.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.KindInternal, "delete artifact", err)
	}
	return nil
}

// ExpireStaleSessions bulk-transitions every PENDING session whose
// expiresAt has already passed to EXPIRED. The ingestion controller also
// performs this check per-session at S2 of complete; this is the
// crash-guard-style sweep the teacher runs for stale rows, adapted from a
// background reaper into a one-shot call made at startup
// (spec.md §9: "no background reaper is required").
func (s *Store) ExpireStaleSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE upload_sessions SET status = $1, completed_at = $2
		 WHERE status = $3 AND expires_at < $2`,
		SessionExpired, now, SessionPending,
	)
	if err != nil {
		return 0, errs.Wrap(errs.KindInternal, "expire stale sessions", err)
	}
	return tag.RowsAffected(), nil
}

const artifactSelectColumns = `SELECT id, digest, size_bytes, mime, filename, bucket_key, cid_v1,
	       uploader_org_id, project_id, issuance_id, meta_json,
	       verified_at, scan_status, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanArtifact(row rowScanner) (*Artifact, error) {
	var a Artifact
	err := row.Scan(
		&a.ID, &a.Digest, &a.SizeBytes, &a.Mime, &a.Filename, &a.BucketKey, &a.CIDV1,
		&a.UploaderOrgID, &a.ProjectID, &a.IssuanceID, &a.MetaJSON,
		&a.VerifiedAt, &a.ScanStatus, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) scanArtifactRows(rows pgx.Rows) (*Artifact, error) {
	return s.scanArtifact(rows)
}
