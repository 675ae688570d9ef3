// Package admin implements the registry-only lifecycle operations (C10):
// retention sweep, IPFS pin/unpin, and rescan.
package admin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carbonregistry/evidence-registry/internal/catalog"
	"github.com/carbonregistry/evidence-registry/internal/digest"
	"github.com/carbonregistry/evidence-registry/internal/errs"
	"github.com/carbonregistry/evidence-registry/internal/objectstore"
	"github.com/carbonregistry/evidence-registry/internal/replica"
)

// maxSweepConcurrency bounds the retention sweep's fan-out so a large
// backlog does not open unbounded connections to the object store.
const maxSweepConcurrency = 8

// Controller implements the admin-only operations. pinner may be nil;
// Pin/Unpin then fail with PRECONDITION.
type Controller struct {
	catalog *catalog.Store
	objects objectstore.Store
	pinner  replica.Pinner
}

// New builds an admin Controller.
func New(store *catalog.Store, objects objectstore.Store, pinner replica.Pinner) *Controller {
	return &Controller{catalog: store, objects: objects, pinner: pinner}
}

// SweepResult reports what the retention sweep did or would do.
type SweepResult struct {
	DryRun    bool
	Artifacts []*catalog.Artifact
}

// RetentionSweep deletes (or, if dryRun, merely lists) every artifact
// created before cutoff. Per-artifact failures are logged and skipped;
// the returned list enumerates only artifacts actually deleted (spec.md
// §4.10 — "never partial").
func (c *Controller) RetentionSweep(ctx context.Context, cutoff time.Time, dryRun bool) (*SweepResult, error) {
	candidates, err := c.catalog.ListArtifactsCreatedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if dryRun || len(candidates) == 0 {
		return &SweepResult{DryRun: dryRun, Artifacts: candidates}, nil
	}

	var (
		mu      sync.Mutex
		deleted []*catalog.Artifact
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxSweepConcurrency)

	for _, a := range candidates {
		a := a
		g.Go(func() error {
			if err := c.objects.Delete(gCtx, a.BucketKey); err != nil {
				if e, ok := errs.As(err); !ok || e.Kind != errs.KindNotFound {
					slog.Error("retention sweep: object delete failed", "artifact_id", a.ID, "bucket_key", a.BucketKey, "error", err)
					return nil // non-fatal: skip this artifact, continue the sweep
				}
			}
			if err := c.catalog.DeleteArtifact(gCtx, a.ID); err != nil {
				slog.Error("retention sweep: catalog delete failed", "artifact_id", a.ID, "error", err)
				return nil
			}
			mu.Lock()
			deleted = append(deleted, a)
			mu.Unlock()
			return nil
		})
	}
	// Every g.Go above swallows its own error, so Wait only ever surfaces a
	// context cancellation.
	if err := g.Wait(); err != nil {
		return nil, errs.Wrap(errs.KindInternal, "retention sweep", err)
	}

	return &SweepResult{DryRun: false, Artifacts: deleted}, nil
}

// Pin pins digest's bytes to the secondary replica, or returns the
// already-set cidV1 if one exists (spec.md §4.10).
func (c *Controller) Pin(ctx context.Context, digestHex string) (cidV1, gatewayURL string, err error) {
	if c.pinner == nil {
		return "", "", errs.New(errs.KindPrecondition, "no secondary replica is configured")
	}

	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return "", "", err
	}
	if artifact == nil {
		return "", "", errs.New(errs.KindNotFound, "artifact not found")
	}
	if artifact.CIDV1 != nil {
		return *artifact.CIDV1, c.pinner.GatewayURL(*artifact.CIDV1), nil
	}

	stream, err := c.objects.Get(ctx, artifact.BucketKey)
	if err != nil {
		return "", "", err
	}
	defer stream.Close()

	pinned, err := c.pinner.Pin(ctx, stream)
	if err != nil {
		return "", "", errs.Wrap(errs.KindIPFS, "pin artifact", err)
	}
	if err := c.catalog.SetArtifactCID(ctx, artifact.ID, &pinned.CID); err != nil {
		return "", "", err
	}
	return pinned.CID, c.pinner.GatewayURL(pinned.CID), nil
}

// Unpin clears digest's cidV1, tolerating an already-unset cid as a
// no-op success (spec.md §4.10).
func (c *Controller) Unpin(ctx context.Context, digestHex string) (cidV1 string, err error) {
	if c.pinner == nil {
		return "", errs.New(errs.KindPrecondition, "no secondary replica is configured")
	}

	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", errs.New(errs.KindNotFound, "artifact not found")
	}
	if artifact.CIDV1 == nil {
		return "", nil
	}

	cid := *artifact.CIDV1
	if err := c.pinner.Unpin(ctx, cid); err != nil {
		return "", errs.Wrap(errs.KindIPFS, "unpin artifact", err)
	}
	if err := c.catalog.SetArtifactCID(ctx, artifact.ID, nil); err != nil {
		return "", err
	}
	return cid, nil
}

// RescanResult is the outcome of re-verifying an artifact's bytes.
type RescanResult struct {
	Digest     string
	ScanStatus catalog.ScanStatus
	VerifiedAt time.Time
}

// Rescan re-streams an artifact's bytes, recomputes its digest, and
// compares it to the stored one. A mismatch flags potential corruption
// and is surfaced as STORAGE, not silently downgraded (spec.md §4.10).
func (c *Controller) Rescan(ctx context.Context, digestHex string) (*RescanResult, error) {
	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, errs.New(errs.KindNotFound, "artifact not found")
	}

	stream, err := c.objects.Get(ctx, artifact.BucketKey)
	if err != nil {
		return nil, err
	}
	result, hashErr := digest.HashStream(stream)
	closeErr := stream.Close()
	if hashErr != nil {
		return nil, errs.Wrap(errs.KindStorage, "rescan: read object", hashErr)
	}
	if closeErr != nil {
		slog.Warn("rescan: close object stream failed", "artifact_id", artifact.ID, "error", closeErr)
	}

	if result.Digest != artifact.Digest {
		return nil, errs.Newf(errs.KindStorage, "rescan detected a digest mismatch for artifact %s", artifact.ID).
			WithDetails(map[string]interface{}{"expectedDigest": artifact.Digest, "actualDigest": result.Digest})
	}

	now := time.Now().UTC()
	if err := c.catalog.SetArtifactScanStatus(ctx, artifact.ID, catalog.ScanClean, now); err != nil {
		return nil, err
	}
	return &RescanResult{Digest: artifact.Digest, ScanStatus: catalog.ScanClean, VerifiedAt: now}, nil
}
