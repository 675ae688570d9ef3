// Package retrieval implements digest-addressed reads (C9): resolving a
// digest to a presigned download, returning the authenticated artifact
// descriptor, and a cheap unauthenticated existence probe.
package retrieval

import (
	"context"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/catalog"
	"github.com/carbonregistry/evidence-registry/internal/errs"
	"github.com/carbonregistry/evidence-registry/internal/metrics"
	"github.com/carbonregistry/evidence-registry/internal/objectstore"
)

// Controller serves reads against the catalog and object store.
type Controller struct {
	catalog    *catalog.Store
	objects    objectstore.Store
	presignTTL time.Duration
}

// New builds a retrieval Controller.
func New(store *catalog.Store, objects objectstore.Store, presignTTL time.Duration) *Controller {
	return &Controller{catalog: store, objects: objects, presignTTL: presignTTL}
}

// Resolve returns a presigned GET for digest's bytes (spec.md §4.9). The
// caller is responsible for applying the PUBLIC_READ auth policy before
// calling this; Resolve itself does not distinguish.
func (c *Controller) Resolve(ctx context.Context, digestHex string) (string, error) {
	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return "", err
	}
	if artifact == nil {
		return "", errs.New(errs.KindNotFound, "artifact not found")
	}

	url, err := c.objects.Presign(ctx, objectstore.OperationGet, artifact.BucketKey, c.presignTTL)
	if err != nil {
		return "", errs.Wrap(errs.KindStorage, "presign download", err)
	}
	metrics.DownloadTotal.Inc()
	return url, nil
}

// Meta returns the full artifact descriptor (spec.md §4.9, always
// authenticated by the caller before this is reached).
func (c *Controller) Meta(ctx context.Context, digestHex string) (*catalog.Artifact, error) {
	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, errs.New(errs.KindNotFound, "artifact not found")
	}
	return artifact, nil
}

// VerifyResult is the existence-probe response. It never touches the
// object store — only the catalog is consulted, so a probe cannot leak
// whether the bytes are currently readable (spec.md §4.9).
type VerifyResult struct {
	Exists     bool
	SizeBytes  int64
	Mime       string
	CIDV1      *string
	CreatedAt  time.Time
	ScanStatus catalog.ScanStatus
}

// Verify is unauthenticated by design: it answers only "does this digest
// exist in the catalog", never anything about object-store health.
func (c *Controller) Verify(ctx context.Context, digestHex string) (*VerifyResult, error) {
	artifact, err := c.catalog.FindArtifactByDigest(ctx, digestHex)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return &VerifyResult{Exists: false}, nil
	}
	return &VerifyResult{
		Exists:     true,
		SizeBytes:  artifact.SizeBytes,
		Mime:       artifact.Mime,
		CIDV1:      artifact.CIDV1,
		CreatedAt:  artifact.CreatedAt,
		ScanStatus: artifact.ScanStatus,
	}, nil
}
