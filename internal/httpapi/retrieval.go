package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carbonregistry/evidence-registry/internal/retrieval"
)

// RetrievalHandler adapts the retrieval controller to HTTP (spec.md §4.9).
type RetrievalHandler struct {
	ctl        *retrieval.Controller
	publicRead bool
}

// NewRetrievalHandler builds a RetrievalHandler. publicRead toggles
// whether GET /v1/artifacts/{d} requires authentication.
func NewRetrievalHandler(ctl *retrieval.Controller, publicRead bool) *RetrievalHandler {
	return &RetrievalHandler{ctl: ctl, publicRead: publicRead}
}

// Resolve handles GET /v1/artifacts/{d}: a 302 to a presigned download.
// Auth is enforced by the router (skipped entirely when publicRead).
func (h *RetrievalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "d")
	url, err := h.ctl.Resolve(r.Context(), digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

type metaResponse struct {
	ArtifactID string  `json:"artifactId"`
	SHA256Hex  string  `json:"sha256Hex"`
	SizeBytes  int64   `json:"sizeBytes"`
	Mime       string  `json:"mime"`
	Filename   string  `json:"filename"`
	CIDV1      *string `json:"cidV1,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	ProjectID  string  `json:"projectId,omitempty"`
	IssuanceID string  `json:"issuanceId,omitempty"`
	MetaJSON   string  `json:"metaJson,omitempty"`
}

// Meta handles GET /v1/artifacts/{d}/meta, always authenticated.
func (h *RetrievalHandler) Meta(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "d")
	artifact, err := h.ctl.Meta(r.Context(), digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metaResponse{
		ArtifactID: artifact.ID,
		SHA256Hex:  artifact.Digest,
		SizeBytes:  artifact.SizeBytes,
		Mime:       artifact.Mime,
		Filename:   artifact.Filename,
		CIDV1:      artifact.CIDV1,
		CreatedAt:  artifact.CreatedAt.Format(time.RFC3339),
		ProjectID:  artifact.ProjectID,
		IssuanceID: artifact.IssuanceID,
		MetaJSON:   artifact.MetaJSON,
	})
}

type verifyResponse struct {
	Exists     bool    `json:"exists"`
	SizeBytes  *int64  `json:"sizeBytes,omitempty"`
	Mime       *string `json:"mime,omitempty"`
	CIDV1      *string `json:"cidV1,omitempty"`
	CreatedAt  *string `json:"createdAt,omitempty"`
	ScanStatus *string `json:"scanStatus,omitempty"`
}

// Verify handles GET /v1/artifacts/{d}/verify, unauthenticated by design.
func (h *RetrievalHandler) Verify(w http.ResponseWriter, r *http.Request) {
	digest := chi.URLParam(r, "d")
	result, err := h.ctl.Verify(r.Context(), digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !result.Exists {
		writeJSON(w, http.StatusOK, verifyResponse{Exists: false})
		return
	}
	createdAt := result.CreatedAt.Format(time.RFC3339)
	scanStatus := string(result.ScanStatus)
	writeJSON(w, http.StatusOK, verifyResponse{
		Exists:     true,
		SizeBytes:  &result.SizeBytes,
		Mime:       &result.Mime,
		CIDV1:      result.CIDV1,
		CreatedAt:  &createdAt,
		ScanStatus: &scanStatus,
	})
}

// requireAuthUnlessPublic applies auth.Middleware only when publicRead is
// off, per spec.md §4.9's "Otherwise require authentication" clause.
func requireAuthUnlessPublic(publicRead bool, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if publicRead {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
