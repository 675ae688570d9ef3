package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/auth"
	"github.com/carbonregistry/evidence-registry/internal/errs"
	"github.com/carbonregistry/evidence-registry/internal/ingestion"
)

// IngestionHandler adapts the ingestion controller to HTTP (spec.md §6:
// POST /v1/upload/init, POST /v1/upload/complete, both HMAC).
type IngestionHandler struct {
	ctl    *ingestion.Controller
	tokens *auth.UploadTokenIssuer
}

// NewIngestionHandler builds an IngestionHandler. tokens verifies the
// upload token presented at complete against the uploadId in the body.
func NewIngestionHandler(ctl *ingestion.Controller, tokens *auth.UploadTokenIssuer) *IngestionHandler {
	return &IngestionHandler{ctl: ctl, tokens: tokens}
}

type initRequest struct {
	Filename       string `json:"filename"`
	SizeBytes      int64  `json:"sizeBytes,omitempty"`
	MimeHint       string `json:"mimeHint,omitempty"`
	DeclaredDigest string `json:"declaredSha256,omitempty"`
	UploaderOrgID  string `json:"uploaderOrgId,omitempty"`
	ProjectID      string `json:"projectId,omitempty"`
	IssuanceID     string `json:"issuanceId,omitempty"`
}

type initResponse struct {
	UploadID  string `json:"uploadId"`
	Token     string `json:"token"`
	PutURL    string `json:"putUrl"`
	BucketKey string `json:"bucketKey"`
	ExpiresAt string `json:"expiresAt"`
}

// Init handles POST /v1/upload/init.
func (h *IngestionHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	if req.Filename == "" {
		writeAPIError(w, errs.New(errs.KindValidation, "filename is required"))
		return
	}

	ac, _ := auth.FromContext(r.Context())
	result, err := h.ctl.Init(r.Context(), ingestion.InitRequest{
		Filename:       req.Filename,
		SizeBytes:      req.SizeBytes,
		MimeHint:       req.MimeHint,
		DeclaredDigest: req.DeclaredDigest,
		UploaderOrgID:  valueOr(req.UploaderOrgID, ac.OrgID),
		ProjectID:      req.ProjectID,
		IssuanceID:     req.IssuanceID,
	})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initResponse{
		UploadID:  result.UploadID,
		Token:     result.Token,
		PutURL:    result.PutURL,
		BucketKey: result.BucketKey,
		ExpiresAt: result.ExpiresAt.Format(time.RFC3339),
	})
}

type completeRequest struct {
	UploadID string `json:"uploadId"`
	Token    string `json:"token"`
}

type completeResponse struct {
	ArtifactID  string  `json:"artifactId"`
	SHA256Hex   string  `json:"sha256Hex"`
	SizeBytes   int64   `json:"sizeBytes"`
	Mime        string  `json:"mime"`
	BucketKey   string  `json:"bucketKey"`
	CIDV1       *string `json:"cidV1,omitempty"`
	DownloadURL string  `json:"downloadUrl,omitempty"`
}

// Complete handles POST /v1/upload/complete. The upload token is the
// second factor bound to uploadId (spec.md §3); it is verified here, not
// inside the controller, so the controller stays unaware of the bearer
// transport detail.
func (h *IngestionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	if req.UploadID == "" || req.Token == "" {
		writeAPIError(w, errs.New(errs.KindValidation, "uploadId and token are required"))
		return
	}

	boundID, err := h.tokens.Verify(req.Token)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if boundID != req.UploadID {
		writeAPIError(w, errs.New(errs.KindAuthentication, "upload token does not match uploadId"))
		return
	}

	result, err := h.ctl.Complete(r.Context(), ingestion.CompleteRequest{UploadID: req.UploadID})
	if err != nil {
		writeAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, completeResponse{
		ArtifactID:  result.ArtifactID,
		SHA256Hex:   result.Digest,
		SizeBytes:   result.SizeBytes,
		Mime:        result.Mime,
		BucketKey:   result.BucketKey,
		CIDV1:       result.CIDV1,
		DownloadURL: result.DownloadURL,
	})
}

func valueOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
