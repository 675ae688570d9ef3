package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/admin"
	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// AdminHandler adapts the admin controller to HTTP (spec.md §4.10). Every
// route here is mounted behind auth.RequireAdmin.
type AdminHandler struct {
	ctl *admin.Controller
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(ctl *admin.Controller) *AdminHandler {
	return &AdminHandler{ctl: ctl}
}

type sweepRequest struct {
	BeforeDate string `json:"beforeDate"`
	DryRun     bool   `json:"dryRun"`
}

type sweepArtifact struct {
	ArtifactID string `json:"artifactId"`
	SHA256Hex  string `json:"sha256Hex"`
}

type sweepResponse struct {
	DryRun            bool            `json:"dryRun"`
	ArtifactsDeleted  int             `json:"artifactsDeleted,omitempty"`
	ArtifactsToDelete int             `json:"artifactsToDelete,omitempty"`
	Artifacts         []sweepArtifact `json:"artifacts"`
}

// RetentionSweep handles POST /v1/admin/retention/sweep.
func (h *AdminHandler) RetentionSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	cutoff, err := time.Parse(time.RFC3339, req.BeforeDate)
	if err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "beforeDate must be RFC 3339", err))
		return
	}

	result, err := h.ctl.RetentionSweep(r.Context(), cutoff, req.DryRun)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	artifacts := make([]sweepArtifact, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		artifacts = append(artifacts, sweepArtifact{ArtifactID: a.ID, SHA256Hex: a.Digest})
	}

	resp := sweepResponse{DryRun: result.DryRun, Artifacts: artifacts}
	if result.DryRun {
		resp.ArtifactsToDelete = len(artifacts)
	} else {
		resp.ArtifactsDeleted = len(artifacts)
	}
	writeJSON(w, http.StatusOK, resp)
}

type digestRequest struct {
	Digest string `json:"digest"`
}

type pinResponse struct {
	Message    string `json:"message"`
	CIDV1      string `json:"cidV1"`
	GatewayURL string `json:"gatewayUrl"`
}

// Pin handles POST /v1/admin/ipfs/pin.
func (h *AdminHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	cid, gatewayURL, err := h.ctl.Pin(r.Context(), req.Digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pinResponse{Message: "pinned", CIDV1: cid, GatewayURL: gatewayURL})
}

type unpinResponse struct {
	Message string `json:"message"`
	CIDV1   string `json:"cidV1,omitempty"`
}

// Unpin handles POST /v1/admin/ipfs/unpin.
func (h *AdminHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	cid, err := h.ctl.Unpin(r.Context(), req.Digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unpinResponse{Message: "unpinned", CIDV1: cid})
}

type rescanResponse struct {
	Message    string `json:"message"`
	SHA256Hex  string `json:"sha256Hex"`
	ScanStatus string `json:"scanStatus"`
	VerifiedAt string `json:"verifiedAt"`
}

// Rescan handles POST /v1/admin/rescan.
func (h *AdminHandler) Rescan(w http.ResponseWriter, r *http.Request) {
	var req digestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, errs.Wrap(errs.KindValidation, "invalid JSON body", err))
		return
	}
	result, err := h.ctl.Rescan(r.Context(), req.Digest)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rescanResponse{
		Message:    "rescanned",
		SHA256Hex:  result.Digest,
		ScanStatus: string(result.ScanStatus),
		VerifiedAt: result.VerifiedAt.Format(time.RFC3339),
	})
}
