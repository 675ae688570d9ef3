package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// errorResponse is the standard error body (spec.md §6: "Error body:
// {error, code, details?}").
type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

// writeAPIError is the one place spec.md §7 asks for: every errs.Kind maps
// to exactly one HTTP status here.
func writeAPIError(w http.ResponseWriter, err error) {
	e, ok := errs.As(err)
	if !ok {
		slog.Error("unclassified error reached the API boundary", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: string(errs.KindInternal)})
		return
	}

	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", e.Kind, "message", e.Message, "cause", e.Cause)
	}
	writeJSON(w, status, errorResponse{Error: e.Message, Code: string(e.Kind), Details: e.Details})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict, errs.KindHashMismatch:
		return http.StatusConflict
	case errs.KindSessionExpired:
		return http.StatusGone
	case errs.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.KindUnsupportedMime:
		return http.StatusUnsupportedMediaType
	case errs.KindStorage, errs.KindIPFS, errs.KindInternal:
		return http.StatusInternalServerError
	case errs.KindPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}
