package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/auth"
)

func TestIngestionInit_MissingFilename(t *testing.T) {
	h := NewIngestionHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/init", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	h.Init(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestIngestionInit_InvalidJSON(t *testing.T) {
	h := NewIngestionHandler(nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/init", bytes.NewReader([]byte(`{not json`)))
	rr := httptest.NewRecorder()
	h.Init(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestIngestionComplete_MissingFields(t *testing.T) {
	h := NewIngestionHandler(nil, auth.NewUploadTokenIssuer("secret"))
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/complete", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	h.Complete(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestIngestionComplete_InvalidToken(t *testing.T) {
	h := NewIngestionHandler(nil, auth.NewUploadTokenIssuer("secret"))
	body, _ := json.Marshal(completeRequest{UploadID: "upload-1", Token: "not-a-jwt"})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/complete", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Complete(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestIngestionComplete_TokenUploadIDMismatch(t *testing.T) {
	issuer := auth.NewUploadTokenIssuer("secret")
	h := NewIngestionHandler(nil, issuer)

	tok, err := issuer.Issue("upload-A", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	body, _ := json.Marshal(completeRequest{UploadID: "upload-B", Token: tok})
	req := httptest.NewRequest(http.MethodPost, "/v1/upload/complete", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Complete(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for uploadId/token mismatch, got %d", rr.Code)
	}
}

func TestValueOr(t *testing.T) {
	if got := valueOr("explicit", "fallback"); got != "explicit" {
		t.Errorf("got %q, want explicit", got)
	}
	if got := valueOr("", "fallback"); got != "fallback" {
		t.Errorf("got %q, want fallback", got)
	}
}
