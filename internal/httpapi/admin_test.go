package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminRetentionSweep_InvalidJSON(t *testing.T) {
	h := NewAdminHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/retention/sweep", bytes.NewReader([]byte(`not json`)))
	rr := httptest.NewRecorder()
	h.RetentionSweep(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestAdminRetentionSweep_InvalidDate(t *testing.T) {
	h := NewAdminHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/retention/sweep", bytes.NewReader([]byte(`{"beforeDate":"not-a-date"}`)))
	rr := httptest.NewRecorder()
	h.RetentionSweep(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestAdminPin_InvalidJSON(t *testing.T) {
	h := NewAdminHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ipfs/pin", bytes.NewReader([]byte(`not json`)))
	rr := httptest.NewRecorder()
	h.Pin(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestAdminUnpin_InvalidJSON(t *testing.T) {
	h := NewAdminHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ipfs/unpin", bytes.NewReader([]byte(`not json`)))
	rr := httptest.NewRecorder()
	h.Unpin(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestAdminRescan_InvalidJSON(t *testing.T) {
	h := NewAdminHandler(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/rescan", bytes.NewReader([]byte(`not json`)))
	rr := httptest.NewRecorder()
	h.Rescan(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
