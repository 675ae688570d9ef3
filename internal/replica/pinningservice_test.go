package replica

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPinningService_Pin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pins" {
			t.Errorf("expected /pins, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"pin":{"cid":"` + testCIDv1 + `"}}`))
	}))
	defer srv.Close()

	p := NewPinningService(srv.URL, "test-key", "https://gateway.example", nil)
	result, err := p.Pin(context.Background(), strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if result.CID != testCIDv1 {
		t.Errorf("CID: got %q, want %q", result.CID, testCIDv1)
	}
	if result.Size != 5 {
		t.Errorf("Size: got %d, want 5", result.Size)
	}
}

func TestPinningService_Pin_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	p := NewPinningService(srv.URL, "bad-key", "https://gateway.example", nil)
	_, err := p.Pin(context.Background(), strings.NewReader("hello"))
	if err == nil {
		t.Fatal("expected error on 401 response")
	}
}

func TestPinningService_Unpin_ToleratesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewPinningService(srv.URL, "test-key", "https://gateway.example", nil)
	if err := p.Unpin(context.Background(), testCIDv1); err != nil {
		t.Errorf("expected 404 to be tolerated, got %v", err)
	}
}

func TestPinningService_Unpin_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewPinningService(srv.URL, "test-key", "https://gateway.example", nil)
	if err := p.Unpin(context.Background(), testCIDv1); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestPinningService_GatewayURL(t *testing.T) {
	p := NewPinningService("https://pin.example", "key", "https://gateway.example", nil)
	got := p.GatewayURL(testCIDv1)
	want := "https://gateway.example/ipfs/" + testCIDv1
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
