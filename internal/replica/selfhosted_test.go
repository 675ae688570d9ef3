package replica

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testCIDv1 = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"

func TestSelfHosted_Pin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v0/add" {
			t.Errorf("expected /api/v0/add, got %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.RawQuery, "cid-version=1") {
			t.Errorf("expected cid-version=1 in query, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Hash":"` + testCIDv1 + `","Size":"5"}`))
	}))
	defer srv.Close()

	p := NewSelfHosted(srv.URL, "https://gateway.example", nil)
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

func TestSelfHosted_Pin_RejectsCIDv0(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Hash":"QmTzQ1N5C8dSJ4S1UCuCaVQVfVbFyT5r6jZo7LCqvH5nQ6","Size":"5"}`))
	}))
	defer srv.Close()

	p := NewSelfHosted(srv.URL, "https://gateway.example", nil)
	_, err := p.Pin(context.Background(), strings.NewReader("hello"))
	if err == nil {
		t.Fatal("expected error when node returns a CIDv0")
	}
}

func TestSelfHosted_Pin_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"Message":"node unreachable"}`))
	}))
	defer srv.Close()

	p := NewSelfHosted(srv.URL, "https://gateway.example", nil)
	_, err := p.Pin(context.Background(), strings.NewReader("hello"))
	if err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestSelfHosted_Unpin_NotPinnedIsNoOp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`not pinned`))
	}))
	defer srv.Close()

	p := NewSelfHosted(srv.URL, "https://gateway.example", nil)
	if err := p.Unpin(context.Background(), testCIDv1); err != nil {
		t.Errorf("expected 'not pinned' to be treated as a no-op, got %v", err)
	}
}

func TestSelfHosted_Unpin_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/api/v0/pin/rm") {
			t.Errorf("expected pin/rm path, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewSelfHosted(srv.URL, "https://gateway.example", nil)
	if err := p.Unpin(context.Background(), testCIDv1); err != nil {
		t.Errorf("Unpin: %v", err)
	}
}

func TestSelfHosted_GatewayURL(t *testing.T) {
	p := NewSelfHosted("http://ipfs:5001", "https://gateway.example/", nil)
	got := p.GatewayURL(testCIDv1)
	want := "https://gateway.example/ipfs/" + testCIDv1
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
