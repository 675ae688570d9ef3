package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/catalog"
	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// Validation failures in Init happen before any catalog or object-store
// call, so they can be exercised against a Controller with nil
// collaborators — mirroring the teacher's own handler tests, which pass
// pool: nil for requests that must fail before reaching the database.

func TestInit_RejectsOversizedDeclaredSize(t *testing.T) {
	c := New(nil, nil, nil, nil, time.Minute, time.Minute, 1024)
	_, err := c.Init(context.Background(), InitRequest{Filename: "a.pdf", SizeBytes: 2048})
	if err == nil {
		t.Fatal("expected error for declared size over the maximum")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindFileTooLarge {
		t.Errorf("expected FILE_TOO_LARGE, got %v", err)
	}
}

func TestInit_RejectsDisallowedMime(t *testing.T) {
	c := New(nil, nil, nil, nil, time.Minute, time.Minute, 1024)
	_, err := c.Init(context.Background(), InitRequest{Filename: "a.exe", MimeHint: "application/x-msdownload"})
	if err == nil {
		t.Fatal("expected error for disallowed mime hint")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindUnsupportedMime {
		t.Errorf("expected UNSUPPORTED_MIME, got %v", err)
	}
}

func TestInit_RejectsMalformedDeclaredDigest(t *testing.T) {
	c := New(nil, nil, nil, nil, time.Minute, time.Minute, 1024)
	_, err := c.Init(context.Background(), InitRequest{Filename: "a.pdf", DeclaredDigest: "not-a-digest"})
	if err == nil {
		t.Fatal("expected error for malformed declared digest")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindValidation {
		t.Errorf("expected VALIDATION, got %v", err)
	}
}

// terminalStateError is only the fallback Complete reaches once a
// terminal-COMPLETE session's resolved digest can't be turned back into an
// artifact (or the session never resolved one, e.g. pre-migration rows);
// the ordinary idempotent-complete path now resolves via ResolvedDigest
// before ever calling this helper (spec.md §4.8.4, P5).
func TestTerminalStateError(t *testing.T) {
	c := &Controller{}
	cases := []struct {
		status catalog.SessionStatus
		want   errs.Kind
	}{
		{catalog.SessionExpired, errs.KindSessionExpired},
		{catalog.SessionAborted, errs.KindHashMismatch},
		{catalog.SessionComplete, errs.KindConflict},
	}
	for _, tc := range cases {
		err := c.terminalStateError(tc.status)
		e, ok := errs.As(err)
		if !ok || e.Kind != tc.want {
			t.Errorf("terminalStateError(%s): got %v, want kind %s", tc.status, err, tc.want)
		}
	}
}
