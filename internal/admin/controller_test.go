package admin

import (
	"context"
	"testing"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// Pin and Unpin check for a configured secondary replica before touching
// the catalog, so the nil-pinner guard can be exercised with nil
// collaborators throughout — the same "fails before reaching the
// database" shape the teacher's own handler tests rely on.

func TestPin_NoReplicaConfigured(t *testing.T) {
	c := New(nil, nil, nil)
	_, _, err := c.Pin(context.Background(), "deadbeef")
	if err == nil {
		t.Fatal("expected error when no secondary replica is configured")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindPrecondition {
		t.Errorf("expected PRECONDITION, got %v", err)
	}
}

func TestUnpin_NoReplicaConfigured(t *testing.T) {
	c := New(nil, nil, nil)
	_, err := c.Unpin(context.Background(), "deadbeef")
	if err == nil {
		t.Fatal("expected error when no secondary replica is configured")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindPrecondition {
		t.Errorf("expected PRECONDITION, got %v", err)
	}
}
