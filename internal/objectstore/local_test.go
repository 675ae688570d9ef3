package objectstore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return store
}

func TestLocalStore_PutGetRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "sha256/ab/cdef", strings.NewReader("hello world"), "text/plain", 11); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r, err := store.Get(ctx, "sha256/ab/cdef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestLocalStore_GetMissing(t *testing.T) {
	store := newLocalStore(t)
	_, err := store.Get(context.Background(), "does/not/exist")
	if err == nil {
		t.Fatal("expected error for missing key")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindNotFound {
		t.Errorf("expected NOT_FOUND kind, got %v", err)
	}
}

func TestLocalStore_Head(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	exists, err := store.Head(ctx, "missing")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if exists {
		t.Error("expected Head to report false for missing key")
	}

	if err := store.Put(ctx, "present", strings.NewReader("x"), "text/plain", 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	exists, err = store.Head(ctx, "present")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !exists {
		t.Error("expected Head to report true for existing key")
	}
}

func TestLocalStore_Delete_Idempotent(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "gone", strings.NewReader("x"), "text/plain", 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting an already-absent key must not error.
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Errorf("Delete of absent key should be idempotent, got %v", err)
	}
}

func TestLocalStore_PutOverwrites(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "k", strings.NewReader("v1"), "text/plain", 2); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := store.Put(ctx, "k", strings.NewReader("v2-longer"), "text/plain", -1); err != nil {
		t.Fatalf("Put v2: %v", err)
	}

	r, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "v2-longer" {
		t.Errorf("got %q, want v2-longer", got)
	}
}

func TestLocalStore_Presign(t *testing.T) {
	store := newLocalStore(t)
	url, err := store.Presign(context.Background(), OperationGet, "some/key", time.Minute)
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("expected file:// URL, got %q", url)
	}
}

func TestLocalStore_Presign_BaseURL(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/local-objects")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	url, err := store.Presign(context.Background(), OperationPut, "a b/c", time.Minute)
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	want := "http://localhost:8080/local-objects/a%20b/c"
	if url != want {
		t.Errorf("got %q, want %q", url, want)
	}
}

func TestLocalStore_NestedKeyDirectories(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	var buf bytes.Buffer
	buf.WriteString("nested content")

	if err := store.Put(ctx, "a/b/c/d.bin", &buf, "application/octet-stream", int64(buf.Len())); err != nil {
		t.Fatalf("Put: %v", err)
	}
	r, err := store.Get(ctx, "a/b/c/d.bin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	r.Close()
}
