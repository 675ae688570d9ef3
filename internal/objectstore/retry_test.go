package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// countingStore wraps a Store and fails the first N calls to the wrapped
// method with a STORAGE error before delegating.
type countingStore struct {
	Store
	failPutTimes     int
	failHeadTimes    int
	failPresignTimes int
	putCalls         int
	headCalls        int
	presignCalls     int
}

func (c *countingStore) Put(ctx context.Context, key string, r io.Reader, contentType string, contentLength int64) error {
	c.putCalls++
	if c.putCalls <= c.failPutTimes {
		return errs.New(errs.KindStorage, "transient put failure")
	}
	return c.Store.Put(ctx, key, r, contentType, contentLength)
}

func (c *countingStore) Head(ctx context.Context, key string) (bool, error) {
	c.headCalls++
	if c.headCalls <= c.failHeadTimes {
		return false, errs.New(errs.KindStorage, "transient head failure")
	}
	return c.Store.Head(ctx, key)
}

func (c *countingStore) Presign(ctx context.Context, op Operation, key string, ttl time.Duration) (string, error) {
	c.presignCalls++
	if c.presignCalls <= c.failPresignTimes {
		return "", errs.New(errs.KindStorage, "transient presign failure")
	}
	return c.Store.Presign(ctx, op, key, ttl)
}

func TestRetrying_Put_RetriesSeekableReaderOnStorageError(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	inner := &countingStore{Store: local, failPutTimes: 2}
	r := NewRetrying(inner, 10*time.Second)

	body := bytes.NewReader([]byte("payload"))
	if err := r.Put(context.Background(), "k", body, "text/plain", 7); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if inner.putCalls != 3 {
		t.Errorf("expected 3 put attempts, got %d", inner.putCalls)
	}

	got, err := local.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer got.Close()
	data, _ := io.ReadAll(got)
	if string(data) != "payload" {
		t.Errorf("got %q, want payload", data)
	}
}

func TestRetrying_Put_NonSeekableRunsOnce(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	inner := &countingStore{Store: local, failPutTimes: 1}
	r := NewRetrying(inner, time.Second)

	body := io.NopCloser(bytes.NewReader([]byte("payload")))
	err = r.Put(context.Background(), "k", body, "text/plain", 7)
	if err == nil {
		t.Fatal("expected a non-seekable stream to fail without retry")
	}
	if inner.putCalls != 1 {
		t.Errorf("expected exactly 1 attempt for a non-seekable reader, got %d", inner.putCalls)
	}
}

func TestRetrying_Head_RetriesOnStorageError(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	inner := &countingStore{Store: local, failHeadTimes: 2}
	r := NewRetrying(inner, 10*time.Second)

	exists, err := r.Head(context.Background(), "missing-but-reachable")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if exists {
		t.Error("expected exists=false for a key that was never Put")
	}
	if inner.headCalls != 3 {
		t.Errorf("expected 3 head attempts, got %d", inner.headCalls)
	}
}

func TestRetrying_Presign_DoesNotRetryNonStorageError(t *testing.T) {
	local, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	inner := &failingPresignStore{Store: local, err: errs.New(errs.KindValidation, "bad key")}
	r := NewRetrying(inner, time.Second)

	_, err = r.Presign(context.Background(), OperationPut, "k", time.Minute)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if inner.calls != 1 {
		t.Errorf("a non-STORAGE error must not be retried, got %d attempts", inner.calls)
	}
}

type failingPresignStore struct {
	Store
	err   error
	calls int
}

func (f *failingPresignStore) Presign(ctx context.Context, op Operation, key string, ttl time.Duration) (string, error) {
	f.calls++
	return "", f.err
}

func TestClassifyRetry(t *testing.T) {
	if classifyRetry(nil) != nil {
		t.Error("nil error should classify as nil")
	}
	storageErr := errs.New(errs.KindStorage, "transient")
	if err := classifyRetry(storageErr); err != storageErr {
		t.Errorf("STORAGE errors should pass through unwrapped, got %v", err)
	}
	validationErr := errs.New(errs.KindValidation, "bad input")
	err := classifyRetry(validationErr)
	if _, ok := err.(*backoff.PermanentError); !ok {
		t.Errorf("expected a *backoff.PermanentError, got %T", err)
	}
}
