package objectstore

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// Retrying wraps a Store with a bounded exponential-backoff retry for
// Put/Head/Presign, wherever they are called: init's presign, but also
// complete's relocation Put and download Presign, retrieval's Presign and
// the /ready Head. Get and Delete pass straight through and are never
// retried here: a slow/corrupt read during complete is surfaced to the
// caller as STORAGE, retry is the caller's job (spec.md §4.1, §7).
type Retrying struct {
	Store
	maxElapsed time.Duration
}

// NewRetrying decorates store with bounded retry for transient failures.
func NewRetrying(store Store, maxElapsed time.Duration) *Retrying {
	return &Retrying{Store: store, maxElapsed: maxElapsed}
}

func (r *Retrying) backoffFor(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = r.maxElapsed
	return backoff.WithContext(b, ctx)
}

func (r *Retrying) Put(ctx context.Context, key string, body io.Reader, contentType string, contentLength int64) error {
	// A retried Put must re-read from the start; callers of Retrying.Put
	// for streaming uploads should pass an io.ReadSeeker or accept
	// that a genuinely non-seekable stream can only be attempted once.
	seeker, ok := body.(io.ReadSeeker)
	if !ok {
		return r.Store.Put(ctx, key, body, contentType, contentLength)
	}

	op := func() error {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		err := r.Store.Put(ctx, key, seeker, contentType, contentLength)
		return classifyRetry(err)
	}
	return backoff.Retry(op, r.backoffFor(ctx))
}

func (r *Retrying) Head(ctx context.Context, key string) (bool, error) {
	var exists bool
	op := func() error {
		var err error
		exists, err = r.Store.Head(ctx, key)
		return classifyRetry(err)
	}
	if err := backoff.Retry(op, r.backoffFor(ctx)); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Retrying) Presign(ctx context.Context, op Operation, key string, ttl time.Duration) (string, error) {
	var url string
	fn := func() error {
		var err error
		url, err = r.Store.Presign(ctx, op, key, ttl)
		return classifyRetry(err)
	}
	if err := backoff.Retry(fn, r.backoffFor(ctx)); err != nil {
		return "", err
	}
	return url, nil
}

// classifyRetry decides whether err is worth retrying: only the STORAGE
// kind (spec.md §7 marks it retriable); NOT_FOUND and other kinds are
// permanent as far as the retry loop is concerned.
func classifyRetry(err error) error {
	if err == nil {
		return nil
	}
	if e, ok := errs.As(err); ok && e.Kind == errs.KindStorage {
		return err
	}
	return backoff.Permanent(err)
}
