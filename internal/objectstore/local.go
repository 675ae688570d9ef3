package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// LocalStore is the local-disk fallback: atomic temp-file-then-rename
// writes, a plain (non-authenticated) presigned URL. Callers should not
// rely on the authenticity of a LocalStore presign — it is the key under
// baseURL when one is set, otherwise a bare file path turned into a
// file:// URL, suitable for local/dev deployments only (spec.md §4.5).
type LocalStore struct {
	root    string
	baseURL string // optional, e.g. "http://localhost:8080/local-objects"
}

// NewLocalStore roots the store at root, creating it if necessary.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating local storage root: %w", err)
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

func (l *LocalStore) dataPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalStore) Put(_ context.Context, key string, r io.Reader, _ string, _ int64) error {
	dp := l.dataPath(key)
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return errs.Wrap(errs.KindStorage, "creating local object directory", err)
	}
	if err := atomicWrite(dp, r); err != nil {
		return errs.Wrap(errs.KindStorage, "writing local object", err)
	}
	return nil
}

func (l *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.dataPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Newf(errs.KindNotFound, "object %q not found", key)
		}
		return nil, errs.Wrap(errs.KindStorage, "opening local object", err)
	}
	return f, nil
}

func (l *LocalStore) Head(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(l.dataPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errs.Wrap(errs.KindStorage, "stat local object", err)
	}
	return true, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(l.dataPath(key))
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindStorage, "deleting local object", err)
	}
	return nil
}

// Presign returns a plain URL for key, ignoring op and ttl: the local
// backend has no way to express a time-limited grant, so this is only
// usable where the caller and the store share a filesystem or dev HTTP
// mount (spec.md §4.5 — "callers SHOULD NOT rely on its authenticity").
func (l *LocalStore) Presign(_ context.Context, _ Operation, key string, _ time.Duration) (string, error) {
	if l.baseURL != "" {
		return l.baseURL + "/" + (&url.URL{Path: key}).EscapedPath(), nil
	}
	return "file://" + l.dataPath(key), nil
}

// atomicWrite writes r to dst via a temp file in the same directory,
// followed by a rename, so a crash mid-write never leaves a partial file
// at dst (spec.md §9: "every opened object-store stream must be released
// on every exit path").
func atomicWrite(dst string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dst)
}
