// Package mimeguard allow-lists MIME types for ingested evidence and
// guesses a MIME type from a filename extension.
package mimeguard

import (
	"path/filepath"
	"strings"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// allowed is the fixed default allow-list from spec.md §4.3. Comparison is
// case-insensitive.
var allowed = map[string]bool{
	"application/pdf":             true,
	"image/png":                   true,
	"image/jpeg":                  true,
	"text/csv":                    true,
	"application/json":            true,
	"application/zip":             true,
	"application/x-zip-compressed": true,
	"text/plain":                  true,
	"application/octet-stream":    true,
}

// extensionMimes maps a trailing file extension to a best-effort MIME type.
var extensionMimes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".csv":  "text/csv",
	".json": "application/json",
	".zip":  "application/zip",
	".txt":  "text/plain",
}

// Validate returns an UNSUPPORTED_MIME error if mime is not on the
// allow-list.
func Validate(mime string) error {
	if !allowed[strings.ToLower(mime)] {
		return errs.Newf(errs.KindUnsupportedMime, "mime type %q is not in the allow-list", mime)
	}
	return nil
}

// GuessFromFilename returns a best-effort MIME type inferred from name's
// trailing extension, and false if no guess is available.
func GuessFromFilename(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := extensionMimes[ext]
	return mime, ok
}
