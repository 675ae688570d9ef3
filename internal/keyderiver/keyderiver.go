// Package keyderiver derives deterministic object-store keys from a digest
// and sanitizes caller-supplied filenames.
package keyderiver

import "strings"

// unsafeChars mirrors spec.md §4.2: these characters are replaced with "_".
const unsafeChars = `<>:"/\|?*`

// BucketKey derives the canonical object-store key for a digest and
// filename: "sha256/<d[0:2]>/<d[2:4]>/<d>/<sanitized-filename>". digest is
// assumed already normalized lowercase hex.
func BucketKey(digest, filename string) string {
	sanitized := Sanitize(filename)
	if len(digest) < 4 {
		return "sha256/" + digest + "/" + sanitized
	}
	return "sha256/" + digest[0:2] + "/" + digest[2:4] + "/" + digest + "/" + sanitized
}

// Sanitize makes a caller-supplied filename safe to use as a path
// component: replace unsafe characters with "_", collapse ".." to "_",
// strip leading dots, and trim whitespace. Deterministic and idempotent.
func Sanitize(filename string) string {
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "..", "_")

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if strings.ContainsRune(unsafeChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	name = b.String()

	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)

	if name == "" {
		name = "file"
	}
	return name
}
