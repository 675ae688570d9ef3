package mimeguard

import (
	"testing"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

func TestValidate_Allowed(t *testing.T) {
	for _, mime := range []string{
		"application/pdf", "image/png", "image/jpeg", "text/csv",
		"application/json", "application/zip", "application/x-zip-compressed",
		"text/plain", "application/octet-stream",
	} {
		if err := Validate(mime); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", mime, err)
		}
	}
}

func TestValidate_CaseInsensitive(t *testing.T) {
	if err := Validate("APPLICATION/PDF"); err != nil {
		t.Errorf("expected case-insensitive match, got %v", err)
	}
}

func TestValidate_Rejected(t *testing.T) {
	err := Validate("application/x-msdownload")
	if err == nil {
		t.Fatal("expected rejection for disallowed mime")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindUnsupportedMime {
		t.Errorf("expected UNSUPPORTED_MIME kind, got %v", err)
	}
}

func TestGuessFromFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":   "application/pdf",
		"scan.PNG":     "image/png",
		"photo.jpg":    "image/jpeg",
		"photo.jpeg":   "image/jpeg",
		"data.csv":     "text/csv",
		"meta.json":    "application/json",
		"bundle.zip":   "application/zip",
		"readme.txt":   "text/plain",
	}
	for name, want := range cases {
		got, ok := GuessFromFilename(name)
		if !ok {
			t.Errorf("GuessFromFilename(%q): expected a guess", name)
			continue
		}
		if got != want {
			t.Errorf("GuessFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestGuessFromFilename_Unknown(t *testing.T) {
	if _, ok := GuessFromFilename("archive.tar.gz"); ok {
		t.Error("expected no guess for an unmapped extension")
	}
}
