package digest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestHashStream_ContentAddressedDigest(t *testing.T) {
	r := strings.NewReader("hello world!")
	res, err := HashStream(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	const want = "7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca"
	if res.Digest != want {
		t.Errorf("expected digest %s, got %s", want, res.Digest)
	}
	if res.SizeBytes != 12 {
		t.Errorf("expected size 12, got %d", res.SizeBytes)
	}
}

func TestHashStream_DifferentContentDifferentDigest(t *testing.T) {
	a, _ := HashStream(strings.NewReader("alpha"))
	b, _ := HashStream(strings.NewReader("beta"))
	if a.Digest == b.Digest {
		t.Error("expected different digests for different content")
	}
}

func TestHashStream_IdenticalContentIdenticalDigest(t *testing.T) {
	a, _ := HashStream(strings.NewReader("same bytes"))
	b, _ := HashStream(strings.NewReader("same bytes"))
	if a.Digest != b.Digest {
		t.Error("expected identical digests for identical content")
	}
}

type errReader struct{}

func (errReader) Read(_ []byte) (int, error) { return 0, errors.New("boom") }

func TestHashStream_ReadErrorDiscardsPartialState(t *testing.T) {
	_, err := HashStream(errReader{})
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestHashBuffer_MatchesHashStream(t *testing.T) {
	payload := []byte("evidence payload")
	viaBuffer := HashBuffer(payload)
	viaStream, err := HashStream(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if viaBuffer.Digest != viaStream.Digest {
		t.Error("expected HashBuffer and HashStream to agree")
	}
}

func TestIsValidDigest(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{strings.Repeat("a", 64), true},
		{strings.Repeat("A", 64), false}, // must be lowercase
		{strings.Repeat("a", 63), false},
		{strings.Repeat("g", 64), false}, // not hex
		{"", false},
	}
	for _, c := range cases {
		if got := IsValidDigest(c.in); got != c.want {
			t.Errorf("IsValidDigest(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"0xABCDEF": "abcdef",
		"0XABCDEF": "abcdef",
		"ABCDEF":   "abcdef",
		"abcdef":   "abcdef",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashStream_EmptyReader(t *testing.T) {
	res, err := HashStream(io.LimitReader(strings.NewReader(""), 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SizeBytes != 0 {
		t.Errorf("expected size 0, got %d", res.SizeBytes)
	}
}
