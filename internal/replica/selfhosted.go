package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// SelfHosted talks to a local/private Kubo node's HTTP RPC API
// (POST /api/v0/add, POST /api/v0/pin/rm) over plain net/http — the wire
// format (multipart upload, trailer-JSON response) is Kubo's own, not an
// SDK's.
type SelfHosted struct {
	apiURL     string
	gatewayURL string
	client     *http.Client
}

// NewSelfHosted points at a Kubo RPC API base URL, e.g. "http://ipfs:5001".
func NewSelfHosted(apiURL, gatewayURL string, client *http.Client) *SelfHosted {
	if client == nil {
		client = http.DefaultClient
	}
	return &SelfHosted{apiURL: strings.TrimSuffix(apiURL, "/"), gatewayURL: strings.TrimSuffix(gatewayURL, "/"), client: client}
}

type kuboAddResponse struct {
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func (s *SelfHosted) Pin(ctx context.Context, r io.Reader) (PinResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "build multipart body", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "read content for pin", err)
	}
	if err := mw.Close(); err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "close multipart body", err)
	}

	url := s.apiURL + "/api/v0/add?cid-version=1&pin=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "build add request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "ipfs add request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return PinResult{}, errs.Newf(errs.KindIPFS, "ipfs add returned %d: %s", resp.StatusCode, string(respBody))
	}

	var added kuboAddResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "decode ipfs add response", err)
	}

	parsed, err := cid.Parse(added.Hash)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "parse returned cid", err)
	}
	if parsed.Version() != 1 {
		return PinResult{}, errs.Newf(errs.KindIPFS, "ipfs add returned a CIDv%d, expected CIDv1", parsed.Version())
	}

	size, _ := strconv.ParseInt(added.Size, 10, 64)
	return PinResult{CID: parsed.String(), Size: size}, nil
}

func (s *SelfHosted) Unpin(ctx context.Context, cidV1 string) error {
	url := fmt.Sprintf("%s/api/v0/pin/rm?arg=%s", s.apiURL, cidV1)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "build pin/rm request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "ipfs pin/rm request", err)
	}
	defer resp.Body.Close()

	// Kubo returns 500 "not pinned" when the CID is unknown — tolerate it
	// as a no-op success (spec.md §4.10: "tolerate cidV1=null... returning
	// a no-op success").
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if strings.Contains(string(respBody), "not pinned") {
			return nil
		}
		return errs.Newf(errs.KindIPFS, "ipfs pin/rm returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (s *SelfHosted) GatewayURL(cidV1 string) string {
	return s.gatewayURL + "/ipfs/" + cidV1
}

// Ping confirms the Kubo RPC API is reachable via its version endpoint.
// Any response, including a non-2xx one, counts as reachable — only a
// connection-level failure is an error.
func (s *SelfHosted) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/version", nil)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "build version request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "ipfs version request", err)
	}
	resp.Body.Close()
	return nil
}
