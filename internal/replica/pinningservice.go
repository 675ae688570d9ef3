package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// PinningService is a bearer-API-key REST client against the IPFS Pinning
// Service API shape (POST /pins with a multipart file upload variant).
type PinningService struct {
	baseURL    string
	apiKey     string
	gatewayURL string
	client     *http.Client
}

// NewPinningService points at a third-party pinning service base URL.
func NewPinningService(baseURL, apiKey, gatewayURL string, client *http.Client) *PinningService {
	if client == nil {
		client = http.DefaultClient
	}
	return &PinningService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		client:     client,
	}
}

type pinStatusResponse struct {
	Pin struct {
		CID string `json:"cid"`
	} `json:"pin"`
}

func (p *PinningService) Pin(ctx context.Context, r io.Reader) (PinResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "blob")
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "build multipart body", err)
	}
	written, err := io.Copy(part, r)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "read content for pin", err)
	}
	if err := mw.Close(); err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "close multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/pins", &body)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "build pin request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "pin request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return PinResult{}, errs.Newf(errs.KindIPFS, "pin service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var status pinStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "decode pin response", err)
	}

	parsed, err := cid.Parse(status.Pin.CID)
	if err != nil {
		return PinResult{}, errs.Wrap(errs.KindIPFS, "parse returned cid", err)
	}
	if parsed.Version() != 1 {
		return PinResult{}, errs.Newf(errs.KindIPFS, "pin service returned a CIDv%d, expected CIDv1", parsed.Version())
	}

	return PinResult{CID: parsed.String(), Size: written}, nil
}

func (p *PinningService) Unpin(ctx context.Context, cidV1 string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/pins/"+cidV1, nil)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "build unpin request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "unpin request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNotFound {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errs.Newf(errs.KindIPFS, "unpin returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (p *PinningService) GatewayURL(cidV1 string) string {
	return fmt.Sprintf("%s/ipfs/%s", p.gatewayURL, cidV1)
}

// Ping confirms the pinning service's base URL is reachable. Any response
// counts as reachable — only a connection-level failure is an error.
func (p *PinningService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/pins", nil)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "build ping request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindIPFS, "pin service ping request", err)
	}
	resp.Body.Close()
	return nil
}
