// Package typesense is the fallback index vendor.
package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

const (
	vendorName         = "typesense"
	collectionName     = "media"
	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to the Typesense document API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Typesense adapter from vendor configuration.
func New(cfg config.Vendor) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return vendorName }

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityIndex }

type document struct {
	ID       string `json:"id"`
	MediaID  string `json:"media_id"`
	FamilyID string `json:"family_id"`
	Text     string `json:"text"`
}

// Execute upserts one searchable document for the media item.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	doc := document{
		ID:       req.MediaID,
		MediaID:  req.MediaID,
		FamilyID: req.FamilyID,
		Text:     req.Text,
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return empty, fmt.Errorf("typesense index: encode document: %w", err)
	}

	endpoint := fmt.Sprintf("%s/collections/%s/documents?action=upsert", c.baseURL, collectionName)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("typesense index: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-TYPESENSE-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, vendors.WrapTransport(vendorName, "index", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "index", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, vendors.StatusError(vendorName, "index", resp.StatusCode, string(respBody))
	}

	output, err := json.Marshal(map[string]any{
		"engine":     vendorName,
		"collection": collectionName,
	})
	if err != nil {
		return empty, fmt.Errorf("typesense index: encode output: %w", err)
	}
	return vendors.Result{Output: string(output)}, nil
}

// Probe checks the Typesense health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("typesense probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return vendors.StatusError(vendorName, "probe", resp.StatusCode, "")
	}
	return nil
}
