// Package meilisearch indexes extracted text into a Meilisearch
// instance. It is the primary index vendor.
package meilisearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

const (
	vendorName         = "meilisearch"
	indexName          = "media"
	defaultHTTPTimeout = 30 * time.Second
)

// Client talks to the Meilisearch document API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Meilisearch adapter from vendor configuration.
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

type taskResponse struct {
	TaskUID int64  `json:"taskUid"`
	Status  string `json:"status"`
}

// Execute upserts one searchable document for the media item.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	endpoint, err := url.JoinPath(c.baseURL, "/indexes", indexName, "/documents")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "index", "build url", err)
	}

	docs := []document{{
		ID:       req.MediaID,
		MediaID:  req.MediaID,
		FamilyID: req.FamilyID,
		Text:     req.Text,
	}}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return empty, fmt.Errorf("meilisearch index: encode documents: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("meilisearch index: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

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

	var task taskResponse
	if err := json.Unmarshal(respBody, &task); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "index", "decode response", err)
	}

	output, err := json.Marshal(map[string]any{
		"engine":   vendorName,
		"index":    indexName,
		"task_uid": task.TaskUID,
	})
	if err != nil {
		return empty, fmt.Errorf("meilisearch index: encode output: %w", err)
	}
	return vendors.Result{Output: string(output)}, nil
}

// Probe checks the Meilisearch health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("meilisearch probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return services.Wrap(services.ErrVendorFailure, vendorName, "probe", "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return vendors.StatusError(vendorName, "probe", resp.StatusCode, string(respBody))
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBody, &health); err != nil {
		return services.Wrap(services.ErrVendorFailure, vendorName, "probe", "decode health response", err)
	}
	if health.Status != "available" {
		return services.Wrap(services.ErrVendorFailure, vendorName, "probe",
			fmt.Sprintf("unexpected health status %q", health.Status), nil)
	}
	return nil
}
