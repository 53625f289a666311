// Package clamav scans uploads through a clamav-rest endpoint in front
// of a local clamd instance. It is the primary scan vendor.
package clamav

import (
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
	vendorName         = "clamav"
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to a clamav-rest server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a ClamAV adapter from vendor configuration.
func New(cfg config.Vendor) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string { return vendorName }

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityScan }

type scanResponse struct {
	Status      string `json:"Status"`
	Description string `json:"Description"`
}

// Execute uploads the file for scanning. A detected signature fails the
// attempt permanently; infected media must never advance.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	endpoint, err := url.JoinPath(c.baseURL, "/scan")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "scan", "build url", err)
	}

	body, contentType, err := vendors.FileForm(req.FilePath, "file")
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, vendorName, "scan", "read upload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return empty, fmt.Errorf("clamav scan: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, vendors.WrapTransport(vendorName, "scan", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "scan", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, vendors.StatusError(vendorName, "scan", resp.StatusCode, string(respBody))
	}

	var scan scanResponse
	if err := json.Unmarshal(respBody, &scan); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "scan", "decode response", err)
	}

	switch strings.ToUpper(strings.TrimSpace(scan.Status)) {
	case "OK":
		output, err := json.Marshal(map[string]any{"clean": true, "engine": vendorName})
		if err != nil {
			return empty, fmt.Errorf("clamav scan: encode output: %w", err)
		}
		return vendors.Result{Output: string(output)}, nil
	case "FOUND":
		return empty, services.Wrap(services.ErrValidation, vendorName, "scan",
			fmt.Sprintf("infected: %s", strings.TrimSpace(scan.Description)), nil)
	default:
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "scan",
			fmt.Sprintf("unexpected scan status %q", scan.Status), nil)
	}
}

// Probe hits the clamav-rest root, which reports clamd connectivity.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("clamav probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return vendors.StatusError(vendorName, "probe", resp.StatusCode, "")
	}
	return nil
}
