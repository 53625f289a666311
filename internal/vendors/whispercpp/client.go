// Package whispercpp transcribes audio through a local whisper.cpp
// server. It is the primary ASR vendor.
package whispercpp

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
	vendorName         = "whispercpp"
	defaultHTTPTimeout = 300 * time.Second
)

// Client talks to a whisper.cpp inference server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a whisper.cpp adapter from vendor configuration.
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

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityASR }

type inferenceResponse struct {
	Text string `json:"text"`
}

// Execute uploads the audio and returns the transcript.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	endpoint, err := url.JoinPath(c.baseURL, "/inference")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "asr", "build url", err)
	}

	body, contentType, err := vendors.FileForm(req.FilePath, "file")
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, vendorName, "asr", "read audio", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return empty, fmt.Errorf("whispercpp asr: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, vendors.WrapTransport(vendorName, "asr", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "asr", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, vendors.StatusError(vendorName, "asr", resp.StatusCode, string(respBody))
	}

	var inference inferenceResponse
	if err := json.Unmarshal(respBody, &inference); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "asr", "decode response", err)
	}

	output, err := json.Marshal(map[string]any{
		"text":   strings.TrimSpace(inference.Text),
		"engine": vendorName,
	})
	if err != nil {
		return empty, fmt.Errorf("whispercpp asr: encode output: %w", err)
	}
	return vendors.Result{Output: string(output)}, nil
}

// Probe checks that the server answers at all; the root path serves the
// demo UI on a healthy instance.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("whispercpp probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
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
