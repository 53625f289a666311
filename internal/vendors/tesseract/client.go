// Package tesseract extracts text from scanned documents through a local
// tesseract OCR HTTP server. It is the primary OCR vendor.
package tesseract

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
	vendorName         = "tesseract"
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to a tesseract OCR server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tesseract adapter from vendor configuration.
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

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityOCR }

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Execute posts the document and returns the recognized text.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result

	endpoint, err := url.JoinPath(c.baseURL, "/ocr")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "ocr", "build url", err)
	}

	body, contentType, err := vendors.FileForm(req.FilePath, "file")
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, vendorName, "ocr", "read document", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return empty, fmt.Errorf("tesseract ocr: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return empty, vendors.WrapTransport(vendorName, "ocr", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "ocr", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, vendors.StatusError(vendorName, "ocr", resp.StatusCode, string(respBody))
	}

	var ocr ocrResponse
	if err := json.Unmarshal(respBody, &ocr); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "ocr", "decode response", err)
	}

	output, err := json.Marshal(map[string]any{
		"text":       ocr.Text,
		"confidence": ocr.Confidence,
		"engine":     vendorName,
	})
	if err != nil {
		return empty, fmt.Errorf("tesseract ocr: encode output: %w", err)
	}
	return vendors.Result{Output: string(output)}, nil
}

// Probe checks the server health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("tesseract probe: request: %w", err)
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
