// Package cloudvision is the fallback OCR vendor, backed by the Google
// Cloud Vision images:annotate endpoint.
package cloudvision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

const (
	vendorName         = "cloudvision"
	defaultHTTPTimeout = 60 * time.Second
	// DOCUMENT_TEXT_DETECTION list price per image.
	costPerImage = 0.0015
)

// Client talks to the Cloud Vision REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Cloud Vision adapter from vendor configuration.
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

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityOCR }

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateRequest struct {
	Requests []annotateEntry `json:"requests"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Execute sends the document inline and returns the detected text.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "ocr", "api key required", nil)
	}

	content, err := os.ReadFile(req.FilePath)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, vendorName, "ocr", "read document", err)
	}

	payload := annotateRequest{Requests: []annotateEntry{{
		Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(content)},
		Features: []annotateFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("cloudvision ocr: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/images:annotate?key=%s", c.baseURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("cloudvision ocr: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var annotated annotateResponse
	if err := json.Unmarshal(respBody, &annotated); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "ocr", "decode response", err)
	}
	if len(annotated.Responses) == 0 {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "ocr", "empty annotate response", nil)
	}
	if apiErr := annotated.Responses[0].Error; apiErr != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "ocr",
			fmt.Sprintf("api error: %s", strings.TrimSpace(apiErr.Message)), nil)
	}

	output, err := json.Marshal(map[string]any{
		"text":   annotated.Responses[0].FullTextAnnotation.Text,
		"engine": vendorName,
	})
	if err != nil {
		return empty, fmt.Errorf("cloudvision ocr: encode output: %w", err)
	}
	return vendors.Result{Output: string(output), CostUSD: costPerImage}, nil
}

// Probe checks API reachability only; annotate calls need a valid key.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("cloudvision probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
