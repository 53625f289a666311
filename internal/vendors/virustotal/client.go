// Package virustotal is the fallback scan vendor, used when the local
// ClamAV endpoint is down. Files are uploaded to the VirusTotal v3 API
// and the analysis is polled until it completes.
package virustotal

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
	vendorName         = "virustotal"
	defaultHTTPTimeout = 120 * time.Second
	pollInterval       = 5 * time.Second
	// Flat per-file estimate; the public API meters by quota, not dollars.
	costPerScan = 0.01
)

// Client talks to the VirusTotal v3 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a VirusTotal adapter from vendor configuration.
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

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityScan }

type uploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type analysisResponse struct {
	Data struct {
		Attributes struct {
			Status string `json:"status"`
			Stats  struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
			} `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Execute uploads the file and polls its analysis. Malicious verdicts
// fail the attempt permanently.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "scan", "api key required", nil)
	}

	analysisID, err := c.upload(ctx, req.FilePath)
	if err != nil {
		return empty, err
	}

	analysis, err := c.waitForAnalysis(ctx, analysisID)
	if err != nil {
		return empty, err
	}

	stats := analysis.Data.Attributes.Stats
	if stats.Malicious > 0 {
		return empty, services.Wrap(services.ErrValidation, vendorName, "scan",
			fmt.Sprintf("infected: %d engines flagged the file as malicious", stats.Malicious), nil)
	}

	output, err := json.Marshal(map[string]any{
		"clean":      true,
		"engine":     vendorName,
		"suspicious": stats.Suspicious,
	})
	if err != nil {
		return empty, fmt.Errorf("virustotal scan: encode output: %w", err)
	}
	return vendors.Result{Output: string(output), CostUSD: costPerScan}, nil
}

func (c *Client) upload(ctx context.Context, filePath string) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/files")
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, vendorName, "scan", "build url", err)
	}

	body, contentType, err := vendors.FileForm(filePath, "file")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, vendorName, "scan", "read upload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("virustotal scan: request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", vendors.WrapTransport(vendorName, "scan", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", services.Wrap(services.ErrVendorFailure, vendorName, "scan", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", vendors.StatusError(vendorName, "scan", resp.StatusCode, string(respBody))
	}

	var uploaded uploadResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return "", services.Wrap(services.ErrVendorFailure, vendorName, "scan", "decode upload response", err)
	}
	if uploaded.Data.ID == "" {
		return "", services.Wrap(services.ErrVendorFailure, vendorName, "scan", "upload response missing analysis id", nil)
	}
	return uploaded.Data.ID, nil
}

func (c *Client) waitForAnalysis(ctx context.Context, analysisID string) (*analysisResponse, error) {
	for {
		analysis, err := c.fetchAnalysis(ctx, analysisID)
		if err != nil {
			return nil, err
		}
		if analysis.Data.Attributes.Status == "completed" {
			return analysis, nil
		}

		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTimeout, vendorName, "scan", "analysis did not complete in time", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (c *Client) fetchAnalysis(ctx context.Context, analysisID string) (*analysisResponse, error) {
	endpoint, err := url.JoinPath(c.baseURL, "/analyses", analysisID)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, vendorName, "scan", "build url", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("virustotal scan: request: %w", err)
	}
	httpReq.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, vendors.WrapTransport(vendorName, "scan", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrVendorFailure, vendorName, "scan", "read response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, vendors.StatusError(vendorName, "scan", resp.StatusCode, string(respBody))
	}

	var analysis analysisResponse
	if err := json.Unmarshal(respBody, &analysis); err != nil {
		return nil, services.Wrap(services.ErrVendorFailure, vendorName, "scan", "decode analysis response", err)
	}
	return &analysis, nil
}

// Probe checks API reachability. The endpoint requires auth for real
// calls, so any HTTP response at all counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("virustotal probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
