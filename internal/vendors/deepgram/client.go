// Package deepgram is the fallback ASR vendor. Audio is streamed to the
// Deepgram pre-recorded transcription endpoint.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

const (
	vendorName         = "deepgram"
	defaultHTTPTimeout = 300 * time.Second
	// Nova model list price per audio minute.
	costPerMinute = 0.0043
)

// Client talks to the Deepgram v1 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Deepgram adapter from vendor configuration.
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

func (c *Client) Capability() stagegraph.Capability { return stagegraph.CapabilityASR }

type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Execute streams the audio file and returns the transcript. Cost is
// estimated from the duration Deepgram reports.
func (c *Client) Execute(ctx context.Context, req vendors.Request) (vendors.Result, error) {
	var empty vendors.Result
	if c.apiKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "asr", "api key required", nil)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/listen")
	if err != nil {
		return empty, services.Wrap(services.ErrConfiguration, vendorName, "asr", "build url", err)
	}

	audio, err := os.Open(req.FilePath)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, vendorName, "asr", "open audio", err)
	}
	defer audio.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, audio)
	if err != nil {
		return empty, fmt.Errorf("deepgram asr: request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

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

	var listen listenResponse
	if err := json.Unmarshal(respBody, &listen); err != nil {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "asr", "decode response", err)
	}
	if len(listen.Results.Channels) == 0 || len(listen.Results.Channels[0].Alternatives) == 0 {
		return empty, services.Wrap(services.ErrVendorFailure, vendorName, "asr", "response has no transcript", nil)
	}
	alternative := listen.Results.Channels[0].Alternatives[0]

	output, err := json.Marshal(map[string]any{
		"text":       strings.TrimSpace(alternative.Transcript),
		"confidence": alternative.Confidence,
		"engine":     vendorName,
	})
	if err != nil {
		return empty, fmt.Errorf("deepgram asr: encode output: %w", err)
	}

	cost := listen.Metadata.Duration / 60 * costPerMinute
	return vendors.Result{Output: string(output), CostUSD: cost}, nil
}

// Probe checks API reachability only; listen calls need a valid key.
func (c *Client) Probe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("deepgram probe: request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return vendors.WrapTransport(vendorName, "probe", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
