// Package client provides HTTP access to a running daemon's admin API.
package client

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

	"lifescribe/internal/api"
)

// Client talks to the daemon's admin API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a client for the given bind address. The address may be a
// bare host:port or a full URL.
func New(address, token string) *Client {
	base := strings.TrimSpace(address)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon api: %s (http %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("daemon api: http %d", e.StatusCode)
}

// Status retrieves daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatusResponse, error) {
	var resp api.DaemonStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue signals a new media object for processing.
func (c *Client) Enqueue(ctx context.Context, req api.EnqueueRequest) (*api.EnqueueResponse, error) {
	var resp api.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/media", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobsOptions narrows a job listing. Zero values match everything.
type ListJobsOptions struct {
	Status  string
	Stage   string
	MediaID string
	Limit   int
}

// ListJobs returns jobs matching the options, oldest first.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) (*api.JobListResponse, error) {
	query := url.Values{}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	if opts.Stage != "" {
		query.Set("stage", opts.Stage)
	}
	if opts.MediaID != "" {
		query.Set("media_id", opts.MediaID)
	}
	if opts.Limit > 0 {
		query.Set("limit", fmt.Sprint(opts.Limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp api.JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob returns one job.
func (c *Client) GetJob(ctx context.Context, id int64) (*api.JobResponse, error) {
	var resp api.JobResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJobOutput downloads the raw vendor output of one job.
func (c *Client) GetJobOutput(ctx context.Context, id int64) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d/output", id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// RetryJob forces a new attempt, optionally pinned to a vendor.
func (c *Client) RetryJob(ctx context.Context, id int64, switchVendor string) (*api.JobResponse, error) {
	var resp api.JobResponse
	body := api.RetryRequest{SwitchVendor: switchVendor}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/retry", id), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelJob cancels a pending job.
func (c *Client) CancelJob(ctx context.Context, id int64, reason string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/cancel", id), api.CancelRequest{Reason: reason}, nil)
}

// VendorStatus lists the probed health of every vendor.
func (c *Client) VendorStatus(ctx context.Context) (*api.VendorStatusResponse, error) {
	var resp api.VendorStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/vendors", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Overview returns the live overview statistics.
func (c *Client) Overview(ctx context.Context) (*api.OverviewResponse, error) {
	var resp api.OverviewResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats/overview", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StageStats returns the per-(stage, date) rollups.
func (c *Client) StageStats(ctx context.Context) (*api.StageStatsResponse, error) {
	var resp api.StageStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats/stages", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
	}
	return apiErr
}
