package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifescribe/internal/api"
	"lifescribe/internal/client"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(api.DaemonStatusResponse{Running: true})
	}))
	defer ts.Close()

	c := client.New(ts.URL, "secret")
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", gotAuth)
	}
	if !status.Running {
		t.Error("Running = false, want true")
	}
}

func TestClientAddsSchemeToBareAddress(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("stage"); got != "ocr" {
			t.Errorf("stage = %q, want ocr", got)
		}
		json.NewEncoder(w).Encode(api.JobListResponse{})
	}))
	defer ts.Close()

	bare := ts.Listener.Addr().String()
	c := client.New(bare, "")
	if _, err := c.ListJobs(context.Background(), client.ListJobsOptions{Stage: "ocr"}); err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "job is not in a retryable state"})
	}))
	defer ts.Close()

	c := client.New(ts.URL, "")
	_, err := c.RetryJob(context.Background(), 7, "")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *client.APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Errorf("StatusCode = %d, want 409", apiErr.StatusCode)
	}
	if apiErr.Message != "job is not in a retryable state" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestClientDownloadsOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/3/output" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer ts.Close()

	c := client.New(ts.URL, "")
	data, err := c.GetJobOutput(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetJobOutput: %v", err)
	}
	if string(data) != `{"text":"hello"}` {
		t.Errorf("output = %q", data)
	}
}
