package clamav_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
	"lifescribe/internal/vendors"
	"lifescribe/internal/vendors/clamav"
)

func sampleFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 content"), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func newClient(baseURL string) *clamav.Client {
	return clamav.New(config.Vendor{Enabled: true, BaseURL: baseURL, TimeoutSeconds: 5})
}

func TestExecuteCleanFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/scan" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Status":"OK"}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Execute(context.Background(), vendors.Request{
		MediaID:  "m1",
		FilePath: sampleFile(t),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output == "" || result.CostUSD != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteInfectedFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Status":"FOUND","Description":"Eicar-Signature"}`))
	}))
	defer server.Close()

	_, err := newClient(server.URL).Execute(context.Background(), vendors.Request{
		MediaID:  "m1",
		FilePath: sampleFile(t),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for infected file, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("infected verdict must not be retryable")
	}
}

func TestExecuteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "clamd unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(server.URL).Execute(context.Background(), vendors.Request{
		MediaID:  "m1",
		FilePath: sampleFile(t),
	})
	if !errors.Is(err, services.ErrVendorFailure) {
		t.Fatalf("expected vendor failure, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("server errors should be retryable")
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Clamd responding"))
	}))
	defer server.Close()

	if err := newClient(server.URL).Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	server.Close()
	if err := newClient(server.URL).Probe(context.Background()); err == nil {
		t.Fatal("expected probe failure against closed server")
	}
}
