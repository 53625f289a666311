package meilisearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"lifescribe/internal/config"
	"lifescribe/internal/vendors"
	"lifescribe/internal/vendors/meilisearch"
)

func newClient(baseURL string) *meilisearch.Client {
	return meilisearch.New(config.Vendor{Enabled: true, BaseURL: baseURL, APIKey: "master-key", TimeoutSeconds: 5})
}

func TestExecuteUpsertsDocument(t *testing.T) {
	var received []map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/media/documents" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer master-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode documents: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"taskUid":42,"status":"enqueued"}`))
	}))
	defer server.Close()

	result, err := newClient(server.URL).Execute(context.Background(), vendors.Request{
		MediaID:  "media-9",
		FamilyID: "family-2",
		Text:     "grandpa's war letters",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(received) != 1 {
		t.Fatalf("expected one document, got %d", len(received))
	}
	doc := received[0]
	if doc["id"] != "media-9" || doc["family_id"] != "family-2" || doc["text"] != "grandpa's war letters" {
		t.Fatalf("unexpected document: %v", doc)
	}

	var output struct {
		TaskUID int64 `json:"task_uid"`
	}
	if err := json.Unmarshal([]byte(result.Output), &output); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if output.TaskUID != 42 {
		t.Fatalf("expected task uid 42, got %d", output.TaskUID)
	}
}

func TestProbeHealthStates(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"available", http.StatusOK, `{"status":"available"}`, false},
		{"unavailable", http.StatusOK, `{"status":"unavailable"}`, true},
		{"server error", http.StatusServiceUnavailable, "down", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := newClient(server.URL).Probe(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
