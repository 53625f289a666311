package testsupport

import (
	"context"
	"testing"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a pending attempt for tests using the provided store.
func NewJob(t testing.TB, store *jobs.Store, mediaID string, stage jobs.Stage) *jobs.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), jobs.NewJobParams{
		MediaID:  mediaID,
		FamilyID: "family-test",
		Stage:    stage,
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

// MustClaim claims an attempt and fails the test if the claim is lost.
func MustClaim(t testing.TB, store *jobs.Store, jobID int64) {
	t.Helper()

	claimed, err := store.Claim(context.Background(), jobID)
	if err != nil {
		t.Fatalf("store.Claim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected to claim job %d", jobID)
	}
}

// CompleteJob drives an attempt to completed for tests.
func CompleteJob(t testing.TB, store *jobs.Store, jobID int64) {
	t.Helper()

	MustClaim(t, store, jobID)
	if err := store.Complete(context.Background(), jobID, `{"ok":true}`, 0.01, 100); err != nil {
		t.Fatalf("store.Complete: %v", err)
	}
}

// WaitFor polls until the condition holds or the deadline passes.
func WaitFor(t testing.TB, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
