package jobs

import (
	"context"
	"path/filepath"
	"testing"

	"lifescribe/internal/config"
)

func newMetricsStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	store, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func completeAt(t *testing.T, store *Store, mediaID, completedAt string) {
	t.Helper()
	ctx := context.Background()
	job, err := store.CreateJob(ctx, NewJobParams{
		MediaID: mediaID, FamilyID: "family-1", Stage: StageOCR,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	claimed, err := store.Claim(ctx, job.ID)
	if err != nil || !claimed {
		t.Fatalf("Claim: %v %v", claimed, err)
	}
	if err := store.Complete(ctx, job.ID, `{"text":"x"}`, 0.01, 120); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := store.db.ExecContext(ctx,
		`UPDATE jobs SET completed_at = ? WHERE id = ?`, completedAt, job.ID); err != nil {
		t.Fatalf("set completed_at: %v", err)
	}
}

func TestOutcomesForStageDateBucketsFirstSecondOfDay(t *testing.T) {
	store := newMetricsStore(t)

	// RFC3339Nano trims trailing zeros, so midnight itself has no
	// fraction while a moment later does. Both belong to March 5th.
	completeAt(t, store, "m-midnight", "2026-03-05T00:00:00Z")
	completeAt(t, store, "m-early", "2026-03-05T00:00:00.123456789Z")
	completeAt(t, store, "m-prior", "2026-03-04T23:59:59.999999999Z")

	ctx := context.Background()
	day, err := store.OutcomesForStageDate(ctx, StageOCR, "2026-03-05")
	if err != nil {
		t.Fatalf("OutcomesForStageDate: %v", err)
	}
	if day.SuccessCount != 2 {
		t.Fatalf("expected 2 completions on the 5th, got %d", day.SuccessCount)
	}

	prior, err := store.OutcomesForStageDate(ctx, StageOCR, "2026-03-04")
	if err != nil {
		t.Fatalf("OutcomesForStageDate: %v", err)
	}
	if prior.SuccessCount != 1 {
		t.Fatalf("expected 1 completion on the 4th, got %d", prior.SuccessCount)
	}

	if _, err := store.OutcomesForStageDate(ctx, StageOCR, "march 5"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}
