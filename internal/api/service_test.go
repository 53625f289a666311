package api_test

import (
	"context"
	"errors"
	"testing"

	"lifescribe/internal/api"
	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/metrics"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/testsupport"
	"lifescribe/internal/vendors"
)

func newService(t *testing.T) (*api.Service, *jobs.Store) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	graph := stagegraph.Default()

	registry := vendors.NewRegistry(store)
	registry.Register(&testsupport.FakeAdapter{AdapterName: "clamav", AdapterCapability: stagegraph.CapabilityScan})
	registry.Register(&testsupport.FakeAdapter{AdapterName: "virustotal", AdapterCapability: stagegraph.CapabilityScan})

	aggregator := metrics.NewAggregator(cfg, store, graph, logging.NewNop())
	return api.NewService(cfg, store, graph, registry, aggregator, logging.NewNop()), store
}

func failAttempt(t *testing.T, store *jobs.Store, job *jobs.Job, message string) {
	t.Helper()

	testsupport.MustClaim(t, store, job.ID)
	if err := store.Fail(context.Background(), job.ID, message, "", "timeout"); err != nil {
		t.Fatalf("store.Fail: %v", err)
	}
}

func TestEnqueueMediaCreatesEntryStage(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.EnqueueMedia(ctx, api.EnqueueParams{
		MediaID:  "media-1",
		FamilyID: "family-1",
		FilePath: "/uploads/media-1.pdf",
	})
	if err != nil {
		t.Fatalf("EnqueueMedia: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d jobs, want 1", len(created))
	}
	job := created[0]
	if job.Stage != jobs.StageUpload {
		t.Errorf("Stage = %s, want upload", job.Stage)
	}
	if job.Status != jobs.StatusPending {
		t.Errorf("Status = %s, want pending", job.Status)
	}
	if job.FilePath != "/uploads/media-1.pdf" {
		t.Errorf("FilePath = %q", job.FilePath)
	}

	// The same signal again is a no-op.
	again, err := svc.EnqueueMedia(ctx, api.EnqueueParams{MediaID: "media-1", FamilyID: "family-1"})
	if err != nil {
		t.Fatalf("second EnqueueMedia: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("duplicate enqueue created %d jobs, want 0", len(again))
	}
}

func TestEnqueueMediaRequiresMediaID(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.EnqueueMedia(context.Background(), api.EnqueueParams{FamilyID: "family-1"}); err == nil {
		t.Fatal("expected validation error for empty media id")
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.GetJob(context.Background(), 9999); !errors.Is(err, api.ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestRetryJobSpawnsFreshAttempt(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	// Three automatic failures on the same lineage, then an operator steps in
	// and pins the fallback vendor.
	var last *jobs.Job
	for retry := 0; retry < 3; retry++ {
		job, err := store.CreateJob(ctx, jobs.NewJobParams{
			MediaID:    "media-scan",
			FamilyID:   "family-1",
			FilePath:   "/uploads/media-scan.pdf",
			Stage:      jobs.StageVirusScan,
			RetryCount: retry,
		})
		if err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		failAttempt(t, store, job, "scan timed out")
		last = job
	}

	attempt, err := svc.RetryJob(ctx, last.ID, "virustotal")
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if attempt.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", attempt.RetryCount)
	}
	if attempt.Status != jobs.StatusPending {
		t.Errorf("Status = %s, want pending", attempt.Status)
	}
	if attempt.VendorCandidate != "virustotal" {
		t.Errorf("VendorCandidate = %q, want virustotal", attempt.VendorCandidate)
	}
	if attempt.ErrorMessage != "" || attempt.ErrorDetails != "" {
		t.Errorf("new attempt carries errors: %q / %q", attempt.ErrorMessage, attempt.ErrorDetails)
	}
	if attempt.FilePath != "/uploads/media-scan.pdf" {
		t.Errorf("FilePath = %q, want carried over", attempt.FilePath)
	}

	// The failed row is untouched audit history.
	failed, err := store.GetByID(ctx, last.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != jobs.StatusFailed || failed.ErrorMessage == "" {
		t.Errorf("audit row changed: %+v", failed)
	}
}

func TestRetryJobRetriesLatestAttemptOfLineage(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	first, err := store.CreateJob(ctx, jobs.NewJobParams{
		MediaID: "media-old", FamilyID: "family-1", Stage: jobs.StageVirusScan,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	failAttempt(t, store, first, "first failure")

	second, err := store.CreateJob(ctx, jobs.NewJobParams{
		MediaID: "media-old", FamilyID: "family-1", Stage: jobs.StageVirusScan, RetryCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	failAttempt(t, store, second, "second failure")

	// Retrying the older row still continues from the lineage's latest.
	attempt, err := svc.RetryJob(ctx, first.ID, "")
	if err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if attempt.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", attempt.RetryCount)
	}
}

func TestRetryJobRejections(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, store, "media-pending", jobs.StageVirusScan)
	if _, err := svc.RetryJob(ctx, pending.ID, ""); !errors.Is(err, api.ErrNotRetryable) {
		t.Errorf("retry of pending job: err = %v, want ErrNotRetryable", err)
	}

	failed, err := store.CreateJob(ctx, jobs.NewJobParams{
		MediaID: "media-failed", FamilyID: "family-1", Stage: jobs.StageVirusScan,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	failAttempt(t, store, failed, "boom")

	if _, err := svc.RetryJob(ctx, failed.ID, "nonexistent"); err == nil {
		t.Error("expected error for unknown switch vendor")
	}

	// An active successor attempt blocks another operator retry.
	if _, err := svc.RetryJob(ctx, failed.ID, ""); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	if _, err := svc.RetryJob(ctx, failed.ID, ""); !errors.Is(err, jobs.ErrDuplicateInFlight) {
		t.Errorf("second retry: err = %v, want ErrDuplicateInFlight", err)
	}
}

func TestCancelJobPendingOnly(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	pending := testsupport.NewJob(t, store, "media-cancel", jobs.StageUpload)
	if err := svc.CancelJob(ctx, pending.ID, "media deleted"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	got, err := store.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != jobs.StatusFailed || got.FailureKind != jobs.CancelledKind {
		t.Errorf("cancelled job = %s/%s, want failed/cancelled", got.Status, got.FailureKind)
	}

	running := testsupport.NewJob(t, store, "media-running", jobs.StageUpload)
	testsupport.MustClaim(t, store, running.ID)
	if err := svc.CancelJob(ctx, running.ID, ""); !errors.Is(err, api.ErrNotCancellable) {
		t.Errorf("cancel of in-progress job: err = %v, want ErrNotCancellable", err)
	}
}

func TestStageStatsReturnsRollupWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	graph := stagegraph.Default()
	aggregator := metrics.NewAggregator(cfg, store, graph, logging.NewNop())
	svc := api.NewService(cfg, store, graph, vendors.NewRegistry(store), aggregator, logging.NewNop())
	ctx := context.Background()

	testsupport.CompleteJob(t, store, testsupport.NewJob(t, store, "media-1", jobs.StageUpload).ID)
	if err := aggregator.RecomputeWindow(ctx); err != nil {
		t.Fatalf("RecomputeWindow: %v", err)
	}

	rollups, err := svc.StageStats(ctx)
	if err != nil {
		t.Fatalf("StageStats: %v", err)
	}
	if len(rollups) != 1 {
		t.Fatalf("got %d rollups, want 1", len(rollups))
	}
	if rollups[0].Stage != jobs.StageUpload || rollups[0].SuccessCount != 1 {
		t.Errorf("rollup = %+v", rollups[0])
	}
}
