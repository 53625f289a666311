package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/testsupport"
	"lifescribe/internal/vendors"
	"lifescribe/internal/workers"
)

type recordingNotifier struct {
	mu        sync.Mutex
	exhausted []string
	completed []string
	errors    []string
}

func (r *recordingNotifier) NotifyRetriesExhausted(_ context.Context, mediaID, stage, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exhausted = append(r.exhausted, mediaID+"/"+stage)
	return nil
}

func (r *recordingNotifier) NotifyVendorDown(_ context.Context, _, _, _ string) error { return nil }

func (r *recordingNotifier) NotifyMediaCompleted(_ context.Context, mediaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, mediaID)
	return nil
}

func (r *recordingNotifier) NotifyError(_ context.Context, err error, contextLabel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, contextLabel)
	return nil
}

func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

func (r *recordingNotifier) exhaustedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exhausted)
}

func (r *recordingNotifier) completedMedia() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.completed))
	copy(out, r.completed)
	return out
}

type harness struct {
	cfg      *config.Config
	store    *jobs.Store
	graph    *stagegraph.Graph
	registry *vendors.Registry
	notifier *recordingNotifier
	manager  *workers.Manager
}

func newHarness(t *testing.T, cfg *config.Config, adapters ...vendors.Adapter) *harness {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	registry := vendors.NewRegistry(store)
	for _, adapter := range adapters {
		registry.Register(adapter)
	}
	graph := stagegraph.Default()
	notifier := &recordingNotifier{}
	manager := workers.NewManager(cfg, store, graph, registry, notifier, nil)
	return &harness{
		cfg:      cfg,
		store:    store,
		graph:    graph,
		registry: registry,
		notifier: notifier,
		manager:  manager,
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("start workers: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		h.manager.Stop()
	})
}

func happyAdapters() []vendors.Adapter {
	return []vendors.Adapter{
		&testsupport.FakeAdapter{AdapterName: "builtin", AdapterCapability: stagegraph.CapabilityUpload},
		&testsupport.FakeAdapter{AdapterName: "clamav", AdapterCapability: stagegraph.CapabilityScan},
		&testsupport.FakeAdapter{
			AdapterName:       "tesseract",
			AdapterCapability: stagegraph.CapabilityOCR,
			ExecuteFunc: func(context.Context, vendors.Request) (vendors.Result, error) {
				return vendors.Result{Output: `{"text":"dear family"}`}, nil
			},
		},
		&testsupport.FakeAdapter{
			AdapterName:       "whispercpp",
			AdapterCapability: stagegraph.CapabilityASR,
			ExecuteFunc: func(context.Context, vendors.Request) (vendors.Result, error) {
				return vendors.Result{Output: `{"text":"so there we were"}`, CostUSD: 0.02}, nil
			},
		},
		&testsupport.FakeAdapter{AdapterName: "meilisearch", AdapterCapability: stagegraph.CapabilityIndex},
	}
}

func enqueueUpload(t *testing.T, store *jobs.Store, mediaID string) *jobs.Job {
	t.Helper()
	job, err := store.CreateJob(context.Background(), jobs.NewJobParams{
		MediaID:  mediaID,
		FamilyID: "family-1",
		FilePath: "/uploads/" + mediaID + ".pdf",
		Stage:    jobs.StageUpload,
	})
	if err != nil {
		t.Fatalf("enqueue upload: %v", err)
	}
	return job
}

func stageStatus(t *testing.T, store *jobs.Store, mediaID string, stage jobs.Stage) jobs.Status {
	t.Helper()
	latest, err := store.LatestAttempt(context.Background(), mediaID, stage)
	if err != nil {
		t.Fatalf("latest attempt: %v", err)
	}
	if latest == nil {
		return ""
	}
	return latest.Status
}

func TestPipelineRunsMediaThroughAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	var (
		mu        sync.Mutex
		indexReqs []vendors.Request
	)
	adapters := happyAdapters()
	adapters[4] = &testsupport.FakeAdapter{
		AdapterName:       "meilisearch",
		AdapterCapability: stagegraph.CapabilityIndex,
		ExecuteFunc: func(_ context.Context, req vendors.Request) (vendors.Result, error) {
			mu.Lock()
			indexReqs = append(indexReqs, req)
			mu.Unlock()
			return vendors.Result{Output: `{"task_uid":1}`}, nil
		},
	}

	h := newHarness(t, cfg, adapters...)
	enqueueUpload(t, h.store, "m1")
	h.start(t)

	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageIndex) == jobs.StatusCompleted
	})

	for _, stage := range h.graph.Stages() {
		if got := stageStatus(t, h.store, "m1", stage); got != jobs.StatusCompleted {
			t.Fatalf("stage %s not completed: %s", stage, got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(indexReqs) != 1 {
		t.Fatalf("expected one index call, got %d", len(indexReqs))
	}
	text := indexReqs[0].Text
	if text != "dear family\n\nso there we were" && text != "so there we were\n\ndear family" {
		t.Fatalf("index request missing extracted text: %q", text)
	}

	testsupport.WaitFor(t, 5*time.Second, func() bool {
		return len(h.notifier.completedMedia()) == 1
	})
}

func TestIndexWaitsForBothExtractors(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	asrRelease := make(chan struct{})
	adapters := happyAdapters()
	adapters[3] = &testsupport.FakeAdapter{
		AdapterName:       "whispercpp",
		AdapterCapability: stagegraph.CapabilityASR,
		ExecuteFunc: func(ctx context.Context, _ vendors.Request) (vendors.Result, error) {
			select {
			case <-asrRelease:
				return vendors.Result{Output: `{"text":"transcript"}`}, nil
			case <-ctx.Done():
				return vendors.Result{}, ctx.Err()
			}
		},
	}

	h := newHarness(t, cfg, adapters...)
	enqueueUpload(t, h.store, "m1")
	h.start(t)

	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageOCR) == jobs.StatusCompleted
	})

	// OCR is done but ASR is still running: indexing must not exist yet.
	time.Sleep(2 * time.Second)
	if got := stageStatus(t, h.store, "m1", jobs.StageIndex); got != "" {
		t.Fatalf("index enqueued before ASR finished: %s", got)
	}

	close(asrRelease)
	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageIndex) == jobs.StatusCompleted
	})
}

func TestRetryRotatesVendorAfterRepeatedFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(3))

	var (
		mu        sync.Mutex
		aFailures int
		bVendors  []string
	)
	adapters := happyAdapters()
	adapters[1] = &testsupport.FakeAdapter{
		AdapterName:       "clamav",
		AdapterCapability: stagegraph.CapabilityScan,
		ExecuteFunc: func(context.Context, vendors.Request) (vendors.Result, error) {
			mu.Lock()
			aFailures++
			mu.Unlock()
			return vendors.Result{}, services.Wrap(services.ErrVendorFailure, "clamav", "scan", "http 502", nil)
		},
	}
	fallback := &testsupport.FakeAdapter{
		AdapterName:       "virustotal",
		AdapterCapability: stagegraph.CapabilityScan,
		ExecuteFunc: func(_ context.Context, req vendors.Request) (vendors.Result, error) {
			mu.Lock()
			bVendors = append(bVendors, req.MediaID)
			mu.Unlock()
			return vendors.Result{Output: `{"clean":true}`}, nil
		},
	}

	h := newHarness(t, cfg, append(adapters, fallback)...)
	enqueueUpload(t, h.store, "m1")
	h.start(t)

	testsupport.WaitFor(t, 60*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageVirusScan) == jobs.StatusCompleted
	})

	mu.Lock()
	defer mu.Unlock()
	if aFailures != 2 {
		t.Fatalf("expected rotation after 2 primary failures, primary ran %d times", aFailures)
	}
	if len(bVendors) != 1 {
		t.Fatalf("expected one fallback call, got %d", len(bVendors))
	}

	// The failed attempts stay on record as audit history.
	failed, err := h.store.List(context.Background(), jobs.ListFilters{
		Status: jobs.StatusFailed, Stage: jobs.StageVirusScan, MediaID: "m1",
	})
	if err != nil {
		t.Fatalf("list failed attempts: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed attempts preserved, got %d", len(failed))
	}
}

func TestRetriesExhaustedNotifiesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(1))

	adapters := happyAdapters()
	adapters[0] = &testsupport.FakeAdapter{
		AdapterName:       "builtin",
		AdapterCapability: stagegraph.CapabilityUpload,
		ExecuteFunc: func(context.Context, vendors.Request) (vendors.Result, error) {
			return vendors.Result{}, services.Wrap(services.ErrTransient, "builtin", "validate", "disk flaking", nil)
		},
	}

	h := newHarness(t, cfg, adapters...)
	enqueueUpload(t, h.store, "m1")
	h.start(t)

	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return h.notifier.exhaustedCount() == 1
	})

	// Budget of one retry means exactly two attempts exist.
	attempts, err := h.store.List(context.Background(), jobs.ListFilters{MediaID: "m1", Stage: jobs.StageUpload})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	for _, attempt := range attempts {
		if attempt.Status != jobs.StatusFailed {
			t.Fatalf("expected failed attempts, got %s", attempt.Status)
		}
	}
}

func TestValidationFailureIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxRetries(3))

	adapters := happyAdapters()
	adapters[1] = &testsupport.FakeAdapter{
		AdapterName:       "clamav",
		AdapterCapability: stagegraph.CapabilityScan,
		ExecuteFunc: func(context.Context, vendors.Request) (vendors.Result, error) {
			return vendors.Result{}, services.Wrap(services.ErrValidation, "clamav", "scan", "infected: Eicar-Signature", nil)
		},
	}

	h := newHarness(t, cfg, adapters...)
	enqueueUpload(t, h.store, "m1")
	h.start(t)

	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageVirusScan) == jobs.StatusFailed
	})

	// Give the pools time to (incorrectly) schedule a retry.
	time.Sleep(3 * time.Second)
	attempts, err := h.store.List(context.Background(), jobs.ListFilters{MediaID: "m1", Stage: jobs.StageVirusScan})
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("validation failure must not retry, got %d attempts", len(attempts))
	}
	if attempts[0].FailureKind != "validation" {
		t.Fatalf("unexpected failure kind: %s", attempts[0].FailureKind)
	}

	// Downstream stages never start for rejected media.
	if got := stageStatus(t, h.store, "m1", jobs.StageOCR); got != "" {
		t.Fatalf("ocr should not run after failed scan: %s", got)
	}
}

func TestVendorOutageFailsFastThenRecovers(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	h := newHarness(t, cfg, happyAdapters()...)

	ctx := context.Background()
	if err := h.store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityUpload), VendorName: "builtin",
		Health: jobs.HealthDown, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("mark vendor down: %v", err)
	}

	enqueueUpload(t, h.store, "m1")
	h.start(t)

	// The outage surfaces as a distinct failed attempt instead of an
	// invisible hold.
	var failed []*jobs.Job
	testsupport.WaitFor(t, 30*time.Second, func() bool {
		var err error
		failed, err = h.store.List(ctx, jobs.ListFilters{
			Status: jobs.StatusFailed, Stage: jobs.StageUpload, MediaID: "m1",
		})
		if err != nil {
			t.Fatalf("list failed attempts: %v", err)
		}
		return len(failed) > 0
	})
	for _, attempt := range failed {
		if attempt.FailureKind != string(services.FailureNoHealthyVendor) {
			t.Fatalf("unexpected failure kind: %s", attempt.FailureKind)
		}
	}

	// The follow-up attempt waits without spending the retry budget.
	var latest *jobs.Job
	testsupport.WaitFor(t, 10*time.Second, func() bool {
		var err error
		latest, err = h.store.LatestAttempt(ctx, "m1", jobs.StageUpload)
		if err != nil {
			t.Fatalf("latest attempt: %v", err)
		}
		return latest != nil && latest.Status == jobs.StatusPending
	})
	if latest.RetryCount != 0 {
		t.Fatalf("outage must not consume retries, got %d", latest.RetryCount)
	}

	// Vendor recovers; the follow-up proceeds.
	if err := h.store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityUpload), VendorName: "builtin",
		Health: jobs.HealthHealthy, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("mark vendor healthy: %v", err)
	}
	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageUpload) == jobs.StatusCompleted
	})
}

func TestStartReclaimsOrphanedClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	h := newHarness(t, cfg, happyAdapters()...)

	// A claim with no surviving owner, as left behind by a crash.
	job := enqueueUpload(t, h.store, "m1")
	testsupport.MustClaim(t, h.store, job.ID)

	next, err := h.store.NextPending(context.Background(), jobs.StageUpload, time.Now().UTC())
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if next != nil {
		t.Fatalf("claimed attempt must not be pollable, got %#v", next)
	}

	h.start(t)

	testsupport.WaitFor(t, 30*time.Second, func() bool {
		return stageStatus(t, h.store, "m1", jobs.StageIndex) == jobs.StatusCompleted
	})
}

func TestDuplicateEnqueueIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h := newHarness(t, cfg, happyAdapters()...)

	enqueueUpload(t, h.store, "m1")
	_, err := h.store.CreateJob(context.Background(), jobs.NewJobParams{
		MediaID: "m1", FamilyID: "family-1", Stage: jobs.StageUpload,
	})
	if !errors.Is(err, jobs.ErrDuplicateInFlight) {
		t.Fatalf("expected ErrDuplicateInFlight, got %v", err)
	}
}
