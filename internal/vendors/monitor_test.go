package vendors_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifescribe/internal/jobs"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/testsupport"
	"lifescribe/internal/vendors"
)

func TestMonitorRecordsHealthyProbe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	adapter := &testsupport.FakeAdapter{AdapterName: "clamav", AdapterCapability: stagegraph.CapabilityScan}
	registry := vendors.NewRegistry(store)
	registry.Register(adapter)

	monitor := vendors.NewMonitor(registry, store, nil, time.Minute, time.Second, nil)
	monitor.ProbeAll(context.Background())

	status, err := store.GetVendorStatus(context.Background(), string(stagegraph.CapabilityScan), "clamav")
	if err != nil {
		t.Fatalf("GetVendorStatus: %v", err)
	}
	if status == nil || status.Health != jobs.HealthHealthy {
		t.Fatalf("unexpected status: %#v", status)
	}
	if adapter.ProbeCalls() != 1 {
		t.Fatalf("expected one probe, got %d", adapter.ProbeCalls())
	}
}

func TestMonitorDegradesThenDowns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	adapter := &testsupport.FakeAdapter{
		AdapterName:       "meilisearch",
		AdapterCapability: stagegraph.CapabilityIndex,
		ProbeFunc: func(ctx context.Context) error {
			return errors.New("connection refused")
		},
	}
	registry := vendors.NewRegistry(store)
	registry.Register(adapter)

	var (
		mu        sync.Mutex
		downCalls []string
	)
	onDown := func(ctx context.Context, capability, vendor, detail string) {
		mu.Lock()
		downCalls = append(downCalls, capability+"/"+vendor)
		mu.Unlock()
	}

	monitor := vendors.NewMonitor(registry, store, nil, time.Minute, time.Second, onDown)
	ctx := context.Background()

	monitor.ProbeAll(ctx)
	status, err := store.GetVendorStatus(ctx, string(stagegraph.CapabilityIndex), "meilisearch")
	if err != nil {
		t.Fatalf("GetVendorStatus: %v", err)
	}
	if status.Health != jobs.HealthDegraded {
		t.Fatalf("expected degraded after one failure, got %s", status.Health)
	}

	monitor.ProbeAll(ctx)
	status, err = store.GetVendorStatus(ctx, string(stagegraph.CapabilityIndex), "meilisearch")
	if err != nil {
		t.Fatalf("GetVendorStatus: %v", err)
	}
	if status.Health != jobs.HealthDown {
		t.Fatalf("expected down after two failures, got %s", status.Health)
	}
	if status.Detail == "" {
		t.Fatal("expected failure detail to be recorded")
	}

	// The down notification fires once, not on every subsequent failure.
	monitor.ProbeAll(ctx)
	mu.Lock()
	calls := len(downCalls)
	mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected one down notification, got %d", calls)
	}
}

func TestMonitorRecoversVendor(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var (
		mu   sync.Mutex
		fail = true
	)
	adapter := &testsupport.FakeAdapter{
		AdapterName:       "whispercpp",
		AdapterCapability: stagegraph.CapabilityASR,
		ProbeFunc: func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return errors.New("boom")
			}
			return nil
		},
	}
	registry := vendors.NewRegistry(store)
	registry.Register(adapter)

	monitor := vendors.NewMonitor(registry, store, nil, time.Minute, time.Second, nil)
	ctx := context.Background()

	monitor.ProbeAll(ctx)
	monitor.ProbeAll(ctx)

	mu.Lock()
	fail = false
	mu.Unlock()
	monitor.ProbeAll(ctx)

	status, err := store.GetVendorStatus(ctx, string(stagegraph.CapabilityASR), "whispercpp")
	if err != nil {
		t.Fatalf("GetVendorStatus: %v", err)
	}
	if status.Health != jobs.HealthHealthy {
		t.Fatalf("expected healthy after recovery, got %s", status.Health)
	}
}
