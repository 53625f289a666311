package vendors_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifescribe/internal/jobs"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/testsupport"
	"lifescribe/internal/vendors"
)

func newScanChain(health vendors.HealthReader) (*vendors.Registry, *testsupport.FakeAdapter, *testsupport.FakeAdapter) {
	primary := &testsupport.FakeAdapter{AdapterName: "clamav", AdapterCapability: stagegraph.CapabilityScan}
	fallback := &testsupport.FakeAdapter{AdapterName: "virustotal", AdapterCapability: stagegraph.CapabilityScan}
	registry := vendors.NewRegistry(health)
	registry.Register(primary)
	registry.Register(fallback)
	return registry, primary, fallback
}

func TestSelectFollowsChainOrder(t *testing.T) {
	registry, primary, _ := newScanChain(nil)

	adapter, err := registry.Select(context.Background(), stagegraph.CapabilityScan, "", nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != primary.Name() {
		t.Fatalf("expected primary vendor, got %s", adapter.Name())
	}
}

func TestSelectPrefersCandidate(t *testing.T) {
	registry, _, fallback := newScanChain(nil)

	adapter, err := registry.Select(context.Background(), stagegraph.CapabilityScan, fallback.Name(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != fallback.Name() {
		t.Fatalf("expected preferred vendor, got %s", adapter.Name())
	}
}

func TestSelectSkipsExcluded(t *testing.T) {
	registry, primary, fallback := newScanChain(nil)

	adapter, err := registry.Select(context.Background(), stagegraph.CapabilityScan, "", map[string]bool{primary.Name(): true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != fallback.Name() {
		t.Fatalf("expected fallback vendor, got %s", adapter.Name())
	}

	_, err = registry.Select(context.Background(), stagegraph.CapabilityScan, "",
		map[string]bool{primary.Name(): true, fallback.Name(): true})
	if !errors.Is(err, services.ErrNoHealthyVendor) {
		t.Fatalf("expected ErrNoHealthyVendor, got %v", err)
	}
}

func TestSelectSkipsDownVendors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	registry, primary, fallback := newScanChain(store)

	ctx := context.Background()
	if err := store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityScan), VendorName: primary.Name(),
		Health: jobs.HealthDown, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertVendorStatus: %v", err)
	}

	adapter, err := registry.Select(ctx, stagegraph.CapabilityScan, primary.Name(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != fallback.Name() {
		t.Fatalf("expected fallback when preferred is down, got %s", adapter.Name())
	}

	// A degraded vendor stays selectable as the last resort.
	if err := store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityScan), VendorName: primary.Name(),
		Health: jobs.HealthDegraded, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertVendorStatus: %v", err)
	}
	if err := store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityScan), VendorName: fallback.Name(),
		Health: jobs.HealthDown, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertVendorStatus: %v", err)
	}
	adapter, err = registry.Select(ctx, stagegraph.CapabilityScan, "", nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != primary.Name() {
		t.Fatalf("expected degraded primary as last resort, got %s", adapter.Name())
	}
}

func TestSelectPrefersHealthyOverDegraded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	registry, primary, fallback := newScanChain(store)

	ctx := context.Background()
	if err := store.UpsertVendorStatus(ctx, jobs.VendorStatus{
		VendorType: string(stagegraph.CapabilityScan), VendorName: primary.Name(),
		Health: jobs.HealthDegraded, LastCheckedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("UpsertVendorStatus: %v", err)
	}

	// Even as the pinned candidate, a degraded vendor loses to a healthy
	// alternate.
	adapter, err := registry.Select(ctx, stagegraph.CapabilityScan, primary.Name(), nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if adapter.Name() != fallback.Name() {
		t.Fatalf("expected healthy fallback over degraded candidate, got %s", adapter.Name())
	}
}

func TestSelectUnknownCapability(t *testing.T) {
	registry := vendors.NewRegistry(nil)
	_, err := registry.Select(context.Background(), stagegraph.CapabilityOCR, "", nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for empty chain, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	registry, _, fallback := newScanChain(nil)

	adapter, ok := registry.Lookup(stagegraph.CapabilityScan, fallback.Name())
	if !ok || adapter.Name() != fallback.Name() {
		t.Fatalf("Lookup failed: %v %v", adapter, ok)
	}
	if _, ok := registry.Lookup(stagegraph.CapabilityScan, "nonexistent"); ok {
		t.Fatal("expected lookup miss")
	}
}
