package vendors

import (
	"context"
	"fmt"
	"sync"

	"lifescribe/internal/jobs"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
)

// HealthReader reports the last recorded health for a vendor. The job
// store satisfies it.
type HealthReader interface {
	GetVendorStatus(ctx context.Context, vendorType, vendorName string) (*jobs.VendorStatus, error)
}

// Registry holds the configured adapters grouped into per-capability
// fallback chains. Registration order within a capability is the
// fallback order.
type Registry struct {
	mu     sync.RWMutex
	chains map[stagegraph.Capability][]Adapter
	health HealthReader
}

// NewRegistry constructs an empty registry. The health reader may be nil,
// in which case every registered vendor is considered available.
func NewRegistry(health HealthReader) *Registry {
	return &Registry{
		chains: make(map[stagegraph.Capability][]Adapter),
		health: health,
	}
}

// Register appends an adapter to its capability chain.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	capability := adapter.Capability()
	r.chains[capability] = append(r.chains[capability], adapter)
}

// Adapters returns every registered adapter.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, chain := range r.chains {
		out = append(out, chain...)
	}
	return out
}

// ForCapability returns the fallback chain for a capability.
func (r *Registry) ForCapability(capability stagegraph.Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.chains[capability]
	out := make([]Adapter, len(chain))
	copy(out, chain)
	return out
}

// Lookup finds a registered adapter by capability and name.
func (r *Registry) Lookup(capability stagegraph.Capability, name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, adapter := range r.chains[capability] {
		if adapter.Name() == name {
			return adapter, true
		}
	}
	return nil, false
}

// Select picks the vendor for one execution. The preferred name, when
// set and registered, is tried first; vendors in the exclude set and
// vendors the health monitor has marked down are skipped, and degraded
// vendors are only used when no healthy one remains. When every
// registered vendor is unavailable the returned error carries the
// no-healthy-vendor marker so operators see the systemic outage.
func (r *Registry) Select(ctx context.Context, capability stagegraph.Capability, preferred string, exclude map[string]bool) (Adapter, error) {
	chain := r.ForCapability(capability)
	if len(chain) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, string(capability), "select",
			fmt.Sprintf("no vendors registered for capability %q", capability), nil)
	}

	ordered := make([]Adapter, 0, len(chain))
	if preferred != "" {
		for _, adapter := range chain {
			if adapter.Name() == preferred {
				ordered = append(ordered, adapter)
				break
			}
		}
	}
	for _, adapter := range chain {
		if adapter.Name() == preferred {
			continue
		}
		ordered = append(ordered, adapter)
	}

	var degraded []Adapter
	for _, adapter := range ordered {
		if exclude[adapter.Name()] {
			continue
		}
		health, err := r.healthOf(ctx, adapter)
		if err != nil {
			return nil, err
		}
		switch health {
		case jobs.HealthDown:
			continue
		case jobs.HealthDegraded:
			degraded = append(degraded, adapter)
		default:
			return adapter, nil
		}
	}
	if len(degraded) > 0 {
		return degraded[0], nil
	}

	return nil, services.Wrap(services.ErrNoHealthyVendor, string(capability), "select",
		fmt.Sprintf("all %s vendors are down or excluded", capability), nil)
}

// Vendors without a recorded status have not been probed yet and are
// treated as healthy.
func (r *Registry) healthOf(ctx context.Context, adapter Adapter) (jobs.VendorHealth, error) {
	if r.health == nil {
		return jobs.HealthHealthy, nil
	}
	status, err := r.health.GetVendorStatus(ctx, string(adapter.Capability()), adapter.Name())
	if err != nil {
		return "", fmt.Errorf("read vendor health for %s: %w", adapter.Name(), err)
	}
	if status == nil {
		return jobs.HealthHealthy, nil
	}
	return status.Health, nil
}
