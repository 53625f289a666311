package vendors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
)

// HealthWriter persists probe outcomes. The job store satisfies it.
type HealthWriter interface {
	UpsertVendorStatus(ctx context.Context, status jobs.VendorStatus) error
}

// DownFunc is invoked once each time a vendor transitions to down.
type DownFunc func(ctx context.Context, capability, vendor, detail string)

// Monitor probes every registered adapter on an interval and records the
// outcome. A single failed probe degrades a vendor; consecutive failures
// mark it down so the registry stops selecting it.
type Monitor struct {
	registry *Registry
	store    HealthWriter
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	onDown   DownFunc

	mu       sync.Mutex
	failures map[string]int
}

const downThreshold = 2

// NewMonitor constructs a health monitor. onDown may be nil.
func NewMonitor(registry *Registry, store HealthWriter, logger *slog.Logger, interval, timeout time.Duration, onDown DownFunc) *Monitor {
	return &Monitor{
		registry: registry,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "vendor-monitor"),
		interval: interval,
		timeout:  timeout,
		onDown:   onDown,
		failures: make(map[string]int),
	}
}

// Run probes immediately, then on every tick until the context ends.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll checks every registered vendor once.
func (m *Monitor) ProbeAll(ctx context.Context) {
	for _, adapter := range m.registry.Adapters() {
		if ctx.Err() != nil {
			return
		}
		m.probeOne(ctx, adapter)
	}
}

func (m *Monitor) probeOne(ctx context.Context, adapter Adapter) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := adapter.Probe(probeCtx)
	cancel()

	key := string(adapter.Capability()) + "/" + adapter.Name()
	now := time.Now().UTC()

	status := jobs.VendorStatus{
		VendorType:    string(adapter.Capability()),
		VendorName:    adapter.Name(),
		LastCheckedAt: now,
	}

	if err == nil {
		m.mu.Lock()
		recovered := m.failures[key] >= downThreshold
		m.failures[key] = 0
		m.mu.Unlock()

		status.Health = jobs.HealthHealthy
		if recovered {
			m.logger.Info("vendor recovered",
				logging.String(logging.FieldVendor, adapter.Name()),
				logging.String("capability", string(adapter.Capability())))
		}
	} else {
		m.mu.Lock()
		m.failures[key]++
		count := m.failures[key]
		m.mu.Unlock()

		status.Detail = err.Error()
		if count >= downThreshold {
			status.Health = jobs.HealthDown
		} else {
			status.Health = jobs.HealthDegraded
		}

		m.logger.Warn("vendor probe failed",
			logging.String(logging.FieldVendor, adapter.Name()),
			logging.String("capability", string(adapter.Capability())),
			logging.String("health", string(status.Health)),
			logging.Error(err))

		if count == downThreshold && m.onDown != nil {
			m.onDown(ctx, string(adapter.Capability()), adapter.Name(), err.Error())
		}
	}

	if err := m.store.UpsertVendorStatus(ctx, status); err != nil {
		m.logger.Error("persist vendor status",
			logging.String(logging.FieldVendor, adapter.Name()),
			logging.Error(err))
	}
}
