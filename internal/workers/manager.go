package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/notifications"
	"lifescribe/internal/retrypolicy"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

// Manager coordinates the per-stage worker pools.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	graph    *stagegraph.Graph
	registry *vendors.Registry
	policy   retrypolicy.Policy
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	vendorTimeout      time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a worker manager. The notifier may be nil; a
// no-op service is substituted.
func NewManager(cfg *config.Config, store *jobs.Store, graph *stagegraph.Graph, registry *vendors.Registry, notifier notifications.Service, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		graph:              graph,
		registry:           registry,
		policy:             retrypolicy.FromConfig(cfg),
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "workers"),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		vendorTimeout:      time.Duration(cfg.Workflow.VendorCallTimeout) * time.Second,
	}
}

// Start launches the worker pools for every stage in the graph.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workers already running")
	}

	stages := m.graph.Stages()
	if len(stages) == 0 {
		return errors.New("stage graph is empty")
	}

	// Attempts left in_progress by a crashed run have no owner; put them
	// back in the queue before the pools start claiming.
	reclaimed, err := m.store.ReclaimAbandoned(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reclaim abandoned attempts: %w", err)
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed abandoned attempts",
			logging.Int64("count", reclaimed),
			logging.String(logging.FieldEventType, "attempts_reclaimed"))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, stage := range stages {
		count := m.cfg.WorkerCount(string(stage))
		for i := 0; i < count; i++ {
			workerLogger := m.logger.With(
				logging.String(logging.FieldStage, string(stage)),
				logging.Int("worker", i),
			)
			m.wg.Add(1)
			go m.runWorker(runCtx, stage, workerLogger)
		}
		m.logger.Debug("stage workers started",
			logging.String(logging.FieldStage, string(stage)),
			logging.Int("count", count))
	}
	return nil
}

// Stop terminates the pools and waits for in-flight attempts to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, stage jobs.Stage, logger *slog.Logger) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextPending(ctx, stage, time.Now().UTC())
		if err != nil {
			m.handleStoreError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.handleStoreError(ctx, logger, err)
		}
	}
}

func (m *Manager) handleStoreError(ctx context.Context, logger *slog.Logger, err error) {
	logger.Error("job store access failed",
		logging.Error(err),
		logging.String(logging.FieldEventType, "store_access_failed"),
		logging.String(logging.FieldErrorHint, "check pipeline database access"))
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// releaseContext returns a context usable for persisting state during
// shutdown, when the run context is already canceled.
func releaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func shortError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return msg
}
