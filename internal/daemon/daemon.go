// Package daemon wires the pipeline together and enforces single-instance
// execution: job store, vendor registry, health monitor, worker pools,
// metrics aggregator, and the admin HTTP API share one lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lifescribe/internal/api"
	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/metrics"
	"lifescribe/internal/notifications"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
	"lifescribe/internal/workers"
)

// Daemon coordinates the background services and the admin API.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *jobs.Store
	graph      *stagegraph.Graph
	registry   *vendors.Registry
	notifier   notifications.Service
	manager    *workers.Manager
	monitor    *vendors.Monitor
	aggregator *metrics.Aggregator
	service    *api.Service
	server     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	JobCounts    map[jobs.Status]int
}

// New constructs a daemon with all dependencies initialized. The job store
// is opened here; callers own Close.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	graph, err := stagegraph.Load(cfg.Paths.StageGraphPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load stage graph: %w", err)
	}

	registry := buildRegistry(cfg, store)
	notifier := notifications.NewService(cfg)

	monitor := vendors.NewMonitor(registry, store, logger,
		time.Duration(cfg.Health.ProbeInterval)*time.Second,
		time.Duration(cfg.Health.ProbeTimeout)*time.Second,
		func(ctx context.Context, capability, vendor, detail string) {
			if err := notifier.NotifyVendorDown(ctx, capability, vendor, detail); err != nil {
				logger.Warn("vendor down notification failed", logging.Error(err))
			}
		})

	manager := workers.NewManager(cfg, store, graph, registry, notifier, logger)
	aggregator := metrics.NewAggregator(cfg, store, graph, logger)
	service := api.NewService(cfg, store, graph, registry, aggregator, logger)

	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		graph:      graph,
		registry:   registry,
		notifier:   notifier,
		manager:    manager,
		monitor:    monitor,
		aggregator: aggregator,
		service:    service,
		lockPath:   cfg.Paths.LockFilePath,
		lock:       flock.New(cfg.Paths.LockFilePath),
	}
	d.server = newAPIServer(cfg, d, service, logger)
	return d, nil
}

// Start acquires the instance lock and launches every background service.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lifescribe daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if err := d.manager.Start(d.ctx); err != nil {
		d.releaseLock()
		d.cancel()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start workers: %w", err)
	}

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(d.ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.aggregator.Run(d.ctx)
	}()

	if d.server != nil {
		if err := d.server.start(d.ctx); err != nil {
			d.cancel()
			d.manager.Stop()
			d.wg.Wait()
			d.releaseLock()
			d.ctx, d.cancel = nil, nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("lifescribe daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	d.server.stop()
	d.wg.Wait()
	d.releaseLock()
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("lifescribe daemon stopped")
}

// Close stops the daemon and releases the job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Service exposes the orchestration layer for embedded callers.
func (d *Daemon) Service() *api.Service {
	return d.service
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
		counts = map[jobs.Status]int{}
	}
	return Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		JobCounts:    counts,
	}
}
