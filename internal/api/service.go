// Package api is the orchestration boundary shared by the HTTP server and
// any embedded caller: enqueue media, inspect and steer jobs, read vendor
// health and statistics. It owns no state of its own; everything delegates
// to the job store, stage graph, registry, and metrics aggregator.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/metrics"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

// ErrJobNotFound reports a job ID with no row behind it.
var ErrJobNotFound = errors.New("job not found")

// ErrNotRetryable reports a retry request against a job that is not in a
// terminal failed state.
var ErrNotRetryable = errors.New("job is not in a retryable state")

// ErrNotCancellable reports a cancel request against a job that already left
// the pending state.
var ErrNotCancellable = errors.New("only pending jobs can be cancelled")

// Service exposes the orchestration operations.
type Service struct {
	store      *jobs.Store
	graph      *stagegraph.Graph
	registry   *vendors.Registry
	aggregator *metrics.Aggregator
	logger     *slog.Logger
	windowDays int
}

// NewService wires the orchestration layer.
func NewService(cfg *config.Config, store *jobs.Store, graph *stagegraph.Graph, registry *vendors.Registry, aggregator *metrics.Aggregator, logger *slog.Logger) *Service {
	return &Service{
		store:      store,
		graph:      graph,
		registry:   registry,
		aggregator: aggregator,
		logger:     logging.NewComponentLogger(logger, "api"),
		windowDays: cfg.Metrics.RollupWindowDays,
	}
}

// EnqueueParams describes one ingestion signal.
type EnqueueParams struct {
	MediaID  string
	FamilyID string
	FilePath string
}

// EnqueueMedia creates pending attempts for every entry stage of the graph.
// A media object that is already in flight is a no-op: the duplicate signal
// creates nothing and reports nothing created.
func (s *Service) EnqueueMedia(ctx context.Context, p EnqueueParams) ([]*jobs.Job, error) {
	if strings.TrimSpace(p.MediaID) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "enqueue", "media id is required", nil)
	}

	var created []*jobs.Job
	for _, stage := range s.graph.FirstStages() {
		job, err := s.store.CreateJob(ctx, jobs.NewJobParams{
			MediaID:  p.MediaID,
			FamilyID: p.FamilyID,
			FilePath: p.FilePath,
			Stage:    stage,
		})
		if errors.Is(err, jobs.ErrDuplicateInFlight) {
			s.logger.Debug("enqueue ignored, media already in flight",
				logging.String(logging.FieldMediaID, p.MediaID),
				logging.String(logging.FieldStage, string(stage)))
			continue
		}
		if err != nil {
			return created, fmt.Errorf("enqueue %s: %w", stage, err)
		}
		s.logger.Info("media enqueued",
			logging.String(logging.FieldMediaID, p.MediaID),
			logging.String(logging.FieldStage, string(stage)),
			logging.Int64(logging.FieldJobID, job.ID))
		created = append(created, job)
	}
	return created, nil
}

// ListJobs returns jobs matching the filters, oldest first.
func (s *Service) ListJobs(ctx context.Context, filters jobs.ListFilters) ([]*jobs.Job, error) {
	return s.store.List(ctx, filters)
}

// GetJob fetches one job including its raw vendor output.
func (s *Service) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// GetJobOutput returns the raw vendor output of one job, suitable for
// download by the admin console.
func (s *Service) GetJobOutput(ctx context.Context, id int64) (string, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.RawOutput, nil
}

// RetryJob forces a new attempt for a terminally failed job. The failed row
// stays untouched as audit history; the new attempt starts clean with the
// retry count bumped by one and runs immediately, past any automatic budget.
// switchVendor, when set, pins the next attempt to that vendor.
func (s *Service) RetryJob(ctx context.Context, id int64, switchVendor string) (*jobs.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != jobs.StatusFailed {
		return nil, fmt.Errorf("%w: job %d is %s", ErrNotRetryable, id, job.Status)
	}

	// Retry the lineage's latest attempt so retry counts keep their total
	// order even when an operator clicks an older failure.
	latest, err := s.store.LatestAttempt(ctx, job.MediaID, job.Stage)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.IsActive() {
		return nil, jobs.ErrDuplicateInFlight
	}
	if latest != nil && latest.RetryCount > job.RetryCount {
		job = latest
	}

	if switchVendor != "" {
		capability, ok := s.graph.CapabilityFor(job.Stage)
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, string(job.Stage), "retry", "stage has no capability", nil)
		}
		if _, ok := s.registry.Lookup(capability, switchVendor); !ok {
			return nil, services.Wrap(services.ErrValidation, string(job.Stage), "retry",
				fmt.Sprintf("unknown vendor %q for capability %s", switchVendor, capability), nil)
		}
	}

	attempt, err := s.store.CreateJob(ctx, jobs.NewJobParams{
		MediaID:         job.MediaID,
		FamilyID:        job.FamilyID,
		FilePath:        job.FilePath,
		Stage:           job.Stage,
		VendorCandidate: switchVendor,
		RetryCount:      job.RetryCount + 1,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("operator retry queued",
		logging.Int64(logging.FieldJobID, attempt.ID),
		logging.String(logging.FieldMediaID, attempt.MediaID),
		logging.String(logging.FieldStage, string(attempt.Stage)),
		logging.String(logging.FieldVendor, switchVendor))
	return attempt, nil
}

// CancelJob marks a pending job failed with a cancelled reason. Jobs that
// already started run to their natural end.
func (s *Service) CancelJob(ctx context.Context, id int64, reason string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by operator"
	}
	cancelled, err := s.store.CancelPending(ctx, id, reason)
	if err != nil {
		return err
	}
	if !cancelled {
		return fmt.Errorf("%w: job %d is %s", ErrNotCancellable, id, job.Status)
	}
	s.logger.Info("job cancelled",
		logging.Int64(logging.FieldJobID, id),
		logging.String(logging.FieldMediaID, job.MediaID),
		logging.String(logging.FieldStage, string(job.Stage)))
	return nil
}

// ListVendorStatus returns the last probed health of every known vendor.
func (s *Service) ListVendorStatus(ctx context.Context) ([]jobs.VendorStatus, error) {
	return s.store.ListVendorStatus(ctx)
}

// OverviewStats answers the live status query.
func (s *Service) OverviewStats(ctx context.Context) (jobs.OverviewStats, error) {
	return s.aggregator.Overview(ctx)
}

// StageStats returns per-(stage, date) rollups across the configured window,
// most recent first.
func (s *Service) StageStats(ctx context.Context) ([]jobs.StageMetricRollup, error) {
	since := time.Now().UTC().AddDate(0, 0, -(s.windowDays - 1)).Format("2006-01-02")
	return s.store.ListRollups(ctx, since)
}
