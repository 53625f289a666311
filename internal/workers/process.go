package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
	"lifescribe/internal/vendors"
)

func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *jobs.Job) error {
	claimed, err := m.store.Claim(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another worker won the claim.
		return nil
	}

	requestID := uuid.NewString()
	jobCtx := services.WithRequestID(ctx, requestID)
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobCtx = services.WithMediaID(jobCtx, job.MediaID)
	jobCtx = services.WithStage(jobCtx, string(job.Stage))
	jobLogger := logging.WithContext(jobCtx, logger)

	capability, ok := m.graph.CapabilityFor(job.Stage)
	if !ok {
		err := services.Wrap(services.ErrConfiguration, string(job.Stage), "process",
			"stage is not part of the configured graph", nil)
		m.failAttempt(jobCtx, jobLogger, job, "", err)
		return nil
	}

	adapter, err := m.registry.Select(jobCtx, capability, job.VendorCandidate, nil)
	if err != nil {
		if errors.Is(err, services.ErrNoHealthyVendor) {
			m.failNoHealthyVendor(jobCtx, jobLogger, job, capability, err)
			return nil
		}
		m.failAttempt(jobCtx, jobLogger, job, "", err)
		return nil
	}

	if err := m.store.SetVendor(jobCtx, job.ID, adapter.Name()); err != nil {
		m.releaseClaim(ctx, jobLogger, job.ID)
		return err
	}
	jobCtx = services.WithVendor(jobCtx, adapter.Name())
	jobLogger = logging.WithContext(jobCtx, logger)

	request := vendors.Request{
		MediaID:  job.MediaID,
		FamilyID: job.FamilyID,
		FilePath: job.FilePath,
	}
	if capability.NeedsText() {
		text, err := m.collectText(jobCtx, job)
		if err != nil {
			m.releaseClaim(ctx, jobLogger, job.ID)
			return err
		}
		request.Text = text
	}

	jobLogger.Info("attempt started",
		logging.String(logging.FieldEventType, "attempt_start"),
		logging.Int("retry_count", job.RetryCount))

	execCtx, cancel := context.WithTimeout(jobCtx, m.vendorTimeout)
	start := time.Now()
	result, execErr := adapter.Execute(execCtx, request)
	cancel()
	durationMs := time.Since(start).Milliseconds()

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) && ctx.Err() != nil {
			// Shutdown mid-call: put the attempt back for the next run.
			m.releaseClaim(ctx, jobLogger, job.ID)
			return context.Canceled
		}
		m.failAttempt(jobCtx, jobLogger, job, adapter.Name(), execErr)
		return nil
	}

	if err := m.store.Complete(jobCtx, job.ID, result.Output, result.CostUSD, durationMs); err != nil {
		return err
	}
	jobLogger.Info("attempt completed",
		logging.String(logging.FieldEventType, "attempt_complete"),
		logging.Int64("duration_ms", durationMs),
		logging.Float64("cost_usd", result.CostUSD))

	return m.advance(jobCtx, jobLogger, job)
}

// releaseClaim hands a claimed attempt back to the queue when processing
// cannot proceed past the claim. It works during shutdown too, when the
// run context is already canceled.
func (m *Manager) releaseClaim(ctx context.Context, logger *slog.Logger, jobID int64) {
	releaseCtx, cancel := releaseContext(ctx)
	defer cancel()
	if err := m.store.Release(releaseCtx, jobID, time.Now().UTC()); err != nil {
		logger.Error("release claimed attempt", logging.Error(err))
	}
}

// failNoHealthyVendor records a vendor outage as a distinct failed attempt
// so the outage shows up in job history and failure counts, then schedules
// a follow-up attempt that keeps the retry count. The follow-up's run_at
// gives the health monitor a chance to flip a vendor back first.
func (m *Manager) failNoHealthyVendor(ctx context.Context, logger *slog.Logger, job *jobs.Job, capability stagegraph.Capability, selectErr error) {
	if err := m.store.Fail(ctx, job.ID, shortError(selectErr), "", string(services.FailureNoHealthyVendor)); err != nil {
		logger.Error("persist vendor outage", logging.Error(err))
		return
	}
	logger.Warn("no healthy vendor; attempt failed",
		logging.String("capability", string(capability)),
		logging.String("failure_kind", string(services.FailureNoHealthyVendor)),
		logging.String(logging.FieldEventType, "attempt_failed"))

	_, err := m.store.CreateJob(ctx, jobs.NewJobParams{
		MediaID:         job.MediaID,
		FamilyID:        job.FamilyID,
		FilePath:        job.FilePath,
		Stage:           job.Stage,
		VendorCandidate: job.VendorCandidate,
		RetryCount:      job.RetryCount,
		RunAt:           time.Now().UTC().Add(m.errorRetryInterval),
	})
	if err != nil && !errors.Is(err, jobs.ErrDuplicateInFlight) {
		logger.Error("schedule follow-up attempt", logging.Error(err))
		return
	}
	logger.Info("follow-up attempt scheduled",
		logging.String(logging.FieldEventType, "retry_scheduled"),
		logging.Int("retry_count", job.RetryCount))
}

// failAttempt records a terminal failure and applies the retry policy:
// a retryable failure inside the budget spawns a fresh attempt with the
// backoff baked into run_at, repeated same-vendor failures rotate the
// next attempt to an alternate vendor, and an exhausted budget notifies
// operators.
func (m *Manager) failAttempt(ctx context.Context, logger *slog.Logger, job *jobs.Job, vendor string, execErr error) {
	kind := services.Classify(execErr)
	if err := m.store.Fail(ctx, job.ID, shortError(execErr), "", string(kind)); err != nil {
		logger.Error("persist attempt failure", logging.Error(err))
		return
	}
	logger.Warn("attempt failed",
		logging.String(logging.FieldEventType, "attempt_failed"),
		logging.String("failure_kind", string(kind)),
		logging.Error(execErr))

	recent, err := m.store.RecentFailedVendors(ctx, job.MediaID, job.Stage, m.policy.RotateAfter)
	if err != nil {
		logger.Error("load vendor failure history", logging.Error(err))
		recent = nil
	}

	decision := m.policy.Decide(execErr, vendor, job.RetryCount, recent, time.Now().UTC())
	switch {
	case decision.Retry:
		candidate := ""
		if decision.ExcludeVendor != "" {
			candidate = m.alternateVendor(job.Stage, decision.ExcludeVendor)
		}
		_, createErr := m.store.CreateJob(ctx, jobs.NewJobParams{
			MediaID:         job.MediaID,
			FamilyID:        job.FamilyID,
			FilePath:        job.FilePath,
			Stage:           job.Stage,
			VendorCandidate: candidate,
			RetryCount:      decision.RetryCount,
			RunAt:           decision.RunAt,
		})
		if createErr != nil && !errors.Is(createErr, jobs.ErrDuplicateInFlight) {
			logger.Error("schedule retry attempt", logging.Error(createErr))
			return
		}
		logger.Info("retry scheduled",
			logging.String(logging.FieldEventType, "retry_scheduled"),
			logging.Int("retry_count", decision.RetryCount),
			logging.String("vendor_candidate", candidate))
	case decision.Exhausted:
		logger.Error("retry budget exhausted",
			logging.String(logging.FieldEventType, "retries_exhausted"),
			logging.Int("retry_count", job.RetryCount))
		if err := m.notifier.NotifyRetriesExhausted(ctx, job.MediaID, string(job.Stage), shortError(execErr)); err != nil {
			logger.Warn("send exhausted notification", logging.Error(err))
		}
	default:
		if err := m.notifier.NotifyError(ctx, execErr, "media "+job.MediaID+" "+string(job.Stage)); err != nil {
			logger.Warn("send error notification", logging.Error(err))
		}
	}
}

// alternateVendor picks the first registered vendor for the stage's
// capability that is not the excluded one. Health is re-checked at
// selection time, so a down alternate is fine here.
func (m *Manager) alternateVendor(stage jobs.Stage, excluded string) string {
	capability, ok := m.graph.CapabilityFor(stage)
	if !ok {
		return ""
	}
	for _, adapter := range m.registry.ForCapability(capability) {
		if adapter.Name() != excluded {
			return adapter.Name()
		}
	}
	return ""
}

// advance enqueues every stage the finished attempt unlocked and fires
// the completion notification once the whole graph is done.
func (m *Manager) advance(ctx context.Context, logger *slog.Logger, job *jobs.Job) error {
	completed, err := m.store.CompletedStages(ctx, job.MediaID)
	if err != nil {
		return err
	}

	done := true
	for _, stage := range m.graph.Stages() {
		if !completed[stage] {
			done = false
			break
		}
	}
	if done {
		logger.Info("media fully processed",
			logging.String(logging.FieldEventType, "media_complete"))
		if err := m.notifier.NotifyMediaCompleted(ctx, job.MediaID); err != nil {
			logger.Warn("send completion notification", logging.Error(err))
		}
		return nil
	}

	for _, stage := range m.graph.Eligible(completed) {
		latest, err := m.store.LatestAttempt(ctx, job.MediaID, stage)
		if err != nil {
			return err
		}
		if latest != nil {
			// Already attempted; retries are scheduled at failure time
			// and permanent failures wait for an operator.
			continue
		}
		_, err = m.store.CreateJob(ctx, jobs.NewJobParams{
			MediaID:  job.MediaID,
			FamilyID: job.FamilyID,
			FilePath: job.FilePath,
			Stage:    stage,
		})
		if err != nil {
			if errors.Is(err, jobs.ErrDuplicateInFlight) {
				continue
			}
			return err
		}
		logger.Info("stage unlocked",
			logging.String(logging.FieldEventType, "stage_enqueued"),
			logging.String("next_stage", string(stage)))
	}
	return nil
}

// collectText gathers extracted text from the completed predecessor
// attempts for the indexing request.
func (m *Manager) collectText(ctx context.Context, job *jobs.Job) (string, error) {
	var parts []string
	for _, predecessor := range m.graph.Requires(job.Stage) {
		latest, err := m.store.LatestAttempt(ctx, job.MediaID, predecessor)
		if err != nil {
			return "", err
		}
		if latest == nil || latest.Status != jobs.StatusCompleted || latest.RawOutput == "" {
			continue
		}
		var output struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(latest.RawOutput), &output); err != nil {
			continue
		}
		if text := strings.TrimSpace(output.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
