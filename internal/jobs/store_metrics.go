package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FailuresSince counts failed jobs created after the cutoff.
func (s *Store) FailuresSince(ctx context.Context, cutoff time.Time) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE status = ? AND created_at >= ?`,
		StatusFailed,
		formatTime(cutoff),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failures since: %w", err)
	}
	return count, nil
}

// CostSince sums per-job cost for jobs created after the cutoff.
func (s *Store) CostSince(ctx context.Context, cutoff time.Time) (float64, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM jobs WHERE created_at >= ?`,
		formatTime(cutoff),
	)
	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("cost since: %w", err)
	}
	return total, nil
}

// CompletedDurationsSince returns processing durations per stage for
// attempts completed after the cutoff. Feeds the live p95 figure.
func (s *Store) CompletedDurationsSince(ctx context.Context, cutoff time.Time) (map[Stage][]int64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, duration_ms FROM jobs
         WHERE status = ? AND completed_at >= ?`,
		StatusCompleted,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("completed durations: %w", err)
	}
	defer rows.Close()

	out := make(map[Stage][]int64)
	for rows.Next() {
		var (
			stageStr   string
			durationMs int64
		)
		if err := rows.Scan(&stageStr, &durationMs); err != nil {
			return nil, err
		}
		out[Stage(stageStr)] = append(out[Stage(stageStr)], durationMs)
	}
	return out, rows.Err()
}

// StageOutcomes holds the raw material for one (stage, date) rollup.
type StageOutcomes struct {
	SuccessCount int
	FailureCount int
	TotalCostUSD float64
	DurationsMs  []int64
}

// OutcomesForStageDate gathers terminal attempts for a stage on a UTC date.
// Durations cover completed attempts only; failures contribute to counts.
// Attempts are bucketed by the date prefix of completed_at rather than by
// string range: fractional-second timestamps do not order lexically against
// a whole-second day boundary.
func (s *Store) OutcomesForStageDate(ctx context.Context, stage Stage, date string) (StageOutcomes, error) {
	var out StageOutcomes

	if _, err := time.Parse("2006-01-02", date); err != nil {
		return out, fmt.Errorf("parse rollup date %q: %w", date, err)
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT status, cost_usd, duration_ms FROM jobs
         WHERE stage = ? AND status IN (?, ?) AND substr(completed_at, 1, 10) = ?`,
		stage,
		StatusCompleted,
		StatusFailed,
		date,
	)
	if err != nil {
		return out, fmt.Errorf("stage outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status     Status
			costUSD    float64
			durationMs int64
		)
		if err := rows.Scan(&status, &costUSD, &durationMs); err != nil {
			return out, err
		}
		out.TotalCostUSD += costUSD
		switch status {
		case StatusCompleted:
			out.SuccessCount++
			out.DurationsMs = append(out.DurationsMs, durationMs)
		case StatusFailed:
			out.FailureCount++
		}
	}
	return out, rows.Err()
}

// UpsertRollup writes one (stage, date) rollup row. Re-running for the same
// inputs replaces the row with identical values, keeping recomputation
// idempotent.
func (s *Store) UpsertRollup(ctx context.Context, rollup StageMetricRollup) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_metric_rollups (
            stage, date, success_count, failure_count, total_cost_usd,
            avg_processing_time_ms, p95_processing_time_ms, computed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(stage, date) DO UPDATE SET
            success_count = excluded.success_count,
            failure_count = excluded.failure_count,
            total_cost_usd = excluded.total_cost_usd,
            avg_processing_time_ms = excluded.avg_processing_time_ms,
            p95_processing_time_ms = excluded.p95_processing_time_ms,
            computed_at = excluded.computed_at`,
		rollup.Stage,
		rollup.Date,
		rollup.SuccessCount,
		rollup.FailureCount,
		rollup.TotalCostUSD,
		rollup.AvgProcessingTimeMs,
		rollup.P95ProcessingTimeMs,
		formatTime(rollup.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert rollup: %w", err)
	}
	return nil
}

// GetRollup fetches one (stage, date) rollup row.
func (s *Store) GetRollup(ctx context.Context, stage Stage, date string) (*StageMetricRollup, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT stage, date, success_count, failure_count, total_cost_usd,
                avg_processing_time_ms, p95_processing_time_ms, computed_at
         FROM stage_metric_rollups WHERE stage = ? AND date = ?`,
		stage,
		date,
	)
	rollup, err := scanRollup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rollup: %w", err)
	}
	return rollup, nil
}

// ListRollups returns rollups for dates at or after since, newest date first.
func (s *Store) ListRollups(ctx context.Context, since string) ([]StageMetricRollup, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, date, success_count, failure_count, total_cost_usd,
                avg_processing_time_ms, p95_processing_time_ms, computed_at
         FROM stage_metric_rollups WHERE date >= ? ORDER BY date DESC, stage`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()

	var rollups []StageMetricRollup
	for rows.Next() {
		rollup, err := scanRollup(rows)
		if err != nil {
			return nil, err
		}
		rollups = append(rollups, *rollup)
	}
	return rollups, rows.Err()
}

func scanRollup(scanner interface{ Scan(dest ...any) error }) (*StageMetricRollup, error) {
	var (
		rollup      StageMetricRollup
		stageStr    string
		computedRaw string
	)
	if err := scanner.Scan(
		&stageStr,
		&rollup.Date,
		&rollup.SuccessCount,
		&rollup.FailureCount,
		&rollup.TotalCostUSD,
		&rollup.AvgProcessingTimeMs,
		&rollup.P95ProcessingTimeMs,
		&computedRaw,
	); err != nil {
		return nil, err
	}
	rollup.Stage = Stage(stageStr)
	if computed, err := parseTimeString(computedRaw); err == nil {
		rollup.ComputedAt = computed
	}
	return &rollup, nil
}
