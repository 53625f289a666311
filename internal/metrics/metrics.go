// Package metrics derives reporting data from job history: live overview
// figures for the status endpoint and per-(stage, date) rollups
// recomputed on an interval. Rollups are pure derivations; recomputing
// any window yields identical rows.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/jobs"
	"lifescribe/internal/logging"
	"lifescribe/internal/stagegraph"
)

// Aggregator recomputes rollups on an interval and answers live
// overview queries.
type Aggregator struct {
	store    *jobs.Store
	graph    *stagegraph.Graph
	logger   *slog.Logger
	interval time.Duration
	window   int

	now func() time.Time
}

// NewAggregator constructs the metrics aggregator.
func NewAggregator(cfg *config.Config, store *jobs.Store, graph *stagegraph.Graph, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:    store,
		graph:    graph,
		logger:   logging.NewComponentLogger(logger, "metrics"),
		interval: time.Duration(cfg.Metrics.AggregationInterval) * time.Second,
		window:   cfg.Metrics.RollupWindowDays,
		now:      time.Now,
	}
}

// Run recomputes immediately, then on every tick until the context ends.
func (a *Aggregator) Run(ctx context.Context) {
	if err := a.RecomputeWindow(ctx); err != nil {
		a.logger.Error("rollup recompute failed", logging.Error(err))
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RecomputeWindow(ctx); err != nil {
				a.logger.Error("rollup recompute failed", logging.Error(err))
			}
		}
	}
}

// RecomputeWindow rebuilds rollups for every stage over the configured
// trailing window of UTC dates, today included.
func (a *Aggregator) RecomputeWindow(ctx context.Context) error {
	today := a.now().UTC().Truncate(24 * time.Hour)
	for offset := 0; offset < a.window; offset++ {
		date := today.AddDate(0, 0, -offset).Format("2006-01-02")
		for _, stage := range a.graph.Stages() {
			if err := a.recomputeOne(ctx, stage, date); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Aggregator) recomputeOne(ctx context.Context, stage jobs.Stage, date string) error {
	outcomes, err := a.store.OutcomesForStageDate(ctx, stage, date)
	if err != nil {
		return err
	}
	if outcomes.SuccessCount == 0 && outcomes.FailureCount == 0 {
		// Nothing happened; leave no empty rows behind.
		return nil
	}

	rollup := jobs.StageMetricRollup{
		Stage:               stage,
		Date:                date,
		SuccessCount:        outcomes.SuccessCount,
		FailureCount:        outcomes.FailureCount,
		TotalCostUSD:        outcomes.TotalCostUSD,
		AvgProcessingTimeMs: average(outcomes.DurationsMs),
		P95ProcessingTimeMs: percentile95(outcomes.DurationsMs),
		ComputedAt:          a.now().UTC(),
	}
	return a.store.UpsertRollup(ctx, rollup)
}

// Overview answers the live status query: queue depth, failures and
// cost over the trailing 24 hours, and the worst per-stage p95 latency.
func (a *Aggregator) Overview(ctx context.Context) (jobs.OverviewStats, error) {
	var stats jobs.OverviewStats

	depth, err := a.store.QueueDepth(ctx)
	if err != nil {
		return stats, err
	}
	stats.QueueDepth = depth

	cutoff := a.now().UTC().Add(-24 * time.Hour)
	failures, err := a.store.FailuresSince(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.Failures24h = failures

	cost, err := a.store.CostSince(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.Cost24hUSD = cost

	durations, err := a.store.CompletedDurationsSince(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	for _, stageDurations := range durations {
		if p95 := percentile95(stageDurations); p95 > stats.P95LatencyMs {
			stats.P95LatencyMs = p95
		}
	}
	return stats, nil
}

func average(durations []int64) float64 {
	if len(durations) == 0 {
		return 0
	}
	var total int64
	for _, d := range durations {
		total += d
	}
	return float64(total) / float64(len(durations))
}

// percentile95 uses the nearest-rank method on a sorted copy.
func percentile95(durations []int64) float64 {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]int64, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (95*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return float64(sorted[rank-1])
}
