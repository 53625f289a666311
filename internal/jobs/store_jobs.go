package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewJobParams describes one attempt to insert.
type NewJobParams struct {
	MediaID         string
	FamilyID        string
	FilePath        string
	Stage           Stage
	VendorCandidate string
	RetryCount      int
	RunAt           time.Time
}

// CreateJob inserts a new pending attempt. The partial unique index on active
// (media_id, stage) pairs makes duplicate in-flight creation fail atomically;
// that case is reported as ErrDuplicateInFlight so callers can treat it as a
// no-op.
func (s *Store) CreateJob(ctx context.Context, p NewJobParams) (*Job, error) {
	if strings.TrimSpace(p.MediaID) == "" {
		return nil, errors.New("media id is required")
	}
	if _, ok := stageSet[p.Stage]; !ok {
		return nil, fmt.Errorf("unknown stage %q", p.Stage)
	}

	now := time.Now().UTC()
	runAt := p.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            media_id, family_id, file_path, stage, status, vendor_candidate, retry_count,
            run_at, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MediaID,
		p.FamilyID,
		nullableString(p.FilePath),
		p.Stage,
		StatusPending,
		nullableString(p.VendorCandidate),
		p.RetryCount,
		formatTime(runAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, ErrDuplicateInFlight
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Claim atomically transitions pending -> in_progress. Exactly one caller
// succeeds for a given attempt; everyone else sees false. Callers must never
// mutate a job they did not claim.
func (s *Store) Claim(ctx context.Context, jobID int64) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusInProgress,
		formatTime(now),
		formatTime(now),
		jobID,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// SetVendor records the vendor selected for a claimed attempt.
func (s *Store) SetVendor(ctx context.Context, jobID int64, vendor string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET vendor_used = ?, updated_at = ? WHERE id = ? AND status = ?`,
		nullableString(vendor),
		formatTime(time.Now().UTC()),
		jobID,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("set vendor: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Complete transitions in_progress -> completed and records the vendor output.
func (s *Store) Complete(ctx context.Context, jobID int64, rawOutput string, costUSD float64, durationMs int64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, raw_output = ?, cost_usd = ?, duration_ms = ?,
             error_message = NULL, error_details = NULL, failure_kind = NULL,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCompleted,
		nullableString(rawOutput),
		costUSD,
		durationMs,
		formatTime(now),
		formatTime(now),
		jobID,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Fail transitions in_progress -> failed with the classified error.
func (s *Store) Fail(ctx context.Context, jobID int64, message, details, kind string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, error_details = ?, failure_kind = ?,
             completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(message),
		nullableString(details),
		nullableString(kind),
		formatTime(now),
		formatTime(now),
		jobID,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// Release returns a claimed attempt to pending without recording an
// outcome. Used when no vendor is available or the daemon is shutting
// down mid-claim; run_at defers the next pickup.
func (s *Store) Release(ctx context.Context, jobID int64, runAt time.Time) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, vendor_used = NULL, started_at = NULL, run_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		formatTime(runAt),
		formatTime(now),
		jobID,
		StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotClaimed
	}
	return nil
}

// ReclaimAbandoned resets every in_progress attempt back to pending and
// returns how many rows were touched. Run once at worker startup, before
// any pool claims work: the daemon's instance lock guarantees no other
// process holds a claim, so a row still marked in_progress was orphaned
// by a crash.
func (s *Store) ReclaimAbandoned(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, vendor_used = NULL, started_at = NULL, run_at = ?, updated_at = ?
         WHERE status = ?`,
		StatusPending,
		formatTime(now),
		formatTime(now),
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim abandoned jobs: %w", err)
	}
	reclaimed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return reclaimed, nil
}

// CancelPending fails a pending attempt without claiming it (e.g. media
// deleted). In-progress attempts are left to run to completion.
func (s *Store) CancelPending(ctx context.Context, jobID int64, reason string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_message = ?, failure_kind = ?, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		nullableString(reason),
		CancelledKind,
		formatTime(now),
		formatTime(now),
		jobID,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs matching the provided filters, oldest first.
func (s *Store) List(ctx context.Context, filters ListFilters) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if filters.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filters.Status)
	}
	if filters.Stage != "" {
		clauses = append(clauses, "stage = ?")
		args = append(args, filters.Stage)
	}
	if filters.MediaID != "" {
		clauses = append(clauses, "media_id = ?")
		args = append(args, filters.MediaID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// NextPending returns the oldest claimable pending job for a stage, honoring
// backoff delays via run_at.
func (s *Store) NextPending(ctx context.Context, stage Stage, now time.Time) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE stage = ? AND status = ? AND run_at <= ?
         ORDER BY created_at, id LIMIT 1`,
		stage,
		StatusPending,
		formatTime(now),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return job, nil
}

// ActiveJob returns the pending or in-progress attempt for a (media, stage)
// pair, if one exists.
func (s *Store) ActiveJob(ctx context.Context, mediaID string, stage Stage) (*Job, error) {
	placeholders := makePlaceholders(len(ActiveStatuses))
	args := []any{mediaID, stage}
	for _, status := range ActiveStatuses {
		args = append(args, status)
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE media_id = ? AND stage = ? AND status IN (`+placeholders+`)
         ORDER BY id DESC LIMIT 1`,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job: %w", err)
	}
	return job, nil
}

// CompletedStages returns the set of stages with a completed attempt for a
// media object. The stage graph consults it when deciding eligibility.
func (s *Store) CompletedStages(ctx context.Context, mediaID string) (map[Stage]bool, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT DISTINCT stage FROM jobs WHERE media_id = ? AND status = ?`,
		mediaID,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("completed stages: %w", err)
	}
	defer rows.Close()

	completed := make(map[Stage]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		completed[Stage(stage)] = true
	}
	return completed, rows.Err()
}

// LatestAttempt returns the attempt with the highest retry count for a
// (media, stage) lineage, regardless of status.
func (s *Store) LatestAttempt(ctx context.Context, mediaID string, stage Stage) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE media_id = ? AND stage = ?
         ORDER BY retry_count DESC, id DESC LIMIT 1`,
		mediaID,
		stage,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest attempt: %w", err)
	}
	return job, nil
}

// RecentFailedVendors returns vendor_used for the most recent failed attempts
// of a lineage, newest first. The retry policy uses it for rotation.
func (s *Store) RecentFailedVendors(ctx context.Context, mediaID string, stage Stage, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 2
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(vendor_used, '') FROM jobs
         WHERE media_id = ? AND stage = ? AND status = ?
         ORDER BY retry_count DESC, id DESC LIMIT ?`,
		mediaID,
		stage,
		StatusFailed,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent failed vendors: %w", err)
	}
	defer rows.Close()

	var vendors []string
	for rows.Next() {
		var vendor string
		if err := rows.Scan(&vendor); err != nil {
			return nil, err
		}
		vendors = append(vendors, vendor)
	}
	return vendors, rows.Err()
}

// QueueDepth counts jobs in non-terminal states across all stages.
func (s *Store) QueueDepth(ctx context.Context) (int, error) {
	placeholders := makePlaceholders(len(ActiveStatuses))
	args := make([]any, len(ActiveStatuses))
	for i, status := range ActiveStatuses {
		args[i] = status
	}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE status IN (`+placeholders+`)`, args...)
	var depth int
	if err := row.Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
