package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lifescribe/internal/config"
)

// Store manages pipeline persistence backed by SQLite. It is the only writer
// of job rows; all coordination between workers happens through the
// claim/complete/fail operations it exposes.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the pipeline database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "pipeline.db")
	// The pragmas below must reach every pooled connection, not just the one
	// db.Exec happens to use, so they are also set through the DSN.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location for diagnostics.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("job store unavailable")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

const jobColumns = "id, media_id, family_id, file_path, stage, status, vendor_candidate, vendor_used, retry_count, error_message, error_details, failure_kind, raw_output, cost_usd, duration_ms, run_at, started_at, completed_at, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		mediaID         string
		familyID        string
		filePath        sql.NullString
		stageStr        string
		statusStr       string
		vendorCandidate sql.NullString
		vendorUsed      sql.NullString
		retryCount      int
		errorMessage    sql.NullString
		errorDetails    sql.NullString
		failureKind     sql.NullString
		rawOutput       sql.NullString
		costUSD         sql.NullFloat64
		durationMs      sql.NullInt64
		runAtRaw        sql.NullString
		startedRaw      sql.NullString
		completedRaw    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&mediaID,
		&familyID,
		&filePath,
		&stageStr,
		&statusStr,
		&vendorCandidate,
		&vendorUsed,
		&retryCount,
		&errorMessage,
		&errorDetails,
		&failureKind,
		&rawOutput,
		&costUSD,
		&durationMs,
		&runAtRaw,
		&startedRaw,
		&completedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		MediaID:         mediaID,
		FamilyID:        familyID,
		FilePath:        filePath.String,
		Stage:           Stage(stageStr),
		Status:          Status(statusStr),
		VendorCandidate: vendorCandidate.String,
		VendorUsed:      vendorUsed.String,
		RetryCount:      retryCount,
		ErrorMessage:    errorMessage.String,
		ErrorDetails:    errorDetails.String,
		FailureKind:     failureKind.String,
		RawOutput:       rawOutput.String,
		CostUSD:         costUSD.Float64,
		DurationMs:      durationMs.Int64,
	}

	if runAt, err := parseTimeString(runAtRaw.String); err == nil {
		job.RunAt = runAt
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			job.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
