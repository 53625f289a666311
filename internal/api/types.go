package api

import (
	"time"

	"lifescribe/internal/jobs"
)

// Wire payloads shared by the daemon HTTP server and the CLI client.

// JobPayload is the JSON shape of one job attempt.
type JobPayload struct {
	ID              int64      `json:"id"`
	MediaID         string     `json:"media_id"`
	FamilyID        string     `json:"family_id,omitempty"`
	FilePath        string     `json:"file_path,omitempty"`
	Stage           string     `json:"stage"`
	Status          string     `json:"status"`
	VendorCandidate string     `json:"vendor_candidate,omitempty"`
	VendorUsed      string     `json:"vendor_used,omitempty"`
	RetryCount      int        `json:"retry_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ErrorDetails    string     `json:"error_details,omitempty"`
	FailureKind     string     `json:"failure_kind,omitempty"`
	CostUSD         float64    `json:"cost_usd,omitempty"`
	DurationMs      int64      `json:"duration_ms,omitempty"`
	RunAt           time.Time  `json:"run_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FromJob converts a store row to its wire shape.
func FromJob(job *jobs.Job) JobPayload {
	return JobPayload{
		ID:              job.ID,
		MediaID:         job.MediaID,
		FamilyID:        job.FamilyID,
		FilePath:        job.FilePath,
		Stage:           string(job.Stage),
		Status:          string(job.Status),
		VendorCandidate: job.VendorCandidate,
		VendorUsed:      job.VendorUsed,
		RetryCount:      job.RetryCount,
		ErrorMessage:    job.ErrorMessage,
		ErrorDetails:    job.ErrorDetails,
		FailureKind:     job.FailureKind,
		CostUSD:         job.CostUSD,
		DurationMs:      job.DurationMs,
		RunAt:           job.RunAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
	}
}

// FromJobs converts a slice of store rows.
func FromJobs(list []*jobs.Job) []JobPayload {
	out := make([]JobPayload, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// EnqueueRequest asks the daemon to start processing one media object.
type EnqueueRequest struct {
	MediaID  string `json:"media_id"`
	FamilyID string `json:"family_id,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// EnqueueResponse reports the attempts created for an enqueue signal.
// An already in-flight media object yields an empty Created list.
type EnqueueResponse struct {
	Created []JobPayload `json:"created"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []JobPayload `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobPayload `json:"job"`
}

// RetryRequest asks for a forced retry, optionally pinned to a vendor.
type RetryRequest struct {
	SwitchVendor string `json:"switch_vendor,omitempty"`
}

// CancelRequest carries the operator's cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// VendorStatusPayload is the JSON shape of one vendor's probed health.
type VendorStatusPayload struct {
	VendorType    string    `json:"vendor_type"`
	VendorName    string    `json:"vendor_name"`
	Health        string    `json:"health"`
	Detail        string    `json:"detail,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// VendorStatusResponse wraps the vendor health listing.
type VendorStatusResponse struct {
	Vendors []VendorStatusPayload `json:"vendors"`
}

// FromVendorStatus converts store rows to their wire shape.
func FromVendorStatus(list []jobs.VendorStatus) []VendorStatusPayload {
	out := make([]VendorStatusPayload, 0, len(list))
	for _, status := range list {
		out = append(out, VendorStatusPayload{
			VendorType:    status.VendorType,
			VendorName:    status.VendorName,
			Health:        string(status.Health),
			Detail:        status.Detail,
			LastCheckedAt: status.LastCheckedAt,
		})
	}
	return out
}

// OverviewResponse is the live overview statistics payload.
type OverviewResponse struct {
	QueueDepth   int     `json:"queue_depth"`
	Failures24h  int     `json:"failures_24h"`
	Cost24hUSD   float64 `json:"cost_24h_usd"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// StageRollupPayload is one per-(stage, date) statistics row.
type StageRollupPayload struct {
	Stage               string  `json:"stage"`
	Date                string  `json:"date"`
	SuccessCount        int     `json:"success_count"`
	FailureCount        int     `json:"failure_count"`
	TotalCostUSD        float64 `json:"total_cost_usd"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
	P95ProcessingTimeMs float64 `json:"p95_processing_time_ms"`
}

// StageStatsResponse wraps the rollup listing.
type StageStatsResponse struct {
	Rollups []StageRollupPayload `json:"rollups"`
}

// FromRollups converts store rows to their wire shape.
func FromRollups(list []jobs.StageMetricRollup) []StageRollupPayload {
	out := make([]StageRollupPayload, 0, len(list))
	for _, rollup := range list {
		out = append(out, StageRollupPayload{
			Stage:               string(rollup.Stage),
			Date:                rollup.Date,
			SuccessCount:        rollup.SuccessCount,
			FailureCount:        rollup.FailureCount,
			TotalCostUSD:        rollup.TotalCostUSD,
			AvgProcessingTimeMs: rollup.AvgProcessingTimeMs,
			P95ProcessingTimeMs: rollup.P95ProcessingTimeMs,
		})
	}
	return out
}

// DaemonStatusResponse reports daemon runtime information.
type DaemonStatusResponse struct {
	Running      bool           `json:"running"`
	QueueDBPath  string         `json:"queue_db_path"`
	LockFilePath string         `json:"lock_file_path"`
	JobCounts    map[string]int `json:"job_counts"`
}

// ErrorResponse carries a machine-readable error message.
type ErrorResponse struct {
	Error string `json:"error"`
}
