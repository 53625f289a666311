package jobs

import (
	"strings"
	"time"
)

// Stage names a pipeline processing step.
type Stage string

const (
	StageUpload    Stage = "upload"
	StageVirusScan Stage = "virus_scan"
	StageOCR       Stage = "ocr"
	StageASR       Stage = "asr"
	StageIndex     Stage = "index"
)

var allStages = []Stage{
	StageUpload,
	StageVirusScan,
	StageOCR,
	StageASR,
	StageIndex,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Status represents the lifecycle of one job attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ActiveStatuses are the non-terminal statuses counted toward queue depth.
var ActiveStatuses = []Status{StatusPending, StatusInProgress}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the attempt.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CancelledKind is the failure kind recorded when a pending job is cancelled.
const CancelledKind = "cancelled"

// Job represents one attempt of one stage for one media object.
type Job struct {
	ID              int64
	MediaID         string
	FamilyID        string
	FilePath        string
	Stage           Stage
	Status          Status
	VendorCandidate string
	VendorUsed      string
	RetryCount      int
	ErrorMessage    string
	ErrorDetails    string
	FailureKind     string
	RawOutput       string
	CostUSD         float64
	DurationMs      int64
	RunAt           time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsActive reports whether the attempt still holds the (media, stage) slot.
func (j Job) IsActive() bool {
	return j.Status == StatusPending || j.Status == StatusInProgress
}

// VendorHealth describes the last probed state of one vendor.
type VendorHealth string

const (
	HealthHealthy  VendorHealth = "healthy"
	HealthDegraded VendorHealth = "degraded"
	HealthDown     VendorHealth = "down"
)

// VendorStatus is one row per (vendor_type, vendor_name), updated only by the
// health monitor.
type VendorStatus struct {
	VendorType    string
	VendorName    string
	Health        VendorHealth
	Detail        string
	LastCheckedAt time.Time
}

// StageMetricRollup is one derived row per (stage, date). Recomputable, never
// hand-edited.
type StageMetricRollup struct {
	Stage               Stage
	Date                string
	SuccessCount        int
	FailureCount        int
	TotalCostUSD        float64
	AvgProcessingTimeMs float64
	P95ProcessingTimeMs float64
	ComputedAt          time.Time
}

// OverviewStats aggregates live pipeline state for the admin console.
type OverviewStats struct {
	QueueDepth   int
	Failures24h  int
	Cost24hUSD   float64
	P95LatencyMs float64
}

// ListFilters narrows List queries. Zero values match everything.
type ListFilters struct {
	Status  Status
	Stage   Stage
	MediaID string
	Limit   int
}
