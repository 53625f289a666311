package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"lifescribe/internal/api"
)

func buildJobRows(jobs []api.JobPayload) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		vendor := job.VendorUsed
		if vendor == "" {
			vendor = job.VendorCandidate
		}
		failure := job.FailureKind
		if failure == "" && job.ErrorMessage != "" {
			failure = job.ErrorMessage
		}
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			job.MediaID,
			job.Stage,
			job.Status,
			strconv.Itoa(job.RetryCount),
			vendor,
			formatAge(job.CreatedAt),
			failure,
		})
	}
	return rows
}

var jobColumnAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft,
}

var jobColumnHeaders = []string{"ID", "Media", "Stage", "Status", "Retries", "Vendor", "Age", "Failure"}

func buildVendorRows(vendors []api.VendorStatusPayload, colorize bool) [][]string {
	rows := make([][]string, 0, len(vendors))
	for _, vendor := range vendors {
		health := vendor.Health
		if colorize {
			health = colorizeHealth(health)
		}
		checked := ""
		if !vendor.LastCheckedAt.IsZero() {
			checked = formatAge(vendor.LastCheckedAt) + " ago"
		}
		rows = append(rows, []string{
			vendor.VendorType,
			vendor.VendorName,
			health,
			checked,
			vendor.Detail,
		})
	}
	return rows
}

func colorizeHealth(health string) string {
	switch health {
	case "healthy":
		return text.FgGreen.Sprint(health)
	case "degraded":
		return text.FgYellow.Sprint(health)
	case "down":
		return text.FgRed.Sprint(health)
	default:
		return health
	}
}

func buildRollupRows(rollups []api.StageRollupPayload) [][]string {
	rows := make([][]string, 0, len(rollups))
	for _, rollup := range rollups {
		rows = append(rows, []string{
			rollup.Date,
			rollup.Stage,
			strconv.Itoa(rollup.SuccessCount),
			strconv.Itoa(rollup.FailureCount),
			formatCost(rollup.TotalCostUSD),
			formatMillis(rollup.AvgProcessingTimeMs),
			formatMillis(rollup.P95ProcessingTimeMs),
		})
	}
	return rows
}

func formatAge(at time.Time) string {
	if at.IsZero() {
		return ""
	}
	age := time.Since(at)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func formatCost(usd float64) string {
	if usd == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.4f", usd)
}

func formatMillis(ms float64) string {
	if ms == 0 {
		return "-"
	}
	if ms >= 1000 {
		return fmt.Sprintf("%.1fs", ms/1000)
	}
	return fmt.Sprintf("%.0fms", ms)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
