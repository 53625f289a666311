package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"lifescribe/internal/services"
)

func TestPrettyHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Info("job claimed",
		String(FieldComponent, "workers"),
		Int64(FieldJobID, 42),
		String(FieldStage, "ocr"),
	)

	line := buf.String()
	if !strings.Contains(line, "INFO workers: job claimed") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "job_id=42") || !strings.Contains(line, "stage=ocr") {
		t.Fatalf("expected attributes in line: %q", line)
	}
}

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.Warn("vendor degraded", String("detail", "slow probe response"))

	if !strings.Contains(buf.String(), `detail="slow probe response"`) {
		t.Fatalf("expected quoted detail, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	ctx := services.WithJobID(context.Background(), 7)
	ctx = services.WithMediaID(ctx, "media-1")
	ctx = services.WithStage(ctx, "virus_scan")
	ctx = services.WithVendor(ctx, "clamav")

	WithContext(ctx, logger).Info("stage started")

	line := buf.String()
	for _, want := range []string{"job_id=7", "media_id=media-1", "stage=virus_scan", "vendor=clamav"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in line %q", want, line)
		}
	}
}

func TestPrettyHandlerFlattensGroups(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	logger := slog.New(newPrettyHandler(&buf, lvl, false))

	logger.WithGroup("probe").Info("vendor checked",
		slog.String("vendor", "clamav"),
		slog.Group("timing", slog.Int64("latency_ms", 12)),
	)

	line := buf.String()
	if !strings.Contains(line, "probe.vendor=clamav") || !strings.Contains(line, "probe.timing.latency_ms=12") {
		t.Fatalf("expected dotted group keys, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
