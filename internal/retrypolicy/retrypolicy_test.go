package retrypolicy_test

import (
	"testing"
	"time"

	"lifescribe/internal/retrypolicy"
	"lifescribe/internal/services"
)

func testPolicy() retrypolicy.Policy {
	return retrypolicy.Policy{
		MaxRetries:  3,
		BackoffBase: 5 * time.Second,
		BackoffCap:  60 * time.Second,
		RotateAfter: 2,
	}
}

func TestBackoffCurve(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		retryNumber int
		want        time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 60 * time.Second},
		{10, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := policy.Backoff(tt.retryNumber); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retryNumber, got, tt.want)
		}
	}
}

func TestDecideRetriesTransientFailures(t *testing.T) {
	policy := testPolicy()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	err := services.Wrap(services.ErrTimeout, "clamav", "scan", "request timed out", nil)
	decision := policy.Decide(err, "clamav", 0, []string{"clamav"}, now)

	if !decision.Retry || decision.Exhausted {
		t.Fatalf("expected retry, got %+v", decision)
	}
	if decision.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", decision.RetryCount)
	}
	if want := now.Add(5 * time.Second); !decision.RunAt.Equal(want) {
		t.Fatalf("expected run at %v, got %v", want, decision.RunAt)
	}
	if decision.ExcludeVendor != "" {
		t.Fatalf("one failure should not rotate vendors, got %q", decision.ExcludeVendor)
	}
}

func TestDecideRotatesAfterRepeatedVendorFailures(t *testing.T) {
	policy := testPolicy()
	now := time.Now().UTC()

	err := services.Wrap(services.ErrVendorFailure, "clamav", "scan", "http 502", nil)
	decision := policy.Decide(err, "clamav", 1, []string{"clamav", "clamav"}, now)

	if !decision.Retry {
		t.Fatalf("expected retry, got %+v", decision)
	}
	if decision.ExcludeVendor != "clamav" {
		t.Fatalf("expected vendor rotation, got %q", decision.ExcludeVendor)
	}

	// A different vendor in the recent history resets the streak.
	decision = policy.Decide(err, "clamav", 1, []string{"clamav", "virustotal"}, now)
	if decision.ExcludeVendor != "" {
		t.Fatalf("mixed vendor history should not rotate, got %q", decision.ExcludeVendor)
	}
}

func TestDecideStopsAtBudget(t *testing.T) {
	policy := testPolicy()
	err := services.Wrap(services.ErrTransient, "tesseract", "ocr", "boom", nil)

	decision := policy.Decide(err, "tesseract", 3, []string{"tesseract"}, time.Now().UTC())
	if decision.Retry {
		t.Fatal("expected no retry past the budget")
	}
	if !decision.Exhausted {
		t.Fatal("expected exhausted flag at the budget")
	}
}

func TestDecidePermanentFailures(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		name string
		err  error
	}{
		{"validation", services.Wrap(services.ErrValidation, "clamav", "scan", "infected", nil)},
		{"configuration", services.Wrap(services.ErrConfiguration, "deepgram", "asr", "api key required", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Decide(tt.err, "v", 0, nil, time.Now().UTC())
			if decision.Retry || decision.Exhausted {
				t.Fatalf("permanent failure should not retry or exhaust: %+v", decision)
			}
		})
	}
}
