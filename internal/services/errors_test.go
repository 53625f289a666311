package services_test

import (
	"errors"
	"testing"

	"lifescribe/internal/services"
)

func TestWrapPreservesMarker(t *testing.T) {
	base := errors.New("socket closed")
	err := services.Wrap(services.ErrTimeout, "ocr", "invoke vendor", "request timed out", base)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected wrapped error to match ErrTimeout: %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to retain cause: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "asr", "invoke vendor", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to ErrTransient: %v", err)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		expect services.FailureKind
	}{
		{"validation", services.Wrap(services.ErrValidation, "upload", "validate", "unsupported type", nil), services.FailureValidation},
		{"timeout", services.Wrap(services.ErrTimeout, "ocr", "invoke", "", nil), services.FailureTimeout},
		{"rate limited", services.Wrap(services.ErrRateLimited, "asr", "invoke", "", nil), services.FailureRateLimited},
		{"vendor", services.Wrap(services.ErrVendorFailure, "index", "invoke", "502", nil), services.FailureVendor},
		{"no vendor", services.Wrap(services.ErrNoHealthyVendor, "virus_scan", "select", "", nil), services.FailureNoHealthyVendor},
		{"untagged", errors.New("boom"), services.FailureTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.expect {
				t.Fatalf("expected %s, got %s", tc.expect, got)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrValidation, "upload", "validate", "", nil)) {
		t.Fatal("validation errors must not be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrNoHealthyVendor, "ocr", "select", "", nil)) {
		t.Fatal("no-healthy-vendor errors must not be retryable")
	}
	if !services.Retryable(services.Wrap(services.ErrTimeout, "ocr", "invoke", "", nil)) {
		t.Fatal("timeouts must be retryable")
	}
	if !services.Retryable(errors.New("untagged")) {
		t.Fatal("untagged errors default to retryable transient")
	}
}
