package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrRateLimited     = errors.New("rate limited")
	ErrVendorFailure   = errors.New("vendor failure")
	ErrNoHealthyVendor = errors.New("no healthy vendor")
	ErrTransient       = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind classifies a stage error for persistence and operator display.
type FailureKind string

const (
	FailureValidation      FailureKind = "validation"
	FailureConfiguration   FailureKind = "configuration"
	FailureNotFound        FailureKind = "not_found"
	FailureTimeout         FailureKind = "timeout"
	FailureRateLimited     FailureKind = "rate_limited"
	FailureVendor          FailureKind = "vendor_failure"
	FailureNoHealthyVendor FailureKind = "no_healthy_vendor"
	FailureTransient       FailureKind = "transient"
)

// Classify maps a stage error to its failure kind.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrValidation):
		return FailureValidation
	case errors.Is(err, ErrConfiguration):
		return FailureConfiguration
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	case errors.Is(err, ErrTimeout):
		return FailureTimeout
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimited
	case errors.Is(err, ErrNoHealthyVendor):
		return FailureNoHealthyVendor
	case errors.Is(err, ErrVendorFailure):
		return FailureVendor
	default:
		return FailureTransient
	}
}

// Retryable reports whether a failure may be retried with backoff. Validation,
// configuration, and not-found failures are terminal; a missing healthy vendor
// is surfaced to operators rather than retried blindly.
func Retryable(err error) bool {
	switch Classify(err) {
	case FailureValidation, FailureConfiguration, FailureNotFound, FailureNoHealthyVendor:
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
