// Package retrypolicy decides what happens after a failed attempt:
// whether a new attempt is scheduled, how long it waits, and whether the
// next attempt should move to a different vendor.
package retrypolicy

import (
	"time"

	"lifescribe/internal/config"
	"lifescribe/internal/services"
)

// Policy holds the retry budget, the backoff curve, and the vendor
// rotation threshold.
type Policy struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// RotateAfter is how many consecutive failures on the same vendor
	// trigger a switch to the next vendor in the chain.
	RotateAfter int
}

// FromConfig builds a policy from the retry configuration section.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxRetries:  cfg.Retry.MaxRetries,
		BackoffBase: time.Duration(cfg.Retry.BackoffBaseSeconds) * time.Second,
		BackoffCap:  time.Duration(cfg.Retry.BackoffCapSeconds) * time.Second,
		RotateAfter: 2,
	}
}

// Backoff returns the delay before the given retry number. Retry 1 waits
// the base delay and each further retry doubles it, up to the cap.
func (p Policy) Backoff(retryNumber int) time.Duration {
	if retryNumber < 1 {
		retryNumber = 1
	}
	delay := p.BackoffBase
	for i := 1; i < retryNumber; i++ {
		delay *= 2
		if delay >= p.BackoffCap {
			return p.BackoffCap
		}
	}
	if delay > p.BackoffCap {
		return p.BackoffCap
	}
	return delay
}

// Decision is the outcome for one failed attempt.
type Decision struct {
	// Retry reports whether a new attempt should be created.
	Retry bool
	// Exhausted reports that the failure was retryable but the budget is
	// spent. Exhausted attempts are surfaced to operators.
	Exhausted bool
	// RetryCount is the attempt counter for the new attempt.
	RetryCount int
	// RunAt is when the new attempt becomes claimable.
	RunAt time.Time
	// ExcludeVendor names a vendor the next selection must skip, set
	// when the same vendor keeps failing.
	ExcludeVendor string
}

// Decide evaluates a failed attempt. retryCount is the failed attempt's
// counter and recentVendors lists the vendors used by the most recent
// failed attempts for this media and stage, newest first.
func (p Policy) Decide(err error, failedVendor string, retryCount int, recentVendors []string, now time.Time) Decision {
	if !services.Retryable(err) {
		return Decision{}
	}
	if retryCount >= p.MaxRetries {
		return Decision{Exhausted: true}
	}

	next := retryCount + 1
	decision := Decision{
		Retry:      true,
		RetryCount: next,
		RunAt:      now.Add(p.Backoff(next)),
	}

	if failedVendor != "" && p.RotateAfter > 0 && consecutive(recentVendors, failedVendor) >= p.RotateAfter {
		decision.ExcludeVendor = failedVendor
	}
	return decision
}

func consecutive(recentVendors []string, vendor string) int {
	count := 0
	for _, v := range recentVendors {
		if v != vendor {
			break
		}
		count++
	}
	return count
}
