// Package vendors defines the adapter contract for external processing
// services and the registry that picks a vendor for each stage execution.
// Every capability has an ordered fallback chain; selection prefers the
// attempt's recorded candidate and skips vendors the health monitor has
// marked down.
package vendors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"lifescribe/internal/services"
	"lifescribe/internal/stagegraph"
)

// Request carries everything an adapter needs to process one attempt.
type Request struct {
	MediaID  string
	FamilyID string
	FilePath string
	// Text holds extracted text gathered from earlier stages. Only the
	// indexing adapters consume it.
	Text string
}

// Result is the successful outcome of a vendor call.
type Result struct {
	// Output is the raw vendor response, always a JSON document.
	Output string
	// CostUSD is the estimated cost of this single call.
	CostUSD float64
}

// Adapter is one vendor integration for a single capability.
type Adapter interface {
	// Name is the stable vendor identifier recorded on job rows.
	Name() string
	Capability() stagegraph.Capability
	// Execute performs the vendor call. Errors must be wrapped with the
	// services markers so failures classify correctly.
	Execute(ctx context.Context, req Request) (Result, error)
	// Probe checks reachability without doing real work.
	Probe(ctx context.Context) error
}

// StatusError converts a non-success HTTP response into a classified
// service error shared by the HTTP-backed adapters.
func StatusError(vendor, operation string, statusCode int, body string) error {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		body = body[:200]
	}
	message := fmt.Sprintf("http %d: %s", statusCode, body)

	var marker error
	switch {
	case statusCode == http.StatusTooManyRequests:
		marker = services.ErrRateLimited
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		marker = services.ErrTimeout
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		marker = services.ErrConfiguration
	case statusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	case statusCode >= http.StatusInternalServerError:
		marker = services.ErrVendorFailure
	default:
		marker = services.ErrValidation
	}
	return services.Wrap(marker, vendor, operation, message, nil)
}

// WrapTransport classifies a transport-level error from an HTTP round
// trip. Context deadline errors become timeouts, everything else is a
// vendor failure.
func WrapTransport(vendor, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, vendor, operation, "request timed out", err)
	}
	return services.Wrap(services.ErrVendorFailure, vendor, operation, "request failed", err)
}
