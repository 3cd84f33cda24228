// Package providercommon holds the HTTP plumbing shared by every provider
// conformance: retry with exponential backoff, status classification, token
// refresh persistence, and a cheap reachability probe. Individual provider
// packages compose these helpers rather than reimplementing them.
package providercommon

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Backoff parameters: base 2s, factor 2x, max 60s, +/-25% jitter, 3 retries.
const (
	MaxRetries     = 3
	BaseBackoff    = 2 * time.Second
	MaxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25

	// statusBandwidthExceeded is SharePoint/OneDrive's 509, treated like 429.
	statusBandwidthExceeded = 509

	// PaginationPaceDelay is paused between successive pages of a folder
	// listing or delta/changes feed, independent of retry backoff, so a
	// large folder doesn't hammer the provider's API with back-to-back
	// page requests.
	PaginationPaceDelay = 500 * time.Millisecond
)

// SleepFunc waits for d or returns ctx.Err() if the context is canceled
// first. Tests substitute a no-op implementation to avoid real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RealSleep is the production SleepFunc.
func RealSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CalcBackoff computes exponential backoff with jitter for the given
// zero-based attempt number.
func CalcBackoff(attempt int) time.Duration {
	backoff := float64(BaseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(MaxBackoff) {
		backoff = float64(MaxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security sensitive
	backoff += jitter

	return time.Duration(backoff)
}

// RetryAfterOrBackoff honors a numeric Retry-After header on 429/509
// responses, falling back to CalcBackoff otherwise.
func RetryAfterOrBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == statusBandwidthExceeded {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return CalcBackoff(attempt)
}

// IsRetryableStatus reports whether an HTTP status code warrants a retry.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusBandwidthExceeded:
		return true
	default:
		return false
	}
}

// RewindBody seeks a seekable request body back to the start so a retry
// resends the full payload. No-op for nil or non-seekable bodies.
func RewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("providercommon: rewinding request body for retry: %w", err)
		}
	}

	return nil
}
