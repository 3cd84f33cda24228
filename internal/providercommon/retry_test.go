package providercommon

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelframe/photosync/internal/provider"
)

func TestCalcBackoffGrowsAndStaysBounded(t *testing.T) {
	prev := time.Duration(0)

	for attempt := range 6 {
		backoff := CalcBackoff(attempt)

		// Even at maximum negative jitter the floor holds.
		assert.GreaterOrEqual(t, backoff, time.Duration(float64(BaseBackoff)*(1-jitterFraction)),
			"attempt %d backoff below jittered base", attempt)
		assert.LessOrEqual(t, backoff, time.Duration(float64(MaxBackoff)*(1+jitterFraction)),
			"attempt %d backoff above jittered cap", attempt)

		if attempt > 0 && attempt < 4 {
			assert.Greater(t, backoff, prev/2, "backoff should trend upward across attempts")
		}

		prev = backoff
	}
}

func TestRetryAfterOrBackoffHonorsHeader(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": {"7"}},
	}

	assert.Equal(t, 7*time.Second, RetryAfterOrBackoff(resp, 0))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusOK, nil},
		{http.StatusUnauthorized, provider.ErrAuthentication},
		{http.StatusForbidden, provider.ErrAuthentication},
		{http.StatusNotFound, provider.ErrNotFound},
		{http.StatusGone, provider.ErrNotFound},
		{http.StatusTooManyRequests, provider.ErrRateLimited},
		{statusBandwidthExceeded, provider.ErrRateLimited},
		{http.StatusBadRequest, provider.ErrValidation},
		{http.StatusInternalServerError, provider.ErrNetwork},
		{http.StatusBadGateway, provider.ErrNetwork},
	}

	for _, tt := range tests {
		got := ClassifyStatus(tt.code)

		if tt.want == nil {
			require.NoError(t, got, "status %d", tt.code)

			continue
		}

		assert.ErrorIs(t, got, tt.want, "status %d", tt.code)
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 509} {
		assert.True(t, IsRetryableStatus(code), "status %d", code)
	}

	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsRetryableStatus(code), "status %d", code)
	}
}
