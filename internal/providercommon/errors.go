package providercommon

import (
	"net/http"

	"github.com/kestrelframe/photosync/internal/provider"
)

// ClassifyStatus maps an HTTP status code to the shared provider error
// kind. Returns nil for 2xx codes.
func ClassifyStatus(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return provider.ErrAuthentication
	case code == http.StatusNotFound || code == http.StatusGone:
		return provider.ErrNotFound
	case code == http.StatusTooManyRequests || code == statusBandwidthExceeded:
		return provider.ErrRateLimited
	case code == http.StatusBadRequest || code == http.StatusConflict:
		return provider.ErrValidation
	case code >= http.StatusInternalServerError:
		return provider.ErrNetwork
	default:
		return provider.ErrNetwork
	}
}
