package providercommon

import (
	"context"
	"net"
	"net/url"
	"time"
)

// probeTimeout bounds how long a reachability check may block.
const probeTimeout = 5 * time.Second

// IsReachable resolves the provider's canonical host and reports whether
// DNS resolution succeeded. It never returns an error to the caller;
// callers branch on the boolean alone, matching the Provider.IsReachable
// contract. A successful lookup does not guarantee the API itself is
// healthy, only that the network path to it exists — deeper failures
// (auth, 5xx, timeouts) surface through the normal request/retry path
// instead.
func IsReachable(ctx context.Context, baseURL string) bool {
	host := hostOf(baseURL)
	if host == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := net.DefaultResolver.LookupHost(ctx, host)

	return err == nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
