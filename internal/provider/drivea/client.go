// Package drivea implements the provider.Provider contract against a
// Microsoft Graph-shaped cloud storage API (OneDrive/SharePoint). It is the
// photo-frame backend's reference conformance: OAuth2 device-code login,
// delta-based incremental sync, and pre-authenticated download URLs.
package drivea

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

// DefaultBaseURL is the production Microsoft Graph API v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

const userAgent = "photosync-drivea/1.0"

// tokenSource supplies bearer tokens for outgoing requests.
type tokenSource interface {
	Token() (string, error)
}

// client is a minimal HTTP client for the Graph API: authenticated
// requests, retry with exponential backoff, and error classification.
// It has no notion of photos or folders — that lives in scan.go/changes.go.
type client struct {
	baseURL    string
	httpClient *http.Client
	token      tokenSource
	logger     *slog.Logger
	sleepFunc  providercommon.SleepFunc
}

func newClient(baseURL string, httpClient *http.Client, token tokenSource, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  providercommon.RealSleep,
	}
}

// do executes an authenticated request against the API with retry on
// transient errors. The caller must close the response body on success.
func (c *client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	return c.doWithHeaders(ctx, method, path, body, nil)
}

func (c *client) doWithHeaders(
	ctx context.Context, method, path string, body io.Reader, extraHeaders http.Header,
) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		if err := providercommon.RewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body, extraHeaders)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &provider.Error{Provider: Name, Operation: method + " " + path, Kind: provider.ErrCancelled, Cause: ctx.Err()}
			}

			if attempt < providercommon.MaxRetries {
				backoff := providercommon.CalcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method), slog.String("path", path),
					slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff),
					slog.String("error", err.Error()))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, &provider.Error{Provider: Name, Operation: method + " " + path, Kind: provider.ErrCancelled, Cause: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &provider.Error{Provider: Name, Operation: method + " " + path, Kind: provider.ErrNetwork, Cause: err}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if providercommon.IsRetryableStatus(resp.StatusCode) && attempt < providercommon.MaxRetries {
			backoff := providercommon.RetryAfterOrBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, &provider.Error{Provider: Name, Operation: method + " " + path, Kind: provider.ErrCancelled, Cause: err}
			}

			attempt++

			continue
		}

		kind := providercommon.ClassifyStatus(resp.StatusCode)

		return nil, &provider.Error{
			Provider:  Name,
			Operation: method + " " + path,
			Kind:      kind,
			Cause:     fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(errBody)),
		}
	}
}

func (c *client) doOnce(
	ctx context.Context, method, url string, body io.Reader, extraHeaders http.Header,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, vals := range extraHeaders {
		for _, v := range vals {
			req.Header.Add(key, v)
		}
	}

	return c.httpClient.Do(req) //nolint:wrapcheck // caller classifies the error
}

// doPreAuth executes a request builder against a pre-authenticated URL
// (no Authorization header added) with the same retry policy as do.
func (c *client) doPreAuth(ctx context.Context, desc string, makeReq func() (*http.Request, error)) (*http.Response, error) {
	var attempt int

	for {
		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &provider.Error{Provider: Name, Operation: desc, Kind: provider.ErrCancelled, Cause: ctx.Err()}
			}

			if attempt < providercommon.MaxRetries {
				backoff := providercommon.CalcBackoff(attempt)
				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, &provider.Error{Provider: Name, Operation: desc, Kind: provider.ErrCancelled, Cause: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &provider.Error{Provider: Name, Operation: desc, Kind: provider.ErrNetwork, Cause: err}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if providercommon.IsRetryableStatus(resp.StatusCode) && attempt < providercommon.MaxRetries {
			backoff := providercommon.RetryAfterOrBackoff(resp, attempt)
			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, &provider.Error{Provider: Name, Operation: desc, Kind: provider.ErrCancelled, Cause: sleepErr}
			}

			attempt++

			continue
		}

		kind := providercommon.ClassifyStatus(resp.StatusCode)

		return nil, &provider.Error{
			Provider: Name, Operation: desc, Kind: kind,
			Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(errBody)),
		}
	}
}

// stripBaseURL removes the client's base URL prefix from a full URL,
// returning the path+query for reuse with do(). Errors if the URL does not
// share this client's base (e.g. a differently-routed nextLink).
func (c *client) stripBaseURL(fullURL string) (string, error) {
	if len(fullURL) < len(c.baseURL) || fullURL[:len(c.baseURL)] != c.baseURL {
		return "", fmt.Errorf("drivea: link %q does not match base URL %q", fullURL, c.baseURL)
	}

	return fullURL[len(c.baseURL):], nil
}
