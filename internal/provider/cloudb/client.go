package cloudb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/providercommon"
)

const userAgent = "photosync-cloudb/1.0"

type tokenSource interface {
	Token() (string, error)
}

// client performs authenticated JSON RPCs (metadata host) and raw content
// requests (content host) with the shared retry policy.
type client struct {
	baseURL    string
	contentURL string
	httpClient *http.Client
	token      tokenSource
	logger     *slog.Logger
	sleepFunc  providercommon.SleepFunc
}

func newClient(baseURL, contentURL string, httpClient *http.Client, token tokenSource, logger *slog.Logger) *client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &client{
		baseURL:    baseURL,
		contentURL: contentURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  providercommon.RealSleep,
	}
}

// rpc POSTs a JSON body to baseURL+endpoint and decodes the JSON response
// into out, retrying on transient failures.
func (c *client) rpc(ctx context.Context, endpoint string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("cloudb: marshaling request for %s: %w", endpoint, err)
	}

	resp, err := c.doRetry(ctx, c.baseURL+endpoint, func() io.Reader { return bytes.NewReader(payload) })
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(out); decodeErr != nil {
		return &provider.Error{Provider: Name, Operation: endpoint, Kind: provider.ErrValidation, Cause: fmt.Errorf("decoding response: %w", decodeErr)}
	}

	return nil
}

// doRetry executes method POST against url with the shared backoff policy.
// makeBody is called fresh on every attempt so the request body is always
// rewound without relying on io.Seeker.
func (c *client) doRetry(ctx context.Context, url string, makeBody func() io.Reader) (*http.Response, error) {
	var attempt int

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, makeBody())
		if err != nil {
			return nil, fmt.Errorf("cloudb: creating request: %w", err)
		}

		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("cloudb: obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &provider.Error{Provider: Name, Operation: url, Kind: provider.ErrCancelled, Cause: ctx.Err()}
			}

			if attempt < providercommon.MaxRetries {
				if sleepErr := c.sleepFunc(ctx, providercommon.CalcBackoff(attempt)); sleepErr != nil {
					return nil, &provider.Error{Provider: Name, Operation: url, Kind: provider.ErrCancelled, Cause: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &provider.Error{Provider: Name, Operation: url, Kind: provider.ErrNetwork, Cause: err}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if providercommon.IsRetryableStatus(resp.StatusCode) && attempt < providercommon.MaxRetries {
			if sleepErr := c.sleepFunc(ctx, providercommon.RetryAfterOrBackoff(resp, attempt)); sleepErr != nil {
				return nil, &provider.Error{Provider: Name, Operation: url, Kind: provider.ErrCancelled, Cause: sleepErr}
			}

			attempt++

			continue
		}

		return nil, &provider.Error{
			Provider: Name, Operation: url, Kind: providercommon.ClassifyStatus(resp.StatusCode),
			Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}
}

// downloadRPC POSTs to the content host with a cloudb-api-arg header
// carrying the request params and returns the raw body stream.
func (c *client) downloadRPC(ctx context.Context, endpoint string, argHeader string) (io.ReadCloser, error) {
	var attempt int

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+endpoint, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("cloudb: creating download request: %w", err)
		}

		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("cloudb: obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("cloudb-api-arg", argHeader)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrCancelled, Cause: ctx.Err()}
			}

			if attempt < providercommon.MaxRetries {
				if sleepErr := c.sleepFunc(ctx, providercommon.CalcBackoff(attempt)); sleepErr != nil {
					return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrCancelled, Cause: sleepErr}
				}

				attempt++

				continue
			}

			return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrNetwork, Cause: err}
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp.Body, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if providercommon.IsRetryableStatus(resp.StatusCode) && attempt < providercommon.MaxRetries {
			if sleepErr := c.sleepFunc(ctx, providercommon.RetryAfterOrBackoff(resp, attempt)); sleepErr != nil {
				return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrCancelled, Cause: sleepErr}
			}

			attempt++

			continue
		}

		return nil, &provider.Error{
			Provider: Name, Operation: "DownloadContent", Kind: providercommon.ClassifyStatus(resp.StatusCode),
			Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}
}
