package drivea

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
)

// downloadContent fetches the item metadata to obtain a pre-authenticated
// download URL, then streams the content directly from that URL (bypassing
// the API entirely, as the Graph-shaped contract requires). The returned
// body's Close is deferred to the caller.
func (p *Provider) downloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		return p.downloadWithCancel(ctx, photoID, cancel)
	}

	return p.download(ctx, photoID)
}

// downloadWithCancel wraps the returned body so cancel fires when the
// caller closes it, releasing the timeout context promptly.
func (p *Provider) downloadWithCancel(ctx context.Context, photoID string, cancel context.CancelFunc) (io.ReadCloser, error) {
	rc, err := p.download(ctx, photoID)
	if err != nil {
		cancel()

		return nil, err
	}

	return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()

	return c.ReadCloser.Close()
}

func (p *Provider) download(ctx context.Context, photoID string) (io.ReadCloser, error) {
	path := fmt.Sprintf("/drives/%s/items/%s", p.driveID, photoID)

	resp, err := p.client.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var d driveItemResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&d); decodeErr != nil {
		return nil, &provider.Error{
			Provider: Name, Operation: "DownloadContent", Kind: provider.ErrValidation,
			Cause: fmt.Errorf("decoding item response: %w", decodeErr),
		}
	}

	if d.DownloadURL == "" {
		return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrNotFound, Cause: fmt.Errorf("photo %s has no download URL", photoID)}
	}

	dlResp, err := p.client.doPreAuth(ctx, "download", func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, d.DownloadURL, http.NoBody)
		if reqErr != nil {
			return nil, fmt.Errorf("creating download request: %w", reqErr)
		}

		req.Header.Set("User-Agent", userAgent)

		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return dlResp.Body, nil
}
