package cloudb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
)

type downloadArg struct {
	Path string `json:"path"`
}

// downloadContent streams the raw content of photoID via the content host's
// download endpoint, which takes its argument in a header rather than a
// JSON body.
func (p *Provider) downloadContent(ctx context.Context, photoID string, timeout time.Duration) (io.ReadCloser, error) {
	if timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, timeout)

		rc, err := p.downloadOnce(ctx, photoID)
		if err != nil {
			cancel()

			return nil, err
		}

		return &cancelOnClose{ReadCloser: rc, cancel: cancel}, nil
	}

	return p.downloadOnce(ctx, photoID)
}

func (p *Provider) downloadOnce(ctx context.Context, photoID string) (io.ReadCloser, error) {
	arg, err := json.Marshal(downloadArg{Path: photoID})
	if err != nil {
		return nil, &provider.Error{Provider: Name, Operation: "DownloadContent", Kind: provider.ErrValidation, Cause: fmt.Errorf("marshaling download arg: %w", err)}
	}

	return p.client.downloadRPC(ctx, "/files/download", string(arg))
}

type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()

	return c.ReadCloser.Close()
}
