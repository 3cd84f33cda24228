package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/store"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNetworkFail
	outcomeValidationFail
)

type downloadResult struct {
	photoID string
	outcome outcome
	err     error
}

// prefetchAll downloads every candidate with bounded concurrency equal to
// the configured prefetch batch size.
func (e *Engine) prefetchAll(ctx context.Context, candidates []store.Photo) []downloadResult {
	results := make([]downloadResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PrefetchBatchSize)

	for i := range candidates {
		idx := i
		photo := candidates[i]

		g.Go(func() error {
			results[idx] = e.prefetchOne(gctx, photo)

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// prefetchOne downloads, normalizes, and persists a single photo, leaving
// the store untouched on failure except where validation failure requires
// tombstoning so the photo is not retried forever.
func (e *Engine) prefetchOne(ctx context.Context, photo store.Photo) downloadResult {
	dlCtx, cancel := context.WithTimeout(ctx, DownloadTimeout)
	defer cancel()

	raw, err := e.downloadCapped(dlCtx, photo.PhotoID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) || errors.Is(err, provider.ErrValidation) {
			e.tombstoneFailed(ctx, photo.PhotoID, err)

			return downloadResult{photoID: photo.PhotoID, outcome: outcomeValidationFail, err: err}
		}

		e.logger.Warn("cache: download failed", slog.String("photo_id", photo.PhotoID), slog.Any("error", err))

		return downloadResult{photoID: photo.PhotoID, outcome: outcomeNetworkFail, err: err}
	}

	normalized, mime, err := e.norm.normalize(raw)
	if err != nil {
		e.tombstoneFailed(ctx, photo.PhotoID, err)

		return downloadResult{photoID: photo.PhotoID, outcome: outcomeValidationFail, err: err}
	}

	if len(normalized) < MinOutputBytes {
		e.tombstoneFailed(ctx, photo.PhotoID, errors.New("normalized output below minimum size"))

		return downloadResult{photoID: photo.PhotoID, outcome: outcomeValidationFail}
	}

	if err := e.persist(ctx, photo.PhotoID, normalized, mime); err != nil {
		e.logger.Error("cache: persisting cached image failed", slog.String("photo_id", photo.PhotoID), slog.Any("error", err))

		return downloadResult{photoID: photo.PhotoID, outcome: outcomeNetworkFail, err: err}
	}

	return downloadResult{photoID: photo.PhotoID, outcome: outcomeSuccess}
}

// downloadCapped streams content from the provider, aborting and
// discarding if it exceeds the hard raw-byte maximum.
func (e *Engine) downloadCapped(ctx context.Context, photoID string) ([]byte, error) {
	rc, err := e.provider.DownloadContent(ctx, photoID, DownloadTimeout)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	limited := io.LimitReader(rc, HardMaxRawBytes+1)

	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}

	if len(data) > HardMaxRawBytes {
		return nil, provider.ErrValidation
	}

	return data, nil
}

func (e *Engine) tombstoneFailed(ctx context.Context, photoID string, cause error) {
	e.logger.Warn("cache: tombstoning photo after validation failure",
		slog.String("photo_id", photoID), slog.Any("cause", cause))

	if err := e.store.Tombstone(ctx, photoID); err != nil {
		e.logger.Error("cache: tombstoning failed", slog.String("photo_id", photoID), slog.Any("error", err))
	}
}

func (e *Engine) persist(ctx context.Context, photoID string, data []byte, mime string) error {
	now := time.Now().UTC()

	if e.cfg.UseBlobStorage {
		return e.store.SetBlobCache(ctx, photoID, data, mime, now)
	}

	path, err := writeFileCache(e.cfg.CacheDir, photoID, data)
	if err != nil {
		return err
	}

	if err := e.store.SetFileCache(ctx, photoID, path, int64(len(data)), now); err != nil {
		// Without a row pointing at it the file would be an orphan.
		_ = removeFileCache(path)

		return err
	}

	return nil
}
