package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelframe/photosync/internal/store"
)

// evict first releases the cache resources of any tombstoned photos, then
// sheds cached entries oldest-shown first until total cached bytes falls
// within MaxCacheBytes minus CacheHeadroom, or until no evictable rows
// remain. Rows are evicted whole — no splitting — so a single row whose
// size alone exceeds the cap is evicted like any other.
func (e *Engine) evict(ctx context.Context) error {
	if err := e.releaseTombstoned(ctx); err != nil {
		e.logger.Error("cache: releasing tombstoned entries failed", slog.Any("error", err))
	}

	total, err := e.store.SumCachedBytes(ctx)
	if err != nil {
		return fmt.Errorf("cache: summing cached bytes: %w", err)
	}

	if total <= e.cfg.MaxCacheBytes {
		return nil
	}

	target := e.cfg.MaxCacheBytes - CacheHeadroom
	if target < 0 {
		target = 0
	}

	candidates, err := e.store.EvictionCandidates(ctx, evictionBatchSize)
	if err != nil {
		return fmt.Errorf("cache: fetching eviction candidates: %w", err)
	}

	for _, photo := range candidates {
		if total <= target {
			break
		}

		if !photo.CachedSizeBytes.Valid {
			continue
		}

		freed, err := e.evictOne(ctx, photo)
		if err != nil {
			e.logger.Error("cache: evicting photo failed", slog.String("photo_id", photo.PhotoID), slog.Any("error", err))

			continue
		}

		total -= freed
	}

	return nil
}

// evictionBatchSize bounds a single eviction pass; a tick that still
// exceeds the cap after this many evictions will continue shedding on the
// next tick rather than stall the current one indefinitely.
const evictionBatchSize = 200

// releaseTombstoned frees the physical resource and cache columns of every
// tombstoned photo still holding one. Runs on every eviction pass,
// regardless of the byte cap — a deleted photo's cache resource must not
// outlive the tick that notices it.
func (e *Engine) releaseTombstoned(ctx context.Context) error {
	photos, err := e.store.TombstonedCachedPhotos(ctx, evictionBatchSize)
	if err != nil {
		return err
	}

	for _, photo := range photos {
		if _, err := e.evictOne(ctx, photo); err != nil {
			e.logger.Error("cache: releasing tombstoned photo failed",
				slog.String("photo_id", photo.PhotoID), slog.Any("error", err))
		}
	}

	return nil
}

// evictOne releases photo's physical cache resource and nulls its cache
// columns, returning the bytes freed.
func (e *Engine) evictOne(ctx context.Context, photo store.Photo) (int64, error) {
	if !e.cfg.UseBlobStorage && photo.CachedPath.Valid {
		if err := removeFileCache(photo.CachedPath.String); err != nil {
			return 0, err
		}
	}

	if err := e.store.ClearCache(ctx, photo.PhotoID); err != nil {
		return 0, fmt.Errorf("clearing cache row for %s: %w", photo.PhotoID, err)
	}

	freed := int64(0)
	if photo.CachedSizeBytes.Valid {
		freed = photo.CachedSizeBytes.Int64
	}

	return freed, nil
}
