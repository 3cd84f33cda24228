package syncctl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/store"
)

// FullScan recursively lists every configured folder, batch-upserting
// results as they arrive, then tombstones any previously-seen photo of
// this provider that was not revisited during the scan.
func (c *Controller) FullScan(ctx context.Context) error {
	scanStart := time.Now().UTC()
	seen := make(map[string]bool)

	// Rows are stamped at millisecond resolution. Return only once the clock
	// has left scanStart's millisecond, so the next scan starts strictly
	// later and this scan's rows count as stale to it unless revisited.
	defer func() {
		for time.Now().UnixMilli() <= scanStart.UnixMilli() {
			time.Sleep(time.Millisecond)
		}
	}()

	for _, folder := range c.folders {
		if err := c.scanOneFolder(ctx, folder, scanStart, seen); err != nil {
			return fmt.Errorf("syncctl: scanning folder %q: %w", folder.FolderID, err)
		}
	}

	n, err := c.store.MarkTombstonedStale(ctx, c.provider.Name(), scanStart)
	if err != nil {
		return fmt.Errorf("syncctl: marking stale photos tombstoned: %w", err)
	}

	c.logger.Info("syncctl: full scan complete",
		slog.Int("folders", len(c.folders)), slog.Int("photos_seen", len(seen)), slog.Int64("tombstoned", n))

	return nil
}

// scanOneFolder drains one FolderSpec's photo sequence, upserting in
// batches, and records every photoId seen so the caller can log a count.
// The dedup rule ("first occurrence wins across FolderSpecs") falls out
// naturally: seen tracks photoIds already upserted this scan and skips
// them on a later FolderSpec.
func (c *Controller) scanOneFolder(ctx context.Context, folder config.FolderSpec, scanStart time.Time, seen map[string]bool) error {
	c.scope.recordRoot(folder.FolderID)

	var batch []store.Photo

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		if err := c.store.UpsertPhotos(ctx, batch); err != nil {
			return err
		}

		batch = batch[:0]

		return nil
	}

	var seqErr error

	for photo, err := range c.provider.ScanFolder(ctx, folder.FolderID, folder.Depth) {
		if err != nil {
			seqErr = err

			break
		}

		if seen[photo.ID] {
			continue
		}

		seen[photo.ID] = true
		c.scope.recordScan(folder.FolderID, photo.FolderID, photo.AncestorIDs)

		batch = append(batch, toStorePhoto(photo, c.provider.Name(), scanStart))
		if len(batch) >= batchSize {
			if flushErr := flush(); flushErr != nil {
				return flushErr
			}
		}
	}

	if flushErr := flush(); flushErr != nil {
		return flushErr
	}

	return seqErr
}

func toStorePhoto(p provider.Photo, providerID string, scanTime time.Time) store.Photo {
	sp := store.Photo{
		PhotoID:          p.ID,
		ProviderID:       providerID,
		ParentFolderID:   p.FolderID,
		Filename:         p.Name,
		FirstSeenAt:      scanTime,
		LastSeenInScanAt: scanTime,
	}

	if !p.CapturedAt.IsZero() {
		sp.CreatedAt = sql.NullTime{Time: p.CapturedAt, Valid: true}
	} else if !p.ModifiedAt.IsZero() {
		sp.CreatedAt = sql.NullTime{Time: p.ModifiedAt, Valid: true}
	}

	if p.Width > 0 {
		sp.Width = sql.NullInt64{Int64: int64(p.Width), Valid: true}
	}

	if p.Height > 0 {
		sp.Height = sql.NullInt64{Int64: int64(p.Height), Valid: true}
	}

	return sp
}
