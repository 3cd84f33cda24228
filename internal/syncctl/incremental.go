package syncctl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
)

// IncrementalScan fetches changes since the persisted cursor and applies
// them: upserts filtered to the configured folder scope, tombstones
// unfiltered (a deletion is always honored regardless of scope, since a
// stale row for an out-of-scope photo is harmless and the check would
// otherwise require data we no longer have). The new cursor is persisted
// only after the sequence drains without error.
func (c *Controller) IncrementalScan(ctx context.Context) error {
	cursor, _, err := c.store.GetSetting(ctx, SettingCursor)
	if err != nil {
		return fmt.Errorf("syncctl: loading cursor: %w", err)
	}

	changes, nextCursor, err := c.provider.ChangesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("syncctl: requesting changes: %w", err)
	}

	applied, skipped := 0, 0

	var seqErr error

	for change, err := range changes {
		if err != nil {
			seqErr = err

			break
		}

		switch change.Kind {
		case provider.ChangeDeleted:
			if tombErr := c.store.Tombstone(ctx, change.Photo.ID); tombErr != nil {
				seqErr = fmt.Errorf("tombstoning %s: %w", change.Photo.ID, tombErr)

				break
			}

			applied++
		case provider.ChangeFolder:
			c.scope.recordEdge(change.Folder.FolderID, change.Folder.ParentID)
		case provider.ChangeUpserted:
			c.scope.recordEdges(change.Photo.FolderID, change.Photo.AncestorIDs)

			if !c.scope.isInScope(change.Photo.FolderID) {
				skipped++

				continue
			}

			sp := toStorePhoto(change.Photo, c.provider.Name(), time.Now().UTC())
			if upsertErr := c.store.UpsertPhoto(ctx, sp); upsertErr != nil {
				seqErr = fmt.Errorf("upserting %s: %w", change.Photo.ID, upsertErr)

				break
			}

			c.scope.markKnown(change.Photo.FolderID)
			applied++
		}

		if seqErr != nil {
			break
		}
	}

	if seqErr != nil {
		return seqErr
	}

	if err := c.store.SetSetting(ctx, SettingCursor, nextCursor()); err != nil {
		return fmt.Errorf("syncctl: persisting cursor: %w", err)
	}

	c.logger.Info("syncctl: incremental scan complete", slog.Int("applied", applied), slog.Int("skipped", skipped))

	return nil
}
