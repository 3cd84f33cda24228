// Package syncctl drives the periodic reconciliation between a Provider
// and the metadata store: full scans that establish ground truth for a
// configured set of folders, and incremental scans that apply a
// provider's change feed against it.
package syncctl

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/store"
)

const (
	// SettingCursor persists the provider-opaque resume token between
	// incremental scans.
	SettingCursor = "sync.cursor"

	// batchSize bounds how many photo rows are upserted per transaction,
	// matching a single page's worth of provider results.
	batchSize = 200

	// ancestorMaxDepth bounds the ancestor walk for incremental-scan
	// filtering.
	ancestorMaxDepth = 20
)

// Controller periodically reconciles the metadata store against a
// Provider's view of the configured folders.
type Controller struct {
	store    *store.Store
	provider provider.Provider
	folders  []config.FolderSpec
	logger   *slog.Logger
	scope    *scopeIndex
}

// New constructs a Controller for the given provider and folder scope.
func New(st *store.Store, p provider.Provider, folders []config.FolderSpec, logger *slog.Logger) *Controller {
	return &Controller{
		store:    st,
		provider: p,
		folders:  folders,
		logger:   logger,
		scope:    newScopeIndex(folders),
	}
}

// Run drives Tick on the given interval until ctx is cancelled. The first
// tick fires immediately rather than waiting a full interval, since a
// freshly started daemon should not sit idle for SYNC_INTERVAL before its
// first scan.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	c.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick performs one scan, choosing full or incremental per the startup
// rule: full when a rescan has been requested or no cursor is stored,
// incremental otherwise.
func (c *Controller) Tick(ctx context.Context) {
	needsFull, err := c.store.NeedsFullRescan(ctx)
	if err != nil {
		c.logger.Error("syncctl: checking rescan flag failed", slog.Any("error", err))

		return
	}

	_, hasCursor, err := c.store.GetSetting(ctx, SettingCursor)
	if err != nil {
		c.logger.Error("syncctl: checking cursor failed", slog.Any("error", err))

		return
	}

	if needsFull || !hasCursor {
		if err := c.FullScan(ctx); err != nil {
			c.logger.Error("syncctl: full scan failed", slog.Any("error", err))

			return
		}

		cursor, err := c.provider.InitialCursor(ctx)
		if err != nil {
			c.logger.Error("syncctl: acquiring initial cursor failed", slog.Any("error", err))

			return
		}

		if err := c.store.SetSetting(ctx, SettingCursor, cursor); err != nil {
			c.logger.Error("syncctl: persisting initial cursor failed", slog.Any("error", err))
		}

		if err := c.store.SetNeedsFullRescan(ctx, false); err != nil {
			c.logger.Error("syncctl: clearing rescan flag failed", slog.Any("error", err))
		}

		return
	}

	if err := c.IncrementalScan(ctx); err != nil {
		c.logger.Error("syncctl: incremental scan failed", slog.Any("error", err))
	}
}
