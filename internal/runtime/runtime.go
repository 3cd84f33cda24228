// Package runtime wires the three periodic subsystems — sync, cache, and
// display — into a single long-running process with a coordinated
// shutdown sequence.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelframe/photosync/internal/cache"
	"github.com/kestrelframe/photosync/internal/display"
	"github.com/kestrelframe/photosync/internal/store"
	"github.com/kestrelframe/photosync/internal/syncctl"
)

// shutdownGrace bounds how long the cache engine's in-flight writes are
// awaited once a shutdown begins.
const shutdownGrace = 5 * time.Second

// Config bundles the subsystem intervals. Run drives sync and cache on
// SyncInterval and CacheTickInterval; DisplayInterval is not read by Run,
// since the display scheduler ticks on the interval it was built with.
type Config struct {
	SyncInterval      time.Duration
	CacheTickInterval time.Duration
	DisplayInterval   time.Duration
}

// Daemon owns the three subsystems and the metadata store they share.
type Daemon struct {
	store   *store.Store
	sync    *syncctl.Controller
	cache   *cache.Engine
	display *display.Scheduler
	logger  *slog.Logger
}

// New assembles a Daemon from its already-constructed subsystems.
func New(st *store.Store, sc *syncctl.Controller, ce *cache.Engine, ds *display.Scheduler, logger *slog.Logger) *Daemon {
	return &Daemon{store: st, sync: sc, cache: ce, display: ds, logger: logger}
}

// Run starts all three subsystems and blocks until ctx is cancelled, at
// which point it performs the shutdown sequence: stop Display first (no
// new frames), then Cache (cancelling in-flight downloads and waiting up
// to shutdownGrace for writes to settle), then Sync (cancelling any
// in-flight Provider call), then close the store.
func (d *Daemon) Run(ctx context.Context, cfg Config) error {
	g, gctx := errgroup.WithContext(ctx)

	displayCtx, cancelDisplay := context.WithCancel(gctx)
	cacheCtx, cancelCache := context.WithCancel(gctx)
	syncCtx, cancelSync := context.WithCancel(gctx)

	g.Go(func() error {
		d.display.Run(displayCtx)

		return nil
	})

	g.Go(func() error {
		d.cache.Run(cacheCtx, cfg.CacheTickInterval)

		return nil
	})

	g.Go(func() error {
		d.sync.Run(syncCtx, cfg.SyncInterval)

		return nil
	})

	<-gctx.Done()

	d.logger.Info("runtime: shutdown initiated")

	cancelDisplay()

	cancelCache()
	d.awaitCacheSettled()

	cancelSync()

	_ = g.Wait()

	if err := d.store.Close(); err != nil {
		return err
	}

	d.logger.Info("runtime: shutdown complete")

	return nil
}

// awaitCacheSettled gives the cache engine up to shutdownGrace to leave
// the Ticking state after cancellation, without blocking shutdown
// indefinitely if a download is stuck mid-decode (the contract tolerates
// this: "long-running image processing is not cancellable mid-decode").
func (d *Daemon) awaitCacheSettled() {
	deadline := time.Now().Add(shutdownGrace)

	for time.Now().Before(deadline) {
		if d.cache.State() != cache.StateTicking {
			return
		}

		time.Sleep(50 * time.Millisecond)
	}
}
