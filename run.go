package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kestrelframe/photosync/internal/cache"
	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/display"
	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/provider/cloudb"
	"github.com/kestrelframe/photosync/internal/provider/drivea"
	"github.com/kestrelframe/photosync/internal/runtime"
	"github.com/kestrelframe/photosync/internal/store"
	"github.com/kestrelframe/photosync/internal/syncctl"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync, cache, and display daemon",
		Long: `Run starts the three periodic subsystems — sync, cache, display — and
blocks until interrupted. A second SIGINT/SIGTERM forces immediate exit.`,
		RunE: runRun,
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	cleanup, err := writePIDFile(config.PIDFilePath())
	if err != nil {
		return configError(err)
	}
	defer cleanup()

	p, err := newConfiguredProvider(cfg, logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	if err := p.Initialize(ctx); err != nil {
		return authError(fmt.Errorf("initializing provider %q: %w", cfg.Provider.Name, err))
	}

	st, err := store.OpenOrRebuild(ctx, config.StoreDBPath(cfg), logger)
	if err != nil {
		return storeError(fmt.Errorf("opening metadata store: %w", err))
	}
	// st is closed by runtime.Daemon.Run as the final shutdown step once
	// the daemon actually starts; any earlier return path must close it.

	if err := reconcileCacheMode(ctx, st, cfg); err != nil {
		st.Close()

		return configError(err)
	}

	sc := syncctl.New(st, p, cfg.Provider.Folders, logger)

	ce := cache.New(st, p, cache.Config{
		MaxCacheBytes:     int64(cfg.MaxCacheSizeMB) << 20,
		PrefetchBatchSize: cfg.PrefetchBatchSize,
		CacheDir:          config.CacheDirPath(cfg),
		UseBlobStorage:    cfg.UseBlobStorage,
		ShowWidth:         cfg.ShowWidth,
		ShowHeight:        cfg.ShowHeight,
		JPEGQuality:       cfg.JPEGQuality,
	}, logger)

	boundary := display.NewBoundary(1)
	ds := display.New(st, boundary, cfg.DisplayInterval.Std(), cfg.ShowWidth, logger)

	go drainBoundary(ctx, boundary, logger)
	go watchRescanSignal(ctx, sc, logger)
	go watchTokenFile(ctx, cfg.Provider.TokenPath, logger)

	d := runtime.New(st, sc, ce, ds, logger)

	return d.Run(ctx, runtime.Config{
		SyncInterval:      cfg.SyncInterval.Std(),
		CacheTickInterval: cfg.CacheTickInterval.Std(),
		DisplayInterval:   cfg.DisplayInterval.Std(),
	})
}

// drainBoundary stands in for the display front-end: it logs each emitted
// frame and acknowledges it, and logs status text. A real front-end would
// forward frames over its transport instead — base64 over a text channel
// or raw bytes over a binary one — but this CLI has none attached.
func drainBoundary(ctx context.Context, b *display.Boundary, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.Frames:
			logger.Info("display: frame emitted",
				slog.String("photo_id", ev.PhotoID),
				slog.String("filename", ev.Filename),
				slog.Int("bytes", len(ev.Bytes)),
			)

			select {
			case b.Acks <- display.Ack{PhotoID: ev.PhotoID}:
			default:
			}
		case msg := <-b.Status:
			logger.Warn("display: status", slog.String("message", msg))
		}
	}
}

// watchRescanSignal triggers an immediate sync tick on SIGHUP, the signal
// `photosync rescan` sends to a running daemon's PID so a forced rescan
// doesn't have to wait for the next scheduled tick.
func watchRescanSignal(ctx context.Context, sc *syncctl.Controller, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			logger.Info("received SIGHUP, triggering an immediate sync tick")
			sc.Tick(ctx)
		}
	}
}

func newConfiguredProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Provider.Name {
	case drivea.Name:
		return drivea.New(drivea.Config{
			DriveID:   cfg.Provider.DriveID,
			TokenPath: cfg.Provider.TokenPath,
			Logger:    logger,
		}), nil
	case cloudb.Name:
		return cloudb.New(cloudb.Config{
			TokenPath: cfg.Provider.TokenPath,
			Logger:    logger,
		}), nil
	default:
		return nil, configError(fmt.Errorf("unknown provider %q", cfg.Provider.Name))
	}
}
