package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchTokenFile logs when the provider's on-disk token changes during a
// run — e.g. an operator running `photosync login` again in another
// terminal while the daemon is up. The daemon doesn't hot-swap
// credentials mid-run; this is purely informational so the operator
// knows a restart is what picks up the new token.
func watchTokenFile(ctx context.Context, tokenPath string, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("token watch: creating watcher failed", slog.Any("error", err))

		return
	}
	defer watcher.Close()

	dir := filepath.Dir(tokenPath)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("token watch: watching directory failed", slog.String("dir", dir), slog.Any("error", err))

		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			if ev.Name == tokenPath && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				logger.Info("token file changed on disk; restart the daemon to pick it up", slog.String("path", tokenPath))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.Warn("token watch: error", slog.Any("error", err))
		}
	}
}
