package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachepkg "github.com/kestrelframe/photosync/internal/cache"
	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/display"
	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/store"
	"github.com/kestrelframe/photosync/internal/syncctl"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopProvider struct{}

func (noopProvider) Name() string                     { return "noop" }
func (noopProvider) Initialize(context.Context) error { return nil }
func (noopProvider) IsReachable(context.Context) bool { return true }

func (noopProvider) ScanFolder(context.Context, string, int) provider.PhotoSeq {
	return func(func(provider.Photo, error) bool) {}
}

func (noopProvider) InitialCursor(context.Context) (string, error) { return "", nil }

func (noopProvider) ChangesSince(context.Context, string) (provider.ChangeSeq, func() string, error) {
	return func(func(provider.Change, error) bool) {}, func() string { return "" }, nil
}

func (noopProvider) DownloadContent(context.Context, string, time.Duration) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

func TestRunStopsCleanlyOnCancellation(t *testing.T) {
	s, err := store.Open(context.Background(), ":memory:", testLogger(t))
	require.NoError(t, err)

	sc := syncctl.New(s, noopProvider{}, []config.FolderSpec{{FolderID: "root", Depth: -1}}, testLogger(t))
	ce := cachepkg.New(s, noopProvider{}, cachepkg.Config{CacheDir: t.TempDir(), ShowWidth: 1920, ShowHeight: 1080, JPEGQuality: 90}, testLogger(t))

	boundary := display.NewBoundary(1)
	ds := display.New(s, boundary, time.Second, 1920, testLogger(t))

	d := New(s, sc, ce, ds, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = d.Run(ctx, Config{
		SyncInterval:      time.Hour,
		CacheTickInterval: 50 * time.Millisecond,
		DisplayInterval:   50 * time.Millisecond,
	})
	require.NoError(t, err)
}
