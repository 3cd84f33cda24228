package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func makeTestPhoto(id, providerID string, seenAt time.Time) Photo {
	return Photo{
		PhotoID:          id,
		ProviderID:       providerID,
		ParentFolderID:   "root",
		Filename:         id + ".jpg",
		FirstSeenAt:      seenAt,
		LastSeenInScanAt: seenAt,
	}
}

func TestOpenAppliesSchema(t *testing.T) {
	s := newTestStore(t)

	var name string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'photo'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "photo", name)
}

func TestUpsertAndGetPhoto(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))

	got, err := s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.PhotoID)
	assert.Equal(t, "drivea", got.ProviderID)
	assert.False(t, got.Tombstoned)
	assert.False(t, got.CachedSizeBytes.Valid)
}

func TestUpsertRevivesTombstone(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))
	require.NoError(t, s.Tombstone(ctx, "a"))

	got, err := s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Tombstoned)

	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now.Add(time.Hour))))

	got, err = s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.Tombstoned)
}

func TestMarkTombstonedStale(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	scanStart := time.Now().UTC()
	before := scanStart.Add(-time.Hour)
	after := scanStart.Add(time.Hour)

	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("stale", "drivea", before)))
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("fresh", "drivea", after)))

	n, err := s.MarkTombstonedStale(ctx, "drivea", scanStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	stale, err := s.GetPhoto(ctx, "stale")
	require.NoError(t, err)
	assert.True(t, stale.Tombstoned)

	fresh, err := s.GetPhoto(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, fresh.Tombstoned)
}

func TestPrefetchAndDisplayCandidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("b", "drivea", now.Add(time.Second))))

	candidates, err := s.PrefetchCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "a", candidates[0].PhotoID)

	_, err = s.NextDisplayCandidate(ctx)
	require.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, s.SetFileCache(ctx, "a", "/cache/a.jpg", 1024, now))

	candidate, err := s.NextDisplayCandidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", candidate.PhotoID)

	total, err := s.SumCachedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), total)
}

func TestEvictionClearsCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))
	require.NoError(t, s.SetFileCache(ctx, "a", "/cache/a.jpg", 1024, now))

	candidates, err := s.EvictionCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	require.NoError(t, s.ClearCache(ctx, "a"))

	total, err := s.SumCachedBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestTombstonedCachedPhotos(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("b", "drivea", now)))
	require.NoError(t, s.SetFileCache(ctx, "a", "/cache/a.jpg", 1024, now))
	require.NoError(t, s.SetFileCache(ctx, "b", "/cache/b.jpg", 1024, now))

	photos, err := s.TombstonedCachedPhotos(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, photos)

	require.NoError(t, s.Tombstone(ctx, "b"))

	photos, err = s.TombstonedCachedPhotos(ctx, 10)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "b", photos[0].PhotoID)
}

func TestTimestampsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	captured := time.Date(2023, 6, 14, 9, 30, 0, 0, time.UTC)
	viewed := time.Now().UTC().Truncate(time.Millisecond)

	p := makeTestPhoto("a", "drivea", viewed)
	p.CreatedAt = sql.NullTime{Time: captured, Valid: true}

	require.NoError(t, s.UpsertPhoto(ctx, p))
	require.NoError(t, s.SetFileCache(ctx, "a", "/cache/a.jpg", 1024, viewed))
	require.NoError(t, s.SetLastViewed(ctx, "a", viewed))

	got, err := s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Valid)
	assert.True(t, got.CreatedAt.Time.Equal(captured))
	require.True(t, got.LastViewedAt.Valid)
	assert.True(t, got.LastViewedAt.Time.Equal(viewed))
	require.True(t, got.CachedAt.Valid)
	assert.True(t, got.CachedAt.Time.Equal(viewed))
}

func TestResetAllLastViewed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertPhoto(ctx, makeTestPhoto("a", "drivea", now)))
	require.NoError(t, s.SetFileCache(ctx, "a", "/cache/a.jpg", 1024, now))
	require.NoError(t, s.SetLastViewed(ctx, "a", now))

	got, err := s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.LastViewedAt.Valid)

	require.NoError(t, s.ResetAllLastViewed(ctx))

	got, err = s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.LastViewedAt.Valid)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	needsRescan, err := s.NeedsFullRescan(ctx)
	require.NoError(t, err)
	assert.True(t, needsRescan, "no setting yet means a full rescan is owed")

	require.NoError(t, s.SetNeedsFullRescan(ctx, false))

	needsRescan, err = s.NeedsFullRescan(ctx)
	require.NoError(t, err)
	assert.False(t, needsRescan)
}

func TestOpenOrRebuildFreshDatabase(t *testing.T) {
	ctx := context.Background()

	s, err := OpenOrRebuild(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	defer s.Close()

	needsRescan, err := s.NeedsFullRescan(ctx)
	require.NoError(t, err)
	assert.True(t, needsRescan)
}
