package display

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelframe/photosync/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), ":memory:", testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, s.Close()) })

	return s
}

func seedCachedPhoto(t *testing.T, s *store.Store, id string, data []byte) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertPhoto(ctx, store.Photo{
		PhotoID: id, ProviderID: "fake", ParentFolderID: "root",
		Filename: id + ".jpg", FirstSeenAt: now, LastSeenInScanAt: now,
	}))
	require.NoError(t, s.SetBlobCache(ctx, id, data, "image/jpeg", now))
}

func TestTickEmitsFrameAndUpdatesLastViewed(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	seedCachedPhoto(t, s, "a", []byte("fake-jpeg-bytes"))

	boundary := NewBoundary(1)
	sched := New(s, boundary, time.Minute, 1920, testLogger(t))

	sched.Tick(ctx)

	select {
	case ev := <-boundary.Frames:
		assert.Equal(t, "a", ev.PhotoID)
		assert.Equal(t, []byte("fake-jpeg-bytes"), ev.Bytes)
		assert.Equal(t, 1920, ev.WidthHint)
	default:
		t.Fatal("expected a frame event")
	}

	require.Eventually(t, func() bool {
		p, err := s.GetPhoto(ctx, "a")
		return err == nil && p.LastViewedAt.Valid
	}, time.Second, 10*time.Millisecond)
}

func TestTickNoCandidateDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	boundary := &Boundary{Frames: make(chan FrameEvent), Acks: make(chan Ack), Status: make(chan string)}
	sched := New(s, boundary, time.Minute, 1920, testLogger(t))

	sched.Tick(ctx)
}

func TestNoDuplicatesWithinCycle(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, id := range []string{"a", "b", "c"} {
		seedCachedPhoto(t, s, id, []byte("bytes-"+id))
	}

	boundary := NewBoundary(3)
	sched := New(s, boundary, time.Hour, 1920, testLogger(t))

	seen := map[string]bool{}

	for range 3 {
		sched.Tick(ctx)

		ev := <-boundary.Frames
		require.False(t, seen[ev.PhotoID], "photo %s emitted twice within one cycle", ev.PhotoID)
		seen[ev.PhotoID] = true

		require.Eventually(t, func() bool {
			p, err := s.GetPhoto(ctx, ev.PhotoID)
			return err == nil && p.LastViewedAt.Valid
		}, time.Second, 5*time.Millisecond)
	}

	assert.Len(t, seen, 3)
}

func TestReshuffleAlternatesWithoutImmediateRepeat(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, id := range []string{"a", "b"} {
		seedCachedPhoto(t, s, id, []byte("bytes-"+id))
	}

	boundary := NewBoundary(4)
	sched := New(s, boundary, time.Hour, 1920, testLogger(t))

	var emitted []string

	for range 4 {
		sched.Tick(ctx)

		ev := <-boundary.Frames
		emitted = append(emitted, ev.PhotoID)

		require.Eventually(t, func() bool {
			p, err := s.GetPhoto(ctx, ev.PhotoID)
			return err == nil && p.LastViewedAt.Valid
		}, time.Second, 5*time.Millisecond)
	}

	require.Len(t, emitted, 4)

	for i := 1; i < len(emitted); i++ {
		assert.NotEqual(t, emitted[i-1], emitted[i], "the same photo must not be shown twice in a row across a reshuffle")
	}
}

func TestRunDrainsFrontEndAcks(t *testing.T) {
	s := testStore(t)
	seedCachedPhoto(t, s, "a", []byte("bytes"))

	boundary := NewBoundary(1)
	sched := New(s, boundary, 20*time.Millisecond, 1920, testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	ev := <-boundary.Frames
	boundary.Acks <- Ack{PhotoID: ev.PhotoID}

	<-done
}

func TestMissingFileModeFileClearsCacheWithoutEmitting(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	now := time.Now().UTC()
	require.NoError(t, s.UpsertPhoto(ctx, store.Photo{
		PhotoID: "a", ProviderID: "fake", ParentFolderID: "root",
		Filename: "a.jpg", FirstSeenAt: now, LastSeenInScanAt: now,
	}))
	require.NoError(t, s.SetFileCache(ctx, "a", filepath.Join(t.TempDir(), "missing.jpg"), 1024, now))

	boundary := NewBoundary(1)
	sched := New(s, boundary, time.Minute, 1920, testLogger(t))

	sched.Tick(ctx)

	select {
	case <-boundary.Frames:
		t.Fatal("expected no frame for a missing file")
	default:
	}

	p, err := s.GetPhoto(ctx, "a")
	require.NoError(t, err)
	assert.False(t, p.CachedSizeBytes.Valid)
}
