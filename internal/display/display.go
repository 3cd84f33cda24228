// Package display implements the display scheduler: on each tick it picks
// the next photo to show using a least-recently-shown policy with random
// tie-breaking, loads its bytes, and emits a frame event to an external
// front-end boundary.
package display

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kestrelframe/photosync/internal/store"
)

// FrameEvent is emitted once per successful display tick.
type FrameEvent struct {
	PhotoID   string
	Bytes     []byte
	Filename  string
	CreatedAt time.Time
	WidthHint int
}

// Ack is the front-end's acknowledgement that a previously emitted frame
// finished loading.
type Ack struct {
	PhotoID string
}

// Boundary bundles the channels crossing the front-end interface: frames
// out, load acknowledgements in, and plain-text status messages out. The
// front-end owns the far ends; the scheduler only sends on Frames and
// Status and only receives on Acks. Status sends never block — a slow or
// absent front-end drops status text rather than stalling a tick.
type Boundary struct {
	Frames chan FrameEvent
	Acks   chan Ack
	Status chan string
}

// NewBoundary builds a Boundary whose channels all carry the given buffer.
func NewBoundary(buffer int) *Boundary {
	return &Boundary{
		Frames: make(chan FrameEvent, buffer),
		Acks:   make(chan Ack, buffer),
		Status: make(chan string, buffer),
	}
}

// Scheduler drives the display tick loop, publishing FrameEvents for an
// external front-end to consume.
type Scheduler struct {
	store    *store.Store
	logger   *slog.Logger
	boundary *Boundary

	interval  time.Duration
	widthHint int
}

// New constructs a Scheduler. boundary is owned by the caller; the
// scheduler never closes its channels.
func New(st *store.Store, boundary *Boundary, interval time.Duration, widthHint int, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: st, boundary: boundary, interval: interval, widthHint: widthHint, logger: logger}
}

// Run drives Tick on the configured interval until ctx is cancelled,
// draining front-end acknowledgements between ticks.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ack := <-s.boundary.Acks:
			s.logger.Debug("display: frame acknowledged", slog.String("photo_id", ack.PhotoID))
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick selects and emits the next frame. A tick that finds no cached
// candidate, or whose candidate's file-mode content has gone missing on
// disk, emits nothing and does not block. When the selected candidate
// shows the whole cached set has already been cycled through, every
// lastViewedAt is zeroed first so a fresh cycle begins with a reshuffle.
func (s *Scheduler) Tick(ctx context.Context) {
	photo, err := s.store.NextDisplayCandidate(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}

	if err != nil {
		s.logger.Error("display: selecting next candidate failed", slog.Any("error", err))
		s.notifyStatus("photo selection failed: " + err.Error())

		return
	}

	// The selected candidate is still the right photo to show after a
	// reshuffle: it is the least-recently-shown one, so continuing with it
	// keeps the new cycle from opening on a repeat of the last frame.
	if s.cycleExhausted(photo) {
		if err := s.store.ResetAllLastViewed(ctx); err != nil {
			s.logger.Error("display: reshuffle failed", slog.Any("error", err))
		}
	}

	bytes, ok := s.loadBytes(ctx, photo)
	if !ok {
		return
	}

	event := FrameEvent{
		PhotoID:   photo.PhotoID,
		Bytes:     bytes,
		Filename:  photo.Filename,
		CreatedAt: createdAt(photo),
		WidthHint: s.widthHint,
	}

	select {
	case s.boundary.Frames <- event:
	case <-ctx.Done():
		return
	}

	now := time.Now().UTC()
	go func() {
		if err := s.store.SetLastViewed(context.Background(), photo.PhotoID, now); err != nil {
			s.logger.Error("display: updating last viewed failed",
				slog.String("photo_id", photo.PhotoID), slog.Any("error", err))
		}
	}()
}

// cycleExhausted reports whether the least-recently-shown candidate was
// itself shown within the last half display interval — meaning no unseen
// or stale row remains and the cycle should restart.
func (s *Scheduler) cycleExhausted(photo store.Photo) bool {
	if !photo.LastViewedAt.Valid {
		return false
	}

	threshold := time.Now().Add(-s.interval / 2)

	return photo.LastViewedAt.Time.After(threshold)
}

// loadBytes reads the cached content for photo: blob-mode from the row
// directly, file-mode from disk. A missing file-mode file is tolerated —
// the row's cache fields are cleared so the next cache tick re-prefetches
// it, and this tick emits nothing.
func (s *Scheduler) loadBytes(ctx context.Context, photo store.Photo) ([]byte, bool) {
	if len(photo.CachedData) > 0 {
		return photo.CachedData, true
	}

	if !photo.CachedPath.Valid {
		return nil, false
	}

	data, err := os.ReadFile(photo.CachedPath.String)
	if err != nil {
		if os.IsNotExist(err) {
			if clearErr := s.store.ClearCache(ctx, photo.PhotoID); clearErr != nil {
				s.logger.Error("display: clearing cache for missing file failed",
					slog.String("photo_id", photo.PhotoID), slog.Any("error", clearErr))
			}

			return nil, false
		}

		s.logger.Error("display: reading cached file failed",
			slog.String("photo_id", photo.PhotoID), slog.Any("error", err))
		s.notifyStatus(fmt.Sprintf("could not read cached photo %s", photo.Filename))

		return nil, false
	}

	return data, true
}

// notifyStatus pushes a plain-text status line toward the front-end,
// dropping it if nobody is listening.
func (s *Scheduler) notifyStatus(msg string) {
	select {
	case s.boundary.Status <- msg:
	default:
	}
}

func createdAt(photo store.Photo) time.Time {
	if photo.CreatedAt.Valid {
		return photo.CreatedAt.Time
	}

	return photo.FirstSeenAt
}
