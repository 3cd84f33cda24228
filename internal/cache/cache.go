// Package cache implements the prefetch cache: a tick-driven engine that
// keeps a bounded pool of normalized images on hand for the Display
// Scheduler, evicting the least-recently-shown entries when the store
// grows past its configured cap and cooling off when the provider is
// unreachable.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kestrelframe/photosync/internal/provider"
	"github.com/kestrelframe/photosync/internal/store"
)

// Tuning constants from the cache engine's contract.
const (
	CacheHeadroom     = 10 << 20 // 10 MiB left free after an eviction pass
	HardMaxRawBytes   = 50 << 20 // 50 MiB per raw download before normalization
	MinOutputBytes    = 1 << 10  // 1 KiB minimum normalized output
	DownloadTimeout   = 30 * time.Second
	CoolingDuration   = 60 * time.Second
	FailureThreshold  = 3
	DefaultPrefetchN  = 5
	DefaultMaxCacheMB = 200
)

// State is one of the tick state machine's four states.
type State int32

const (
	StateIdle State = iota
	StateTicking
	StateCooling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	case StateCooling:
		return "cooling"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config configures an Engine.
type Config struct {
	MaxCacheBytes     int64
	PrefetchBatchSize int
	CacheDir          string
	UseBlobStorage    bool
	ShowWidth         int
	ShowHeight        int
	JPEGQuality       int
}

// Engine is the tick-driven prefetch cache. Safe for concurrent use; Tick
// is internally single-flighted so a timer firing while a tick is still
// running is simply dropped.
type Engine struct {
	store    *store.Store
	provider provider.Provider
	cfg      Config
	logger   *slog.Logger
	norm     *normalizer

	state                  atomic.Int32
	consecutiveFailedTicks atomic.Int32
	coolingUntil           atomic.Int64 // unix nanos; zero means not cooling
}

// New constructs an Engine. A non-positive PrefetchBatchSize or
// MaxCacheBytes falls back to DefaultPrefetchN or DefaultMaxCacheMB.
func New(st *store.Store, p provider.Provider, cfg Config, logger *slog.Logger) *Engine {
	if cfg.PrefetchBatchSize <= 0 {
		cfg.PrefetchBatchSize = DefaultPrefetchN
	}

	if cfg.MaxCacheBytes <= 0 {
		cfg.MaxCacheBytes = DefaultMaxCacheMB << 20
	}

	return &Engine{
		store:    st,
		provider: p,
		cfg:      cfg,
		logger:   logger,
		norm:     newNormalizer(cfg.ShowWidth, cfg.ShowHeight, cfg.JPEGQuality),
	}
}

// State reports the engine's current tick state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Run drives Tick on the given interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.state.Store(int32(StateStopped))

			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick runs one cache cycle: eviction, then (unless cooling) bounded
// parallel prefetch followed by another eviction pass. A tick already in flight causes this call to return
// immediately without doing anything — the single-flight guard the
// contract requires. A tick arriving during an unexpired cooling period
// still evicts (freeing space needs no provider I/O) but downloads
// nothing; once the cooling period lapses, the failure counter resets and
// normal ticking resumes.
func (e *Engine) Tick(ctx context.Context) {
	switch {
	case e.state.CompareAndSwap(int32(StateCooling), int32(StateTicking)):
		if !e.coolingExpired() {
			if err := e.evict(ctx); err != nil {
				e.logger.Error("cache: eviction pass failed", slog.Any("error", err))
			}

			e.state.Store(int32(StateCooling))

			return
		}

		e.consecutiveFailedTicks.Store(0)
		e.coolingUntil.Store(0)
	case e.state.CompareAndSwap(int32(StateIdle), int32(StateTicking)):
	default:
		return
	}

	failed := e.runTick(ctx)

	if failed {
		n := e.consecutiveFailedTicks.Add(1)
		if n >= FailureThreshold {
			e.coolingUntil.Store(time.Now().Add(CoolingDuration).UnixNano())
			e.state.Store(int32(StateCooling))

			return
		}
	} else {
		e.consecutiveFailedTicks.Store(0)
	}

	e.state.Store(int32(StateIdle))
}

func (e *Engine) coolingExpired() bool {
	until := e.coolingUntil.Load()

	return until != 0 && time.Now().UnixNano() >= until
}

// runTick performs eviction, then prefetch, then a second eviction pass
// when any download was attempted, returning true iff at least one
// download was attempted and every attempt failed.
func (e *Engine) runTick(ctx context.Context) bool {
	if err := e.evict(ctx); err != nil {
		e.logger.Error("cache: eviction pass failed", slog.Any("error", err))
	}

	candidates, err := e.store.PrefetchCandidates(ctx, e.cfg.PrefetchBatchSize)
	if err != nil {
		e.logger.Error("cache: fetching prefetch candidates failed", slog.Any("error", err))

		return false
	}

	if len(candidates) == 0 {
		return false
	}

	results := e.prefetchAll(ctx, candidates)

	// New downloads can push the total past the cap; shed again so the
	// tick ends within it.
	if err := e.evict(ctx); err != nil {
		e.logger.Error("cache: eviction pass failed", slog.Any("error", err))
	}

	attempted, succeeded := 0, 0

	for _, r := range results {
		attempted++

		if r.outcome == outcomeSuccess {
			succeeded++
		}
	}

	return attempted > 0 && succeeded == 0
}
