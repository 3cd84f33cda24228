package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Photo is one row of the photo table: identity, sync bookkeeping, and
// cache state in a single record. Sync fields are mutated exclusively by
// the Sync Controller; cache fields exclusively by the Cache Engine;
// display fields exclusively by the Display Scheduler.
type Photo struct {
	PhotoID        string
	ProviderID     string
	ParentFolderID string
	Filename       string
	CreatedAt      sql.NullTime
	Width          sql.NullInt64
	Height         sql.NullInt64

	FirstSeenAt      time.Time
	LastSeenInScanAt time.Time
	Tombstoned       bool
	LastViewedAt     sql.NullTime

	CachedPath      sql.NullString
	CachedData      []byte
	CachedMime      sql.NullString
	CachedSizeBytes sql.NullInt64
	CachedAt        sql.NullTime
}

const photoColumns = `photo_id, provider_id, parent_folder_id, filename, created_at,
	width, height, first_seen_at, last_seen_in_scan_at, tombstoned, last_viewed_at,
	cached_path, cached_data, cached_mime, cached_size_bytes, cached_at`

const (
	sqlUpsertPhoto = `INSERT INTO photo (` + photoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(photo_id) DO UPDATE SET
			provider_id          = excluded.provider_id,
			parent_folder_id     = excluded.parent_folder_id,
			filename             = excluded.filename,
			created_at           = excluded.created_at,
			width                = excluded.width,
			height               = excluded.height,
			last_seen_in_scan_at = excluded.last_seen_in_scan_at,
			tombstoned           = 0`

	sqlGetPhoto = `SELECT ` + photoColumns + ` FROM photo WHERE photo_id = ?`

	sqlMarkTombstonedStale = `UPDATE photo
		SET tombstoned = 1
		WHERE provider_id = ? AND last_seen_in_scan_at < ? AND tombstoned = 0`

	sqlMarkTombstonedByID = `UPDATE photo SET tombstoned = 1 WHERE photo_id = ?`

	sqlNextDisplayCandidate = `SELECT ` + photoColumns + ` FROM photo
		WHERE tombstoned = 0 AND cached_size_bytes IS NOT NULL
		ORDER BY last_viewed_at IS NOT NULL, last_viewed_at ASC, RANDOM()
		LIMIT 1`

	sqlPrefetchCandidates = `SELECT ` + photoColumns + ` FROM photo
		WHERE tombstoned = 0 AND cached_size_bytes IS NULL
		ORDER BY first_seen_at ASC
		LIMIT ?`

	sqlEvictionCandidates = `SELECT ` + photoColumns + ` FROM photo
		WHERE cached_size_bytes IS NOT NULL
		ORDER BY last_viewed_at IS NOT NULL, last_viewed_at ASC
		LIMIT ?`

	sqlTombstonedCached = `SELECT ` + photoColumns + ` FROM photo
		WHERE tombstoned = 1 AND cached_size_bytes IS NOT NULL
		LIMIT ?`

	sqlSumCachedBytes = `SELECT COALESCE(SUM(cached_size_bytes), 0) FROM photo
		WHERE cached_size_bytes IS NOT NULL`

	sqlSetCacheFields = `UPDATE photo
		SET cached_path = ?, cached_data = ?, cached_mime = ?, cached_size_bytes = ?, cached_at = ?
		WHERE photo_id = ?`

	sqlClearCacheFields = `UPDATE photo
		SET cached_path = NULL, cached_data = NULL, cached_mime = NULL, cached_size_bytes = NULL, cached_at = NULL
		WHERE photo_id = ?`

	sqlSetLastViewed = `UPDATE photo SET last_viewed_at = ? WHERE photo_id = ?`

	sqlResetAllLastViewed = `UPDATE photo SET last_viewed_at = NULL
		WHERE tombstoned = 0 AND cached_size_bytes IS NOT NULL`
)

// Timestamps live in the database as epoch milliseconds; the conversion
// helpers below keep every read and write on that representation.

func millisOf(t sql.NullTime) sql.NullInt64 {
	if !t.Valid {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.Time.UnixMilli(), Valid: true}
}

func timeOfMillis(ms sql.NullInt64) sql.NullTime {
	if !ms.Valid {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: time.UnixMilli(ms.Int64).UTC(), Valid: true}
}

func scanPhoto(row interface{ Scan(...any) error }) (Photo, error) {
	var p Photo

	var (
		firstSeenAt, lastSeenInScanAt   int64
		createdAt, lastViewed, cachedAt sql.NullInt64
		tombstoned                      int
	)

	err := row.Scan(
		&p.PhotoID, &p.ProviderID, &p.ParentFolderID, &p.Filename, &createdAt,
		&p.Width, &p.Height, &firstSeenAt, &lastSeenInScanAt, &tombstoned, &lastViewed,
		&p.CachedPath, &p.CachedData, &p.CachedMime, &p.CachedSizeBytes, &cachedAt,
	)
	if err != nil {
		return Photo{}, err
	}

	p.CreatedAt = timeOfMillis(createdAt)
	p.LastViewedAt = timeOfMillis(lastViewed)
	p.CachedAt = timeOfMillis(cachedAt)
	p.FirstSeenAt = time.UnixMilli(firstSeenAt).UTC()
	p.LastSeenInScanAt = time.UnixMilli(lastSeenInScanAt).UTC()
	p.Tombstoned = tombstoned != 0

	return p, nil
}

// UpsertPhoto inserts a new photo row or refreshes an existing one's
// provider-observed fields, un-tombstoning it if it had been marked
// deleted and has reappeared. Cache and display fields are untouched.
func (s *Store) UpsertPhoto(ctx context.Context, p Photo) error {
	return s.UpsertPhotos(ctx, []Photo{p})
}

// UpsertPhotos batch-upserts photo records within a single transaction, as
// required for a page of scan results.
func (s *Store) UpsertPhotos(ctx context.Context, photos []Photo) error {
	if len(photos) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert tx: %w", err)
	}

	stmt := tx.StmtContext(ctx, s.stmts.upsert)

	for _, p := range photos {
		now := p.FirstSeenAt
		if now.IsZero() {
			now = p.LastSeenInScanAt
		}

		_, err = stmt.ExecContext(ctx,
			p.PhotoID, p.ProviderID, p.ParentFolderID, p.Filename, millisOf(p.CreatedAt),
			p.Width, p.Height, now.UnixMilli(), p.LastSeenInScanAt.UnixMilli(), 0, nil,
			nil, nil, nil, nil, nil,
		)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("store: upsert photo %s: %w", p.PhotoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert tx: %w", err)
	}

	return nil
}

// GetPhoto retrieves a single photo by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetPhoto(ctx context.Context, photoID string) (Photo, error) {
	row := s.stmts.get.QueryRowContext(ctx, photoID)

	return scanPhoto(row)
}

// MarkTombstonedStale tombstones every row of the given provider whose
// lastSeenInScanAt predates scanStart — the "disappeared during a full
// scan" case.
func (s *Store) MarkTombstonedStale(ctx context.Context, providerID string, scanStart time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.stmts.markTombstonedStale.ExecContext(ctx, providerID, scanStart.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: mark stale tombstoned: %w", err)
	}

	return res.RowsAffected()
}

// Tombstone marks a single photo deleted, e.g. in response to a change
// event reporting deletion.
func (s *Store) Tombstone(ctx context.Context, photoID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.markTombstonedByID.ExecContext(ctx, photoID)
	if err != nil {
		return fmt.Errorf("store: tombstone %s: %w", photoID, err)
	}

	return nil
}

// NextDisplayCandidate returns the next photo the Display Scheduler should
// show: the least-recently-shown cached, non-tombstoned photo, with
// random tie-breaking among rows sharing a lastViewedAt.
func (s *Store) NextDisplayCandidate(ctx context.Context) (Photo, error) {
	return scanPhoto(s.stmts.nextDisplayCandidate.QueryRowContext(ctx))
}

// PrefetchCandidates returns up to limit photos not yet cached, oldest
// first-seen first.
func (s *Store) PrefetchCandidates(ctx context.Context, limit int) ([]Photo, error) {
	rows, err := s.stmts.prefetchCandidates.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: prefetch candidates: %w", err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

// EvictionCandidates returns up to limit cached photos, least-recently-shown
// first, for the Cache Engine's eviction pass.
func (s *Store) EvictionCandidates(ctx context.Context, limit int) ([]Photo, error) {
	rows, err := s.stmts.evictionCandidates.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: eviction candidates: %w", err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

// TombstonedCachedPhotos returns up to limit tombstoned photos that still
// hold a cache resource, so the Cache Engine can release them on its next
// eviction pass.
func (s *Store) TombstonedCachedPhotos(ctx context.Context, limit int) ([]Photo, error) {
	rows, err := s.stmts.tombstonedCached.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: tombstoned cached photos: %w", err)
	}
	defer rows.Close()

	return scanPhotoRows(rows)
}

func scanPhotoRows(rows *sql.Rows) ([]Photo, error) {
	var photos []Photo

	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning photo row: %w", err)
		}

		photos = append(photos, p)
	}

	return photos, rows.Err()
}

// SumCachedBytes returns the total cached size across all cached photos.
func (s *Store) SumCachedBytes(ctx context.Context) (int64, error) {
	var total int64

	err := s.stmts.sumCachedBytes.QueryRowContext(ctx).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: sum cached bytes: %w", err)
	}

	return total, nil
}

// SetFileCache records a file-mode cache resource for photoID.
func (s *Store) SetFileCache(ctx context.Context, photoID, path string, sizeBytes int64, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.setCacheFields.ExecContext(ctx, path, nil, nil, sizeBytes, at.UnixMilli(), photoID)
	if err != nil {
		return fmt.Errorf("store: set file cache for %s: %w", photoID, err)
	}

	return nil
}

// SetBlobCache records a blob-mode cache resource for photoID.
func (s *Store) SetBlobCache(ctx context.Context, photoID string, data []byte, mime string, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.setCacheFields.ExecContext(ctx, nil, data, mime, int64(len(data)), at.UnixMilli(), photoID)
	if err != nil {
		return fmt.Errorf("store: set blob cache for %s: %w", photoID, err)
	}

	return nil
}

// ClearCache releases photoID's cache columns, e.g. as step (b) of an
// eviction or after the physical resource has been removed.
func (s *Store) ClearCache(ctx context.Context, photoID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.clearCacheFields.ExecContext(ctx, photoID)
	if err != nil {
		return fmt.Errorf("store: clear cache for %s: %w", photoID, err)
	}

	return nil
}

// SetLastViewed stamps a photo's lastViewedAt, fire-and-forget from the
// Display Scheduler's perspective.
func (s *Store) SetLastViewed(ctx context.Context, photoID string, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.setLastViewed.ExecContext(ctx, at.UnixMilli(), photoID)
	if err != nil {
		return fmt.Errorf("store: set last viewed for %s: %w", photoID, err)
	}

	return nil
}

// ResetAllLastViewed zeroes lastViewedAt for every cached, non-tombstoned
// photo — the reshuffle the Display Scheduler triggers once the unseen
// set has drained.
func (s *Store) ResetAllLastViewed(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.resetAllLastViewed.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: reset last viewed: %w", err)
	}

	return nil
}
