// Package store implements the embedded metadata store: photo records,
// cache state, and provider-opaque sync cursors, backed by SQLite. It
// survives process crashes and, on detected corruption, rebuilds itself
// empty and signals that a full rescan is required rather than attempting
// any salvage.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB

// SettingNeedsFullRescan is the setting key the Sync Controller consults
// at startup to decide between a full and an incremental scan.
const SettingNeedsFullRescan = "sync.needsFullRescan"

// SettingCacheMode records which cache storage mode (file or blob) this
// store instance was created under. The two modes may not coexist.
const SettingCacheMode = "cache.mode"

const (
	CacheModeFile = "file"
	CacheModeBlob = "blob"
)

// Store is the embedded metadata store. All writes are serialized through
// writeMu; reads may run concurrently with a writer since SQLite WAL mode
// permits one writer alongside many readers.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	path   string

	writeMu sync.Mutex

	stmts photoStatements
}

type photoStatements struct {
	upsert               *sql.Stmt
	get                  *sql.Stmt
	markTombstonedStale  *sql.Stmt
	markTombstonedByID   *sql.Stmt
	nextDisplayCandidate *sql.Stmt
	prefetchCandidates   *sql.Stmt
	evictionCandidates   *sql.Stmt
	tombstonedCached     *sql.Stmt
	sumCachedBytes       *sql.Stmt
	setCacheFields       *sql.Stmt
	clearCacheFields     *sql.Stmt
	setLastViewed        *sql.Stmt
	resetAllLastViewed   *sql.Stmt
	getSetting           *sql.Stmt
	setSetting           *sql.Stmt
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pending migrations, and prepares all repeated statements. Use ":memory:"
// for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()

		return nil, err
	}

	s := &Store{db: db, logger: logger, path: path}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("store: creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(query string) (*sql.Stmt, error) {
		return s.db.PrepareContext(ctx, query)
	}

	var err error

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmts.upsert, sqlUpsertPhoto},
		{&s.stmts.get, sqlGetPhoto},
		{&s.stmts.markTombstonedStale, sqlMarkTombstonedStale},
		{&s.stmts.markTombstonedByID, sqlMarkTombstonedByID},
		{&s.stmts.nextDisplayCandidate, sqlNextDisplayCandidate},
		{&s.stmts.prefetchCandidates, sqlPrefetchCandidates},
		{&s.stmts.evictionCandidates, sqlEvictionCandidates},
		{&s.stmts.tombstonedCached, sqlTombstonedCached},
		{&s.stmts.sumCachedBytes, sqlSumCachedBytes},
		{&s.stmts.setCacheFields, sqlSetCacheFields},
		{&s.stmts.clearCacheFields, sqlClearCacheFields},
		{&s.stmts.setLastViewed, sqlSetLastViewed},
		{&s.stmts.resetAllLastViewed, sqlResetAllLastViewed},
		{&s.stmts.getSetting, sqlGetSetting},
		{&s.stmts.setSetting, sqlSetSetting},
	}

	for _, st := range stmts {
		*st.dst, err = prep(st.query)
		if err != nil {
			return fmt.Errorf("preparing %q: %w", st.query, err)
		}
	}

	return nil
}
