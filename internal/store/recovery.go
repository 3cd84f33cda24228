package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// integrityCheckTimeout caps how long the startup integrity check may run;
// a check that cannot finish in time is treated the same as a failed one.
const integrityCheckTimeout = 5 * time.Second

// OpenOrRebuild opens the store at path, running a quick integrity check
// first. If the check fails, the database file (and any WAL/SHM
// siblings) is deleted and a fresh, empty store is created in its place,
// with sync.needsFullRescan set so the Sync Controller knows to start
// over. This is deliberately the entire recovery strategy: no backup, no
// salvage from the cache directory.
func OpenOrRebuild(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err == nil {
			if corrupt := checkIntegrity(ctx, path); corrupt {
				logger.Warn("metadata store failed integrity check, rebuilding empty", slog.String("path", path))

				if err := removeStoreFiles(path); err != nil {
					return nil, fmt.Errorf("store: removing corrupt database: %w", err)
				}
			}
		}
	}

	s, err := Open(ctx, path, logger)
	if err != nil {
		return nil, err
	}

	_, hasSetting, err := s.GetSetting(ctx, SettingNeedsFullRescan)
	if err != nil {
		s.Close()

		return nil, err
	}

	if !hasSetting {
		if err := s.SetNeedsFullRescan(ctx, true); err != nil {
			s.Close()

			return nil, err
		}
	}

	return s, nil
}

// checkIntegrity runs PRAGMA integrity_check against a short-lived
// connection. Any error opening or querying the database counts as
// corrupt, as does blowing the time ceiling.
func checkIntegrity(ctx context.Context, path string) bool {
	ctx, cancel := context.WithTimeout(ctx, integrityCheckTimeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return true
	}
	defer db.Close()

	var result string

	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return true
	}

	return result != "ok"
}

func removeStoreFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	return nil
}
