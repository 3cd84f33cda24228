package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	sqlGetSetting = `SELECT value FROM setting WHERE key = ?`

	sqlSetSetting = `INSERT INTO setting (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
)

// GetSetting returns the value for key, and whether it was present.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string

	err := s.stmts.getSetting.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("store: get setting %q: %w", key, err)
	}

	return value, true, nil
}

// SetSetting upserts a single key/value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmts.setSetting.ExecContext(ctx, key, value)
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}

	return nil
}

// NeedsFullRescan reports whether sync.needsFullRescan is set, or true if
// that setting has never been written (first run).
func (s *Store) NeedsFullRescan(ctx context.Context) (bool, error) {
	value, ok, err := s.GetSetting(ctx, SettingNeedsFullRescan)
	if err != nil {
		return false, err
	}

	if !ok {
		return true, nil
	}

	return value == "true", nil
}

// SetNeedsFullRescan records whether the next sync tick should perform a
// full scan rather than an incremental one.
func (s *Store) SetNeedsFullRescan(ctx context.Context, needed bool) error {
	value := "false"
	if needed {
		value = "true"
	}

	return s.SetSetting(ctx, SettingNeedsFullRescan, value)
}
