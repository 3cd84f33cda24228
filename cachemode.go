package main

import (
	"context"
	"fmt"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/store"
)

// reconcileCacheMode enforces that blob-mode and file-mode caching never
// coexist against a single store. The first run against a fresh store
// records which mode is active; every later run must match it, since
// switching modes in place would leave half the cached rows unreadable
// by the other mode.
func reconcileCacheMode(ctx context.Context, st *store.Store, cfg *config.Config) error {
	want := store.CacheModeFile
	if cfg.UseBlobStorage {
		want = store.CacheModeBlob
	}

	current, ok, err := st.GetSetting(ctx, store.SettingCacheMode)
	if err != nil {
		return fmt.Errorf("reading cache mode setting: %w", err)
	}

	if !ok {
		return st.SetSetting(ctx, store.SettingCacheMode, want)
	}

	if current != want {
		return fmt.Errorf(
			"configured cache mode %q does not match this store's existing mode %q; "+
				"use_blob_storage cannot change in place, start from a fresh store instead",
			want, current)
	}

	return nil
}
