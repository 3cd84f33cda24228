package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/store"
	"github.com/kestrelframe/photosync/internal/syncctl"
)

// statusReport is the JSON/text shape printed by `photosync status`.
type statusReport struct {
	Provider        string `json:"provider"`
	CacheMode       string `json:"cache_mode,omitempty"`
	CachedBytes     int64  `json:"cached_bytes"`
	NeedsFullRescan bool   `json:"needs_full_rescan"`
	SyncCursor      string `json:"sync_cursor,omitempty"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and sync status",
		Long:  "Report cache occupancy, rescan state, and the sync cursor from the metadata store, without starting the daemon.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	ctx := cmd.Context()

	st, err := store.Open(ctx, config.StoreDBPath(cfg), cc.Logger)
	if err != nil {
		return storeError(err)
	}
	defer st.Close()

	report, err := buildStatusReport(ctx, st, cfg)
	if err != nil {
		return storeError(err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatusReport(report)

	return nil
}

func buildStatusReport(ctx context.Context, st *store.Store, cfg *config.Config) (statusReport, error) {
	cachedBytes, err := st.SumCachedBytes(ctx)
	if err != nil {
		return statusReport{}, err
	}

	needsFull, err := st.NeedsFullRescan(ctx)
	if err != nil {
		return statusReport{}, err
	}

	cursor, _, err := st.GetSetting(ctx, syncctl.SettingCursor)
	if err != nil {
		return statusReport{}, err
	}

	mode, _, err := st.GetSetting(ctx, store.SettingCacheMode)
	if err != nil {
		return statusReport{}, err
	}

	return statusReport{
		Provider:        cfg.Provider.Name,
		CacheMode:       mode,
		CachedBytes:     cachedBytes,
		NeedsFullRescan: needsFull,
		SyncCursor:      cursor,
	}, nil
}

func printStatusReport(r statusReport) {
	fmt.Printf("provider:          %s\n", r.Provider)

	if r.CacheMode != "" {
		fmt.Printf("cache mode:        %s\n", r.CacheMode)
	}

	fmt.Printf("cached bytes:      %s\n", humanize.Bytes(uint64(r.CachedBytes)))
	fmt.Printf("needs full rescan: %t\n", r.NeedsFullRescan)

	if r.SyncCursor != "" {
		fmt.Printf("sync cursor:       %s\n", r.SyncCursor)
	}
}
