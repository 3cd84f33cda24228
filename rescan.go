package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelframe/photosync/internal/config"
	"github.com/kestrelframe/photosync/internal/store"
)

func newRescanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Force a full rescan on the next sync tick",
		Long: `Marks the metadata store so the next sync tick performs a full
recursive scan instead of an incremental one, then signals a running
daemon, if any, to pick it up immediately via SIGHUP.`,
		RunE: runRescan,
	}
}

func runRescan(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	ctx := cmd.Context()

	st, err := store.Open(ctx, config.StoreDBPath(cfg), cc.Logger)
	if err != nil {
		return storeError(err)
	}
	defer st.Close()

	if err := st.SetNeedsFullRescan(ctx, true); err != nil {
		return storeError(err)
	}

	if err := sendSIGHUP(config.PIDFilePath()); err != nil {
		cc.Logger.Warn("rescan: could not signal a running daemon", "error", err)
		fmt.Println("Full rescan scheduled; it takes effect next time the daemon starts or ticks.")

		return nil
	}

	fmt.Println("Full rescan scheduled and the running daemon was signalled.")

	return nil
}
