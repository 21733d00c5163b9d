package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tumblrbackup/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive statistics",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}
	printStats(stats)
	if stats.MediaPending > 0 {
		ui.PrintInfo("Media pending", fmt.Sprint(stats.MediaPending))
	}
	return nil
}
