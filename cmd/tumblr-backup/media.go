package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tumblrbackup/pkg/ui"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Work with the media download queue",
	Long: `Work with media rows in the archive.

Every media item is attempted once. A failed attempt is marked downloaded
with no local path so later runs skip it; use reset-failed to queue those
items again.`,
}

var mediaDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download pending media without contacting the API",
	Args:  cobra.NoArgs,
	RunE:  runMediaDownload,
}

var mediaResetCmd = &cobra.Command{
	Use:   "reset-failed",
	Short: "Queue failed media downloads again",
	Args:  cobra.NoArgs,
	RunE:  runMediaReset,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
	mediaCmd.AddCommand(mediaDownloadCmd)
	mediaCmd.AddCommand(mediaResetCmd)
}

func runMediaDownload(cmd *cobra.Command, args []string) error {
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

	summary, err := a.downloader.DownloadPending(ctx, cfg.Download.Concurrency)
	if werr := a.metrics.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
		a.log.WithError(werr).Warn("Failed to write metrics textfile")
	}
	if err != nil {
		return err
	}

	ui.PrintInfo("Media", fmt.Sprintf("%d attempted, %d downloaded, %d failed",
		summary.Attempted, summary.Succeeded, summary.Failed()))
	return nil
}

func runMediaReset(cmd *cobra.Command, args []string) error {
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

	n, err := a.store.ResetFailedDownloads(ctx)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("%d failed media items queued again", n))
	return nil
}
