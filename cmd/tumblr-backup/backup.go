package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tumblrbackup/internal/downloader"
	"tumblrbackup/pkg/auth"
	"tumblrbackup/pkg/backup"
	"tumblrbackup/pkg/config"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/media"
	"tumblrbackup/pkg/metrics"
	"tumblrbackup/pkg/ratelimit"
	"tumblrbackup/pkg/store"
	"tumblrbackup/pkg/ui"
)

var (
	noPrompt bool
	notify   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up all blogs and download their media",
	Long: `Authenticate, walk every blog on the account page by page, store new posts
and then download all pending media.

The process exits non-zero only when authentication fails. Errors in a
single blog or a single media item are logged and the run continues.`,
	Example: `  # Full run with defaults
  tumblr-backup backup

  # More parallel downloads, debug logging
  tumblr-backup backup --concurrency 10 --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	for _, c := range []*cobra.Command{rootCmd, backupCmd} {
		c.Flags().BoolVar(&noPrompt, "no-prompt", false, "fail instead of asking for tokens when none are stored")
		c.Flags().BoolVar(&notify, "notify", false, "show a desktop notification when the run ends")
	}
}

// archive bundles the components shared by the backup and media commands
type archive struct {
	cfg        *config.Config
	store      *store.Store
	metrics    *metrics.Metrics
	downloader *downloader.Downloader
	log        logger.Logger
}

func openArchive(ctx context.Context, cfg *config.Config) (*archive, error) {
	log := logger.GetLogger()
	m := metrics.New()

	st, err := store.Open(ctx, cfg.Storage.DatabasePath, store.Options{
		TagCacheSize: cfg.Storage.TagCacheSize,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	var limiter ratelimit.Limiter
	if tb := ratelimit.PerMinute(cfg.Download.RequestsPerMinute); tb != nil {
		limiter = tb
	}
	fetcher := media.NewFetcher(cfg.Storage.MediaDir, media.Options{
		Timeout:   cfg.Download.Timeout,
		ChunkSize: cfg.Download.ChunkSize,
		Limiter:   limiter,
		Logger:    log,
		Metrics:   m,
	})

	return &archive{
		cfg:        cfg,
		store:      st,
		metrics:    m,
		downloader: downloader.New(st, fetcher, log, m),
		log:        log,
	}, nil
}

func (a *archive) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close archive database")
	}
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tokens, err := auth.NewManager(&cfg.Auth)
	if err != nil {
		return err
	}

	a, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := backup.Dependencies{
		Config:     cfg,
		Tokens:     tokens,
		NewClient:  backup.TumblrClientFactory(cfg, a.log, a.metrics),
		Store:      a.store,
		Downloader: a.downloader,
		Logger:     a.log,
		Metrics:    a.metrics,
	}
	if !noPrompt && term.IsTerminal(int(os.Stdin.Fd())) {
		deps.Prompter = ui.NewPrompter()
	}

	orchestrator, err := backup.NewOrchestrator(deps)
	if err != nil {
		return err
	}

	ui.PrintBanner()
	report, runErr := orchestrator.Run(ctx)
	printReport(report)

	notifier := ui.NewNotifier(notify)
	if runErr != nil {
		notifier.SendError("Backup failed", runErr.Error())
		return fmt.Errorf("backup failed: %w", runErr)
	}
	notifier.SendSuccess("Backup complete", fmt.Sprintf("%d new posts, %d media downloaded",
		report.NewPosts, report.Media.Succeeded))

	if stats, err := a.store.Stats(ctx); err == nil {
		printStats(stats)
	}
	return nil
}

func printReport(r *backup.Report) {
	if r == nil {
		return
	}
	ui.Println()
	if r.User != "" {
		ui.PrintInfo("Account", r.User)
	}
	for _, b := range r.Blogs {
		ui.PrintInfo("Blog "+b.Blog, fmt.Sprintf("%d posts, %d new", b.Total, b.New))
	}
	ui.PrintInfo("Posts", fmt.Sprintf("%d seen, %d new", r.TotalPosts, r.NewPosts))
	if r.Media.Attempted > 0 {
		ui.PrintInfo("Media", fmt.Sprintf("%d downloaded, %d failed", r.Media.Succeeded, r.Media.Failed()))
	}

	failed := make([]string, 0, len(r.FailedBlogs))
	for blog := range r.FailedBlogs {
		failed = append(failed, blog)
	}
	sort.Strings(failed)
	for _, blog := range failed {
		ui.PrintWarning("Blog "+blog+" incomplete", r.FailedBlogs[blog])
	}

	ui.PrintInfo("Finished", fmt.Sprintf("%s in %s", r.State, ui.FormatDuration(r.Duration)))
}

func printStats(s store.Stats) {
	ui.PrintInfo("Archive", fmt.Sprintf("%d posts across %d blogs, %d tags", s.Posts, s.Blogs, s.Tags))
	ui.PrintInfo("Media on disk", ui.FormatCount(s.MediaDownloaded, s.Media))
	if s.MediaFailed > 0 {
		ui.PrintWarning(fmt.Sprintf("%d media items failed; run 'tumblr-backup media reset-failed' to retry them", s.MediaFailed))
	}
}
