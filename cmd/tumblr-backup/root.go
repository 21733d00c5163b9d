package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"tumblrbackup/pkg/config"
	"tumblrbackup/pkg/logger"
	"tumblrbackup/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile      string
	dbPath          string
	mediaDir        string
	tokenFile       string
	tokenStore      string
	concurrency     int
	logLevel        string
	logFile         string
	metricsTextfile string
	noColor         bool
)

// rootCmd runs a full backup when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "tumblr-backup",
	Short: "Archive your Tumblr blogs into a local SQLite database",
	Long: `tumblr-backup copies every post of every blog on your Tumblr account into
a local SQLite database and downloads the photos, videos and audio they
reference into a media directory.

Runs are incremental: posts already in the archive are skipped and media
that was already attempted is not fetched again.

Setup:
  1. Register an application at https://www.tumblr.com/oauth/apps
  2. Put TUMBLR_CONSUMER_KEY and TUMBLR_CONSUMER_SECRET in .env
  3. Run 'tumblr-backup auth login'
  4. Run 'tumblr-backup'`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetNoColor(noColor)
	},
	RunE: runBackup,
}

// Execute runs the command tree and returns the process exit code
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError("Error", err)
		return 1
	}
	return 0
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default is ./.tumblr-backup.yaml or $HOME/.tumblr-backup.yaml)")
	pf.StringVar(&dbPath, "db", "", "SQLite archive path")
	pf.StringVar(&mediaDir, "media-dir", "", "directory for downloaded media")
	pf.StringVar(&tokenFile, "token-file", "", "OAuth token file")
	pf.StringVar(&tokenStore, "token-store", "", "token store: file, keyring or encrypted")
	pf.IntVar(&concurrency, "concurrency", 0, fmt.Sprintf("parallel media downloads (1-%d)", config.MaxConcurrency))
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "log file; empty string disables file logging")
	pf.StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.SetVersionTemplate(`tumblr-backup {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// flagOverrides collects only the flags the user actually set
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = value
		}
	}
	set("db", dbPath)
	set("media-dir", mediaDir)
	set("token-file", tokenFile)
	set("token-store", tokenStore)
	set("concurrency", concurrency)
	set("log-level", logLevel)
	set("log-file", logFile)
	set("metrics-textfile", metricsTextfile)
	return flags
}

// loadConfig resolves configuration and initialises the global logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	return cfg, nil
}
