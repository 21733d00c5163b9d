package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tumblrbackup/pkg/auth"
	"tumblrbackup/pkg/config"
	"tumblrbackup/pkg/ui"
)

const defaultConfigPath = ".tumblr-backup.yaml"

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage tumblr-backup configuration.

Configuration is resolved in this order, highest priority first:
  - Command line flags
  - Environment variables (TUMBLR_*, TUMBLR_BACKUP_*), including .env
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	Long: `Write the default configuration as YAML to ` + defaultConfigPath + `,
or to the path given with --config.

Consumer credentials are best kept in .env rather than in this file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	Long:  `Show the configuration after merging all sources. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file %s already exists; use --force to overwrite", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Println("\nNext steps:")
	ui.Println("1. Put TUMBLR_CONSUMER_KEY and TUMBLR_CONSUMER_SECRET in .env")
	ui.Println("2. Run 'tumblr-backup auth login'")
	ui.Println("3. Run 'tumblr-backup'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	display := *cfg
	if display.Tumblr.ConsumerKey != "" {
		display.Tumblr.ConsumerKey = auth.Mask(display.Tumblr.ConsumerKey)
	}
	if display.Tumblr.ConsumerSecret != "" {
		display.Tumblr.ConsumerSecret = auth.Mask(display.Tumblr.ConsumerSecret)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	ui.Println()
	ui.Println(string(data))
	ui.PrintInfo("Configuration file", configSource())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ui.PrintInfo("Validating configuration", configSource())

	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return err
	}

	if cfg.Tumblr.ConsumerKey == "" || cfg.Tumblr.ConsumerSecret == "" {
		ui.PrintWarning("TUMBLR_CONSUMER_KEY and TUMBLR_CONSUMER_SECRET are not set; backups will fail to authenticate")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.Println("\nConfiguration summary:")
	ui.PrintInfo("  Database", cfg.Storage.DatabasePath)
	ui.PrintInfo("  Media directory", cfg.Storage.MediaDir)
	ui.PrintInfo("  Token store", cfg.Auth.Store)
	ui.PrintInfo("  Concurrency", fmt.Sprint(cfg.Download.Concurrency))
	ui.PrintInfo("  Page size", fmt.Sprint(cfg.Pagination.PageSize))
	ui.PrintInfo("  Log level", cfg.Logging.Level)
	return nil
}

func configSource() string {
	if configFile != "" {
		return configFile
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return "(none, using defaults)"
}
