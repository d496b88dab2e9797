// Package cmd implements the CLI commands for aura.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aura-studio/aura/internal/config"
	"github.com/aura-studio/aura/internal/observability"
	"github.com/aura-studio/aura/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// appConfig is loaded once in the persistent pre-run and shared by
// subcommands.
var appConfig *config.Config

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "aura",
	Short:   "AI-assisted video production job engine",
	Version: version.Short(),
	Long: `aura turns a creative brief into a rendered video through a staged
pipeline: script generation, voice synthesis, visual assets, timeline
composition, encoding, and post-processing.

Jobs run against pluggable providers selected by tier and offline policy,
with per-stage retry, provider fallback, and live progress streaming
over SSE.`,
	// PersistentPreRunE is set in init() to avoid an initialization cycle.
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Set PersistentPreRunE here to avoid an initialization cycle
	// (initialize references rootCmd.PersistentFlags).
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initialize()
	}

	// Global flags.
	// These flags are NOT bound to viper. We check Changed() and only then
	// override config/env values, preserving the priority:
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/aura, $HOME/.aura)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initialize loads configuration and installs the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (AURA_LOGGING_LEVEL, AURA_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initialize() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		cfg.Logging.Level = strings.ToLower(level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		cfg.Logging.Format = strings.ToLower(format)
	}

	// "warning" is an alias for "warn".
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)

	appConfig = cfg
	return nil
}
