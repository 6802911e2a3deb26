package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/ccquota/internal/browser"
	"github.com/theirongolddev/ccquota/internal/claudeai"
	"github.com/theirongolddev/ccquota/internal/config"
	"github.com/theirongolddev/ccquota/internal/logging"
	"github.com/theirongolddev/ccquota/internal/pipeline"
	"github.com/theirongolddev/ccquota/internal/resettime"
	"github.com/theirongolddev/ccquota/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagConfig      string
	flagVerbose     bool
	flagQuiet       bool
	flagSince       string
	flagNoSubagents bool
	flagDataDir     string
)

var rootCmd = &cobra.Command{
	Use:          "ccquota",
	Short:        "Claude usage quota CLI",
	Long:         "Read your claude.ai plan usage through a browser session and total local Claude Code tokens.",
	SilenceUsage: true,
	RunE:         runUsage,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	rootCmd.PersistentFlags().StringVarP(&flagSince, "since", "s", "", "Token window, e.g. 5h or 7d (default from config, empty means all)")
	rootCmd.PersistentFlags().BoolVar(&flagNoSubagents, "no-subagents", false, "Exclude subagent sessions")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Extra Claude data directory to search first")
}

// loadConfig reads --config or the default path.
func loadConfig() (config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load()
}

func newLogger(cfg config.Config) *zap.Logger {
	return logging.New(logging.Options{
		Verbose: flagVerbose || cfg.General.Verbose,
		File:    cfg.General.LogFile,
	})
}

// browserOptions maps config onto controller options.
func browserOptions(cfg config.Config) browser.Options {
	opts := browser.DefaultOptions()
	opts.DebugPort = cfg.DebugPort()
	opts.ProfileDir = cfg.ProfileDir()
	opts.Bin = cfg.Browser.Bin
	opts.Headless = cfg.Browser.Headless
	opts.UsageURL = cfg.Remote.UsageURL
	if len(cfg.Remote.AuthMarkers) > 0 {
		opts.AuthMarkers = cfg.Remote.AuthMarkers
	}
	if d := cfg.Remote.LoginTimeout.Duration; d > 0 {
		opts.LoginTimeout = d
	}
	if d := cfg.Remote.PageTimeout.Duration; d > 0 {
		opts.PageTimeout = d
	}
	return opts
}

// loginHooks prints a prompt when the user has to log in by hand.
func loginHooks(cfg config.Config) browser.Hooks {
	return browser.Hooks{
		OnLoginNeeded: func(url string) {
			fmt.Fprintf(os.Stderr, "  Log in to claude.ai in the browser window (waiting up to %s)\n", cfg.Remote.LoginTimeout.Duration)
			fmt.Fprintf(os.Stderr, "  Current page: %s\n", url)
		},
	}
}

func newAggregator(cfg config.Config, logger *zap.Logger) *pipeline.Aggregator {
	dirs := cfg.Logs.DataDirs
	if flagDataDir != "" {
		dirs = append([]string{flagDataDir}, dirs...)
	}
	agg := pipeline.NewAggregator(logger, dirs...)
	agg.IncludeSubagents = cfg.Logs.IncludeSubagents && !flagNoSubagents

	if !flagQuiet {
		agg.Progress = func(current, total int) {
			if current%100 == 0 || current == total {
				fmt.Fprintf(os.Stderr, "\r  Parsing [%d/%d]", current, total)
				if current == total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}
	}
	return agg
}

func newFetcher(cfg config.Config, ctrl *browser.Controller, agg *pipeline.Aggregator, logger *zap.Logger) *claudeai.Fetcher {
	f := claudeai.NewFetcher(ctrl, agg, logger)
	if d := cfg.Remote.CaptureTimeout.Duration; d > 0 {
		f.CaptureTimeout = d
	}
	return f
}

func historyPath() string {
	return filepath.Join(config.DataDir(), "history.db")
}

func openHistory() (*store.History, error) {
	if err := os.MkdirAll(config.DataDir(), 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return store.Open(historyPath())
}

// sinceTime resolves --since (or the configured default) against now. The
// zero time means no window.
func sinceTime(cfg config.Config, now time.Time) (time.Time, error) {
	if flagSince == "" {
		if d := cfg.Logs.DefaultWindow.Duration; d > 0 {
			return now.Add(-d), nil
		}
		return time.Time{}, nil
	}
	if flagSince == "all" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(flagSince); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	if d, ok := resettime.ParseRelative(flagSince); ok && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q (use e.g. 5h, 7d or all)", flagSince)
}
