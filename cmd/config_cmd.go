// Package cmd implements the ccquota CLI commands.
package cmd

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/ccquota/internal/config"
	"github.com/theirongolddev/ccquota/internal/source"

	"github.com/spf13/cobra"
)

var flagConfigInit bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&flagConfigInit, "init", false, "Write the default config file if none exists")
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	path := config.ConfigPath()
	if flagConfig != "" {
		path = flagConfig
	}

	if flagConfigInit {
		if config.Exists() && flagConfig == "" {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.SaveFile(path, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("  Wrote %s\n", path)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", path)
	if config.Exists() || flagConfig != "" {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Printf("  Data directory: %s\n", config.DataDir())
	fmt.Println()

	fmt.Println("  [Browser]")
	fmt.Printf("    Debug port:  %d\n", cfg.DebugPort())
	fmt.Printf("    Profile:     %s\n", cfg.ProfileDir())
	fmt.Printf("    Headless:    %v\n", cfg.Browser.Headless)
	if cfg.Browser.Bin != "" {
		fmt.Printf("    Binary:      %s\n", cfg.Browser.Bin)
	}
	fmt.Println()

	fmt.Println("  [Remote]")
	fmt.Printf("    Usage URL:       %s\n", cfg.Remote.UsageURL)
	fmt.Printf("    Auth markers:    %s\n", strings.Join(cfg.Remote.AuthMarkers, ", "))
	fmt.Printf("    Login timeout:   %s\n", cfg.Remote.LoginTimeout)
	fmt.Printf("    Page timeout:    %s\n", cfg.Remote.PageTimeout)
	fmt.Printf("    Capture timeout: %s\n", cfg.Remote.CaptureTimeout)
	fmt.Println()

	fmt.Println("  [Logs]")
	candidates := source.DataDirCandidates(cfg.Logs.DataDirs...)
	if dir, ok := source.FindDataDirectory(candidates); ok {
		fmt.Printf("    Log directory:     %s\n", dir)
	} else {
		fmt.Printf("    Log directory:     not found (searched %s)\n", strings.Join(candidates, ", "))
	}
	fmt.Printf("    Include subagents: %v\n", cfg.Logs.IncludeSubagents)
	if cfg.Logs.DefaultWindow.Duration > 0 {
		fmt.Printf("    Default window:    %s\n", cfg.Logs.DefaultWindow)
	} else {
		fmt.Println("    Default window:    all")
	}
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:       %s\n", cfg.Daemon.Addr)
	fmt.Printf("    Interval:      %s\n", cfg.Daemon.Interval)
	fmt.Printf("    Events buffer: %d\n", cfg.Daemon.EventsBuf)
	fmt.Printf("    Retention:     %s\n", cfg.Daemon.Retention)
	fmt.Println()

	fmt.Println("  Credentials are never stored here; the browser profile holds the claude.ai session.")
	return nil
}
