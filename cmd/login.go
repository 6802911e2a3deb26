package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/theirongolddev/ccquota/internal/browser"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a visible browser and wait for a claude.ai login",
	Long: "Opens the usage page in a visible window using the ccquota browser profile. " +
		"Log in there once; later headless runs reuse the session from the profile.",
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	opts := browserOptions(cfg)
	opts.Headless = false
	ctrl := browser.NewRodController(opts, loginHooks(cfg), logger)
	defer func() { _ = ctrl.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.EnsureReady(ctx, true); err != nil {
		return err
	}
	if err := ctrl.EnsureLoggedIn(ctx); err != nil {
		return err
	}

	fmt.Println("  Logged in to claude.ai.")
	fmt.Printf("  Browser profile: %s\n", opts.ProfileDir)
	if !ctrl.Owned() {
		fmt.Printf("  Using the browser already listening on port %d.\n", opts.DebugPort)
	}
	return nil
}
