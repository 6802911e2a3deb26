package cmd

import (
	"fmt"
	"time"

	"github.com/theirongolddev/ccquota/internal/cli"

	"github.com/spf13/cobra"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Total deduplicated tokens from local Claude Code logs",
	Long:  "Scan Claude Code session logs without touching the browser.",
	RunE:  runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	now := time.Now()
	since, err := sinceTime(cfg, now)
	if err != nil {
		return err
	}

	agg, err := newAggregator(cfg, logger).Aggregate(since)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(cli.RenderAggregate(agg))
	if agg.Found && !flagQuiet {
		fmt.Printf("  %d files, %d duplicates skipped, %d parse errors\n\n",
			agg.Files, agg.Duplicates, agg.ParseErrors)
	}
	return nil
}
