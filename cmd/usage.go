package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theirongolddev/ccquota/internal/browser"
	"github.com/theirongolddev/ccquota/internal/claudeai"
	"github.com/theirongolddev/ccquota/internal/cli"
	"github.com/theirongolddev/ccquota/internal/model"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagUsageJSON    bool
	flagUsageVisible bool
	flagUsageNoSave  bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show claude.ai plan usage and local token totals",
	RunE:  runUsage,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, usageCmd} {
		c.Flags().BoolVar(&flagUsageJSON, "json", false, "Print the result as JSON")
		c.Flags().BoolVar(&flagUsageVisible, "visible", false, "Show the browser window")
		c.Flags().BoolVar(&flagUsageNoSave, "no-save", false, "Do not record the result in history")
	}
	rootCmd.AddCommand(usageCmd)
}

// usageReport is the --json shape of one acquisition.
type usageReport struct {
	FetchedAt     time.Time             `json:"fetched_at"`
	Snapshot      *model.UsageSnapshot  `json:"snapshot"`
	SnapshotError string                `json:"snapshot_error,omitempty"`
	FailureKind   claudeai.FailureKind  `json:"failure_kind,omitempty"`
	Tokens        *model.AggregateUsage `json:"tokens"`
	TokensError   string                `json:"tokens_error,omitempty"`
}

func runUsage(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	since, err := sinceTime(cfg, time.Now())
	if err != nil {
		return err
	}

	opts := browserOptions(cfg)
	if flagUsageVisible {
		opts.Headless = false
	}
	ctrl := browser.NewRodController(opts, loginHooks(cfg), logger)
	defer func() { _ = ctrl.Close() }()

	agg := newAggregator(cfg, logger)
	if flagUsageJSON {
		agg.Progress = nil
	}
	fetcher := newFetcher(cfg, ctrl, agg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res := fetcher.Acquire(ctx, since)

	if !flagUsageNoSave {
		record(res, logger)
	}

	if flagUsageJSON {
		return printUsageJSON(res)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("claude.ai usage"))
	fmt.Println()
	if res.SnapshotErr != nil {
		printFailure(res.SnapshotErr)
	} else {
		fmt.Print(cli.RenderSnapshot(res.Snapshot, res.FetchedAt))
	}

	if res.UsageErr != nil {
		warnStyle := lipgloss.NewStyle().Foreground(cli.ColorOrange)
		fmt.Printf("  %s\n\n", warnStyle.Render("Local logs: "+res.UsageErr.Error()))
	} else {
		fmt.Print(cli.RenderAggregate(res.Usage))
	}

	fmt.Printf("  Fetched at %s\n\n", res.FetchedAt.Local().Format("3:04:05 PM"))

	if res.SnapshotErr != nil && !errors.Is(res.SnapshotErr, context.Canceled) {
		return fmt.Errorf("usage unavailable: %s", claudeai.Classify(res.SnapshotErr))
	}
	return nil
}

// record saves whatever part of the result succeeded. Failures only log.
func record(res claudeai.Result, logger *zap.Logger) {
	h, err := openHistory()
	if err != nil {
		logger.Warn("history unavailable", zap.Error(err))
		return
	}
	defer func() { _ = h.Close() }()

	if res.SnapshotErr == nil && res.Snapshot != nil {
		if err := h.SaveSnapshot(res.Snapshot); err != nil {
			logger.Warn("saving snapshot", zap.Error(err))
		}
	}
	if res.UsageErr == nil && res.Usage.Found {
		if err := h.SaveTokens(res.Usage, res.FetchedAt); err != nil {
			logger.Warn("saving token totals", zap.Error(err))
		}
	}
}

func printFailure(err error) {
	kind := claudeai.Classify(err)
	errStyle := lipgloss.NewStyle().Foreground(cli.ColorRed)
	fmt.Printf("  %s\n", errStyle.Render("Usage unavailable ("+string(kind)+")"))
	fmt.Printf("  %s\n", kind.Hint())
	if flagVerbose {
		fmt.Printf("  %s\n", lipgloss.NewStyle().Foreground(cli.ColorTextMuted).Render(err.Error()))
	}
	fmt.Println()
}

func printUsageJSON(res claudeai.Result) error {
	rep := usageReport{
		FetchedAt: res.FetchedAt,
		Snapshot:  res.Snapshot,
	}
	if res.SnapshotErr != nil {
		rep.SnapshotError = res.SnapshotErr.Error()
		rep.FailureKind = claudeai.Classify(res.SnapshotErr)
	}
	if res.UsageErr != nil {
		rep.TokensError = res.UsageErr.Error()
	} else {
		usage := res.Usage
		rep.Tokens = &usage
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
