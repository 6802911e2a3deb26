package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/theirongolddev/ccquota/internal/cli"
	"github.com/theirongolddev/ccquota/internal/store"

	"github.com/spf13/cobra"
)

var (
	flagHistoryLimit int
	flagHistoryPrune bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded usage snapshots and token totals",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "l", 20, "Rows to show")
	historyCmd.Flags().BoolVar(&flagHistoryPrune, "prune", false, "Delete rows older than daemon.retention first")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	h, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	now := time.Now()
	if flagHistoryPrune && cfg.Daemon.Retention.Duration > 0 {
		n, err := h.Prune(now.Add(-cfg.Daemon.Retention.Duration))
		if err != nil {
			return err
		}
		fmt.Printf("  Pruned %d snapshots\n\n", n)
	}

	entries, err := h.Recent(flagHistoryLimit)
	if err != nil && !errors.Is(err, store.ErrEmpty) {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		s := e.Snapshot
		rows = append(rows, []string{
			e.FetchedAt.Local().Format("Jan 2 15:04"),
			s.Source,
			cli.FormatUtilization(s.FiveHour.Utilization),
			cli.FormatUtilization(s.SevenDay.Utilization),
			s.ResetTime,
			cli.FormatAge(e.FetchedAt, now),
		})
	}
	if len(rows) == 0 {
		fmt.Println("  No snapshots recorded yet.")
	} else {
		fmt.Print(cli.RenderTable(cli.Table{
			Title:   "Snapshots",
			Headers: []string{"Fetched", "Source", "5-hour", "7-day", "Reset", "Age"},
			Rows:    rows,
		}))
	}

	tokens, err := h.RecentTokens(flagHistoryLimit)
	if err != nil && !errors.Is(err, store.ErrEmpty) {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	rows = rows[:0]
	for _, t := range tokens {
		window := "all"
		if !t.Since.IsZero() {
			window = t.RecordedAt.Sub(t.Since).Round(time.Minute).String()
		}
		rows = append(rows, []string{
			t.RecordedAt.Local().Format("Jan 2 15:04"),
			window,
			cli.FormatTokens(t.TotalTokens),
			cli.FormatNumber(int64(t.RecordCount)),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Token totals",
		Headers: []string{"Recorded", "Window", "Tokens", "Records"},
		Rows:    rows,
	}))
	return nil
}
