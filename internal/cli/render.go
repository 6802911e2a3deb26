package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/samber/lo"

	"github.com/theirongolddev/ccquota/internal/model"
)

// Theme colors (Flexoki Dark)
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorYellow    = lipgloss.Color("#D0A215")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorText).Align(lipgloss.Center)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	valueStyle  = lipgloss.NewStyle().Foreground(ColorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorTextMuted)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorOrange)
	dimStyle    = lipgloss.NewStyle().Foreground(ColorTextDim)
)

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderTable renders a bordered table. Every column but the first is
// right-aligned.
func RenderTable(t Table) string {
	if len(t.Rows) == 0 && len(t.Headers) == 0 {
		return ""
	}

	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := valueStyle
			if row == table.HeaderRow {
				s = headerStyle
			}
			s = s.Padding(0, 1)
			if col > 0 {
				s = s.Align(lipgloss.Right)
			}
			return s
		})

	var b strings.Builder
	if t.Title != "" {
		b.WriteString("  ")
		b.WriteString(headerStyle.Render(t.Title))
		b.WriteString("\n")
	}
	b.WriteString(tbl.Render())
	b.WriteString("\n")
	return b.String()
}

// barColor picks a color by how close a window is to its limit.
func barColor(pct float64) lipgloss.Color {
	switch {
	case pct >= 90:
		return ColorRed
	case pct >= 75:
		return ColorOrange
	case pct >= 50:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// RenderUsageBar renders a utilization bar of the given width.
func RenderUsageBar(p *float64, width int) string {
	if p == nil {
		return dimStyle.Render(strings.Repeat("░", width))
	}
	filled := int(*p / 100 * float64(width))
	filled = max(0, min(filled, width))

	bar := lipgloss.NewStyle().Foreground(barColor(*p)).Render(strings.Repeat("█", filled))
	return bar + dimStyle.Render(strings.Repeat("░", width-filled))
}

// RenderSnapshot renders a usage snapshot as a table of windows.
func RenderSnapshot(s *model.UsageSnapshot, now time.Time) string {
	if s == nil {
		return ""
	}
	var b strings.Builder

	if s.Source == model.SourceHTML {
		b.WriteString(RenderTable(Table{
			Title:   "Plan usage (from page text)",
			Headers: []string{"Window", "Used", "", "Resets"},
			Rows: [][]string{{
				"Current", FormatUtilization(s.UsagePercent), RenderUsageBar(s.UsagePercent, 20), "in " + s.ResetTime,
			}},
		}))
		return b.String()
	}

	row := func(name string, w model.Window) []string {
		return []string{name, FormatUtilization(w.Utilization), RenderUsageBar(w.Utilization, 20), FormatResetsAt(w.ResetsAt, now)}
	}

	rows := [][]string{row("5-hour", s.FiveHour), row("7-day", s.SevenDay)}
	models := lo.Keys(s.SevenDayPerModel)
	slices.Sort(models)
	for _, m := range models {
		rows = append(rows, row("7-day "+m, s.SevenDayPerModel[m]))
	}
	if s.ExtraUsage != nil {
		rows = append(rows, row("Extra usage", *s.ExtraUsage))
	}

	b.WriteString(RenderTable(Table{
		Title:   "Plan usage",
		Headers: []string{"Window", "Used", "", "Resets"},
		Rows:    rows,
	}))

	if mc := s.MonthlyCredits; mc != nil {
		status := "enabled"
		if !mc.Enabled {
			status = "disabled"
		}
		if mc.OutOfCredits {
			status = warnStyle.Render("out of credits")
		}
		fmt.Fprintf(&b, "  Extra usage credits: %s of %s (%.0f%%), %s\n",
			FormatMoney(mc.Used, mc.Currency), FormatMoney(mc.Limit, mc.Currency), mc.Percent, status)
	}
	if s.CreditBalance != nil {
		fmt.Fprintf(&b, "  Prepaid balance: %s\n", FormatMoney(*s.CreditBalance, ""))
	}
	return b.String()
}

// RenderAggregate renders local token totals with a per-model breakdown.
func RenderAggregate(a model.AggregateUsage) string {
	if !a.Found {
		return mutedStyle.Render("  No Claude Code logs found.") + "\n"
	}

	title := "Local tokens (all time)"
	if !a.Since.IsZero() {
		title = "Local tokens since " + a.Since.Local().Format("Jan 2 15:04")
	}

	models := lo.Keys(a.ByModel)
	slices.SortFunc(models, func(x, y string) int {
		return int(a.ByModel[y].Total() - a.ByModel[x].Total())
	})

	rows := lo.Map(models, func(m string, _ int) []string {
		mt := a.ByModel[m]
		return []string{m, FormatNumber(int64(mt.Records)), FormatTokens(mt.InputTokens), FormatTokens(mt.OutputTokens),
			FormatTokens(mt.CacheCreationTokens), FormatTokens(mt.CacheReadTokens), FormatTokens(mt.Total())}
	})
	if len(rows) > 1 {
		rows = append(rows, []string{"Total", FormatNumber(int64(a.RecordCount)), FormatTokens(a.InputTokens), FormatTokens(a.OutputTokens),
			FormatTokens(a.CacheCreationTokens), FormatTokens(a.CacheReadTokens), FormatTokens(a.TotalTokens)})
	}

	out := RenderTable(Table{
		Title:   title,
		Headers: []string{"Model", "Calls", "Input", "Output", "Cache write", "Cache read", "Total"},
		Rows:    rows,
	})
	return out + mutedStyle.Render(fmt.Sprintf("  %d files, %d duplicates skipped, %d malformed lines", a.Files, a.Duplicates, a.ParseErrors)) + "\n"
}
