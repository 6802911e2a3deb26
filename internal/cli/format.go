// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/ccquota/internal/resettime"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// NotAvailable is shown for values the remote payload did not carry.
const NotAvailable = "n/a"

// FormatUtilization formats a percentage in [0,100]; nil renders as n/a.
func FormatUtilization(p *float64) string {
	if p == nil {
		return NotAvailable
	}
	if *p == float64(int64(*p)) {
		return fmt.Sprintf("%d%%", int64(*p))
	}
	return fmt.Sprintf("%.1f%%", *p)
}

// FormatResetsAt renders a window reset as "in 2h 5m (3:04 PM)".
func FormatResetsAt(t *time.Time, now time.Time) string {
	if t == nil {
		return NotAvailable
	}
	rel := resettime.Bucket(t.Sub(now))
	if rel == resettime.Soon {
		return rel
	}
	return fmt.Sprintf("in %s (%s)", rel, resettime.RelativeToClockTime(rel, now))
}

// FormatMoney formats a major-unit amount with its currency code.
func FormatMoney(v float64, currency string) string {
	if currency == "" || currency == "USD" {
		return fmt.Sprintf("$%.2f", v)
	}
	return fmt.Sprintf("%.2f %s", v, currency)
}

// FormatAge formats how long ago t was, e.g. "3m ago".
func FormatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
