package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/ccquota/internal/model"
)

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{999, "999"},
		{1234, "1.2K"},
		{1234567, "1.2M"},
		{1234567890, "1.2B"},
	}
	for _, tt := range tests {
		if got := FormatTokens(tt.in); got != tt.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Errorf("FormatNumber = %q", got)
	}
	if got := FormatNumber(-1000); got != "-1,000" {
		t.Errorf("FormatNumber(-1000) = %q", got)
	}
}

func TestFormatUtilization(t *testing.T) {
	v, frac := 45.0, 17.5
	if got := FormatUtilization(nil); got != NotAvailable {
		t.Errorf("nil = %q", got)
	}
	if got := FormatUtilization(&v); got != "45%" {
		t.Errorf("45 = %q", got)
	}
	if got := FormatUtilization(&frac); got != "17.5%" {
		t.Errorf("17.5 = %q", got)
	}
}

func TestFormatResetsAt(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	at := now.Add(2*time.Hour + 5*time.Minute)

	if got := FormatResetsAt(&at, now); got != "in 2h 5m (11:05 AM)" {
		t.Errorf("FormatResetsAt = %q", got)
	}
	past := now.Add(-time.Minute)
	if got := FormatResetsAt(&past, now); got != "soon" {
		t.Errorf("past = %q", got)
	}
	if got := FormatResetsAt(nil, now); got != NotAvailable {
		t.Errorf("nil = %q", got)
	}
}

func TestRenderSnapshot_NilWindowsShowNA(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	pct := 45.0
	out := RenderSnapshot(&model.UsageSnapshot{
		Source:   model.SourceAPI,
		FiveHour: model.Window{Utilization: &pct},
	}, now)

	if !strings.Contains(out, "45%") {
		t.Errorf("missing five-hour figure:\n%s", out)
	}
	if !strings.Contains(out, NotAvailable) {
		t.Errorf("absent seven-day window should render n/a:\n%s", out)
	}
}

func TestRenderAggregate_NotFound(t *testing.T) {
	out := RenderAggregate(model.AggregateUsage{})
	if !strings.Contains(out, "No Claude Code logs") {
		t.Errorf("RenderAggregate = %q", out)
	}
}
