package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/ccquota/internal/model"
)

func openTemp(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func pct(v float64) *float64 { return &v }

func TestLatest_Empty(t *testing.T) {
	h := openTemp(t)
	if _, err := h.Latest(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("Latest() error = %v, want ErrEmpty", err)
	}
}

func TestSaveSnapshot_RoundTripsNils(t *testing.T) {
	h := openTemp(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	first := &model.UsageSnapshot{
		Source:       model.SourceAPI,
		FiveHour:     model.Window{Utilization: pct(45)},
		UsagePercent: pct(45),
		ResetTime:    "2h 30m",
		Timestamp:    base,
		RawPayload:   []byte(`{"five_hour":{}}`),
	}
	second := &model.UsageSnapshot{
		Source:       model.SourceHTML,
		UsagePercent: pct(62),
		ResetTime:    "Unknown",
		Timestamp:    base.Add(time.Hour),
	}
	for _, s := range []*model.UsageSnapshot{first, second} {
		if err := h.SaveSnapshot(s); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	latest, err := h.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Snapshot.Source != model.SourceHTML || *latest.Snapshot.UsagePercent != 62 {
		t.Errorf("Latest = %+v, want html 62%%", latest.Snapshot)
	}
	if latest.Snapshot.FiveHour.Utilization != nil {
		t.Error("absent window came back non-nil")
	}

	recent, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent returned %d entries, want 2", len(recent))
	}
	if recent[1].Snapshot.SevenDay.Utilization != nil {
		t.Error("seven_day should stay nil")
	}
	if recent[1].Snapshot.RawPayload != nil {
		t.Error("raw payload should not be stored")
	}
	if !recent[1].FetchedAt.Equal(base) {
		t.Errorf("FetchedAt = %v, want %v", recent[1].FetchedAt, base)
	}
}

func TestSaveTokensAndPrune(t *testing.T) {
	h := openTemp(t)
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := h.SaveTokens(model.AggregateUsage{TotalTokens: 10, RecordCount: 1}, old); err != nil {
		t.Fatal(err)
	}
	if err := h.SaveTokens(model.AggregateUsage{TotalTokens: 99, RecordCount: 4, Since: now.Add(-time.Hour)}, now); err != nil {
		t.Fatal(err)
	}
	if err := h.SaveSnapshot(&model.UsageSnapshot{Source: model.SourceHTML, Timestamp: old}); err != nil {
		t.Fatal(err)
	}

	removed, err := h.Prune(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune removed %d snapshots, want 1", removed)
	}

	tokens, err := h.RecentTokens(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].TotalTokens != 99 || tokens[0].Since.IsZero() {
		t.Errorf("RecentTokens = %+v", tokens)
	}
}
