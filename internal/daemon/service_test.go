package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/theirongolddev/ccquota/internal/browser"
	"github.com/theirongolddev/ccquota/internal/claudeai"
	"github.com/theirongolddev/ccquota/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pct(v float64) *float64 { return &v }

type stubFetcher struct {
	snaps []*model.UsageSnapshot
	errs  []error
	calls int
}

func (f *stubFetcher) FetchSnapshot(context.Context) (*model.UsageSnapshot, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.snaps) {
		return f.snaps[i], nil
	}
	return f.snaps[len(f.snaps)-1], nil
}

type stubTokens struct {
	totals []int64
	calls  int
	since  []time.Time
}

func (t *stubTokens) Aggregate(since time.Time) (model.AggregateUsage, error) {
	t.since = append(t.since, since)
	i := min(t.calls, len(t.totals)-1)
	t.calls++
	return model.AggregateUsage{TotalTokens: t.totals[i], RecordCount: i + 1, Found: true, DataDir: "/logs"}, nil
}

// flakyTokens fails the aggregate calls whose index is in fail.
type flakyTokens struct {
	stubTokens
	fail map[int]bool
}

func (t *flakyTokens) Aggregate(since time.Time) (model.AggregateUsage, error) {
	if t.fail[t.calls] {
		t.calls++
		return model.AggregateUsage{}, errors.New("scan failed")
	}
	return t.stubTokens.Aggregate(since)
}

type memRecorder struct {
	snaps  int
	tokens int
}

func (r *memRecorder) SaveSnapshot(*model.UsageSnapshot) error          { r.snaps++; return nil }
func (r *memRecorder) SaveTokens(model.AggregateUsage, time.Time) error { r.tokens++; return nil }

func TestDiffSummaries(t *testing.T) {
	prev := Summary{FiveHourPct: pct(40), Tokens: 1_000_000, Records: 10}
	curr := Summary{FiveHourPct: pct(45), SevenDayPct: pct(78), Tokens: 1_250_000, Records: 12}

	delta := diffSummaries(prev, curr)
	assert.InDelta(t, 5.0, delta.FiveHourPct, 1e-9)
	assert.InDelta(t, 78.0, delta.SevenDayPct, 1e-9)
	assert.Equal(t, int64(250_000), delta.Tokens)
	assert.Equal(t, 2, delta.Records)
	assert.False(t, delta.isZero())
	assert.True(t, diffSummaries(curr, curr).isZero())
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{EventsBuffer: 2}, &stubFetcher{}, nil, nil, nil)

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	require.Len(t, s.events, 2)
	assert.Equal(t, int64(2), s.events[0].ID)
	assert.Equal(t, int64(3), s.events[1].ID)
}

func TestPollOnce_FailureKeepsLastSnapshot(t *testing.T) {
	first := &model.UsageSnapshot{Source: model.SourceAPI, FiveHour: model.Window{Utilization: pct(45)}}
	fetcher := &stubFetcher{
		snaps: []*model.UsageSnapshot{first, first},
		errs:  []error{nil, browser.ErrAuthTimeout},
	}
	tokens := &stubTokens{totals: []int64{100, 150}}
	rec := &memRecorder{}
	s := New(Config{Window: 5 * time.Hour}, fetcher, tokens, rec, nil)
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.pollOnce(context.Background())
	s.pollOnce(context.Background())

	st := s.statusSnapshot()
	assert.Equal(t, int64(2), st.PollCount)
	assert.Equal(t, claudeai.FailureNeedsLogin, st.FailureKind)
	assert.NotEmpty(t, st.LastError)
	require.NotNil(t, st.Snapshot)
	assert.Same(t, first, st.Snapshot)
	assert.Equal(t, int64(150), st.Summary.Tokens)
	assert.Equal(t, "/logs", st.DataDir)
	assert.Equal(t, now.Add(-5*time.Hour), tokens.since[0])

	assert.Equal(t, 1, rec.snaps)
	assert.Equal(t, 2, rec.tokens)

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.events, 2)
	assert.Equal(t, "snapshot", s.events[0].Type)
	assert.Equal(t, "usage_delta", s.events[1].Type)
	assert.Equal(t, int64(50), s.events[1].Delta.Tokens)
}

func TestAggregateOnce_NoChangeNoEvent(t *testing.T) {
	s := New(Config{}, &stubFetcher{}, &stubTokens{totals: []int64{7}}, nil, nil)

	s.aggregateOnce()
	s.aggregateOnce()

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.events, 1)
	assert.Equal(t, "snapshot", s.events[0].Type)
}

func TestHandlers(t *testing.T) {
	snap := &model.UsageSnapshot{Source: model.SourceHTML, UsagePercent: pct(62), ResetTime: "Unknown"}
	s := New(Config{}, &stubFetcher{snaps: []*model.UsageSnapshot{snap}}, &stubTokens{totals: []int64{42}}, nil, nil)
	s.pollOnce(context.Background())

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	_ = resp.Body.Close()
	assert.Equal(t, int64(42), st.Summary.Tokens)
	require.NotNil(t, st.Summary.UsagePercent)
	assert.InDelta(t, 62.0, *st.Summary.UsagePercent, 1e-9)
	assert.Nil(t, st.Summary.FiveHourPct)

	resp, err = http.Get(srv.URL + "/v1/events")
	require.NoError(t, err)
	var events []Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	_ = resp.Body.Close()
	assert.Len(t, events, 1)
}

func TestLogWatcher_SignalsOnWrite(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "proj")
	require.NoError(t, os.MkdirAll(project, 0o750))

	lw, err := NewLogWatcher(root, 20*time.Millisecond, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lw.Start(ctx)
	defer func() { _ = lw.Close() }()

	require.NoError(t, os.WriteFile(filepath.Join(project, "s.jsonl"), []byte("{}\n"), 0o600))

	select {
	case <-lw.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal after writing a session log")
	}
}

func TestLogWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	lw, err := NewLogWatcher(root, 10*time.Millisecond, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lw.Start(ctx)
	defer func() { _ = lw.Close() }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600))

	select {
	case <-lw.Changes():
		t.Fatal("unexpected change signal for a non-log file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Interval: time.Second}, &stubFetcher{}, nil, nil, nil)
	assert.Equal(t, 5*time.Minute, s.cfg.Interval)
	assert.Equal(t, "127.0.0.1:8788", s.cfg.Addr)
	assert.Equal(t, 200, s.cfg.EventsBuffer)
}

func TestAggregateOnce_ErrorKeepsFetchStatus(t *testing.T) {
	fetcher := &stubFetcher{snaps: []*model.UsageSnapshot{{Source: model.SourceAPI, FiveHour: model.Window{Utilization: pct(20)}}}}
	tokens := &flakyTokens{stubTokens: stubTokens{totals: []int64{10, 20}}, fail: map[int]bool{0: true}}
	s := New(Config{}, fetcher, tokens, nil, nil)

	s.pollOnce(context.Background())

	st := s.statusSnapshot()
	assert.Empty(t, st.LastError)
	assert.Equal(t, claudeai.FailureNone, st.FailureKind)
	assert.Equal(t, "scan failed", st.AggregateError)
	require.NotNil(t, st.Snapshot)

	s.aggregateOnce()

	st = s.statusSnapshot()
	assert.Empty(t, st.AggregateError)
	assert.Empty(t, st.LastError)
	assert.Equal(t, int64(20), st.Summary.Tokens)
}
