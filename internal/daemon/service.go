// Package daemon provides the long-running background usage monitor service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/claudeai"
	"github.com/theirongolddev/ccquota/internal/model"
)

// SnapshotFetcher produces remote usage snapshots. *claudeai.Fetcher
// implements it.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*model.UsageSnapshot, error)
}

// Recorder persists poll results. *store.History implements it.
type Recorder interface {
	SaveSnapshot(s *model.UsageSnapshot) error
	SaveTokens(a model.AggregateUsage, at time.Time) error
}

// Config controls the daemon runtime behavior.
type Config struct {
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	// Window limits the token aggregate to the trailing duration; zero means
	// all history.
	Window time.Duration
	// WatchDir, when set, triggers re-aggregation on log writes.
	WatchDir string
	Debounce time.Duration
}

// Summary is a compact usage state for status/event payloads.
type Summary struct {
	At           time.Time `json:"at"`
	Source       string    `json:"source,omitempty"`
	FiveHourPct  *float64  `json:"five_hour_pct"`
	SevenDayPct  *float64  `json:"seven_day_pct"`
	UsagePercent *float64  `json:"usage_percent"`
	ResetTime    string    `json:"reset_time,omitempty"`
	Tokens       int64     `json:"tokens"`
	Records      int       `json:"records"`
}

// Delta captures summary deltas between polls.
type Delta struct {
	FiveHourPct float64 `json:"five_hour_pct"`
	SevenDayPct float64 `json:"seven_day_pct"`
	Tokens      int64   `json:"tokens"`
	Records     int     `json:"records"`
}

func (d Delta) isZero() bool {
	return d.FiveHourPct == 0 &&
		d.SevenDayPct == 0 &&
		d.Tokens == 0 &&
		d.Records == 0
}

// Event is emitted whenever the usage summary changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Summary   Summary   `json:"summary"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time            `json:"started_at"`
	LastPollAt      time.Time            `json:"last_poll_at"`
	LastAggregateAt time.Time            `json:"last_aggregate_at"`
	PollIntervalSec int                  `json:"poll_interval_sec"`
	PollCount       int64                `json:"poll_count"`
	DataDir         string               `json:"data_dir"`
	Summary         Summary              `json:"summary"`
	Snapshot        *model.UsageSnapshot `json:"snapshot,omitempty"`
	LastError       string               `json:"last_error,omitempty"`
	FailureKind     claudeai.FailureKind `json:"failure_kind,omitempty"`
	AggregateError  string               `json:"aggregate_error,omitempty"`
	EventCount      int                  `json:"event_count"`
	SubscriberCount int                  `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg      Config
	fetcher  SnapshotFetcher
	tokens   claudeai.TokenSource
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu              sync.RWMutex
	startedAt       time.Time
	lastPollAt      time.Time
	lastAggregateAt time.Time
	pollCount       int64
	lastError       string
	aggregateError  string
	failureKind     claudeai.FailureKind
	hasSummary      bool
	summary         Summary
	snapshot        *model.UsageSnapshot
	dataDir         string
	nextEventID     int64
	events          []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service. recorder may be nil.
func New(cfg Config, fetcher SnapshotFetcher, tokens claudeai.TokenSource, recorder Recorder, logger *zap.Logger) *Service {
	if cfg.Interval < 30*time.Second {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:       cfg,
		fetcher:   fetcher,
		tokens:    tokens,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Run starts HTTP endpoints and polling until ctx is canceled. Fetches run on
// this goroutine only, so at most one acquisition is ever in flight.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var changes <-chan struct{}
	if s.cfg.WatchDir != "" {
		lw, err := NewLogWatcher(s.cfg.WatchDir, s.cfg.Debounce, s.logger)
		if err != nil {
			s.logger.Warn("log watcher unavailable, relying on the poll interval", zap.Error(err))
		} else {
			lw.Start(ctx)
			defer func() { _ = lw.Close() }()
			changes = lw.Changes()
		}
	}

	// Seed initial state so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case <-changes:
			s.aggregateOnce()
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	return mux
}

func (s *Service) since(now time.Time) time.Time {
	if s.cfg.Window <= 0 {
		return time.Time{}
	}
	return now.Add(-s.cfg.Window)
}

// pollOnce fetches a remote snapshot and re-aggregates local logs.
func (s *Service) pollOnce(ctx context.Context) {
	now := s.now()

	snap, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		kind := claudeai.Classify(err)
		s.logger.Warn("usage fetch failed", zap.String("kind", string(kind)), zap.Error(err))
		s.mu.Lock()
		s.lastError = err.Error()
		s.failureKind = kind
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
	} else {
		if s.recorder != nil {
			if err := s.recorder.SaveSnapshot(snap); err != nil {
				s.logger.Warn("recording snapshot", zap.Error(err))
			}
		}
		s.mu.Lock()
		s.snapshot = snap
		s.lastError = ""
		s.failureKind = claudeai.FailureNone
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
	}

	s.aggregateOnce()
}

// aggregateOnce recomputes local token totals and publishes any change.
func (s *Service) aggregateOnce() {
	now := s.now()

	var agg model.AggregateUsage
	if s.tokens != nil {
		var err error
		agg, err = s.tokens.Aggregate(s.since(now))
		if err != nil {
			s.logger.Warn("aggregating local logs", zap.Error(err))
			s.mu.Lock()
			s.aggregateError = err.Error()
			s.mu.Unlock()
			return
		}
		if s.recorder != nil {
			if err := s.recorder.SaveTokens(agg, now); err != nil {
				s.logger.Warn("recording token totals", zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.lastAggregateAt = now
	s.aggregateError = ""
	s.dataDir = agg.DataDir
	sum := summarize(s.snapshot, agg, now)
	prev := s.summary
	prevExists := s.hasSummary
	s.summary = sum
	s.hasSummary = true

	var (
		ev      Event
		publish bool
	)
	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, Summary: sum}
		publish = true
	} else if delta := diffSummaries(prev, sum); !delta.isZero() {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "usage_delta", Timestamp: now, Summary: sum, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func summarize(snap *model.UsageSnapshot, agg model.AggregateUsage, at time.Time) Summary {
	sum := Summary{
		At:      at,
		Tokens:  agg.TotalTokens,
		Records: agg.RecordCount,
	}
	if snap != nil {
		sum.Source = snap.Source
		sum.FiveHourPct = snap.FiveHour.Utilization
		sum.SevenDayPct = snap.SevenDay.Utilization
		sum.UsagePercent = snap.UsagePercent
		sum.ResetTime = snap.ResetTime
	}
	return sum
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func diffSummaries(prev, curr Summary) Delta {
	return Delta{
		FiveHourPct: deref(curr.FiveHourPct) - deref(prev.FiveHourPct),
		SevenDayPct: deref(curr.SevenDayPct) - deref(prev.SevenDayPct),
		Tokens:      curr.Tokens - prev.Tokens,
		Records:     curr.Records - prev.Records,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) statusSnapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		LastAggregateAt: s.lastAggregateAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		DataDir:         s.dataDir,
		Summary:         s.summary,
		Snapshot:        s.snapshot,
		LastError:       s.lastError,
		AggregateError:  s.aggregateError,
		FailureKind:     s.failureKind,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.statusSnapshot())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current summary immediately.
	writeSSE(w, Event{
		Type:      "snapshot",
		Timestamp: s.now(),
		Summary:   s.statusSnapshot().Summary,
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
