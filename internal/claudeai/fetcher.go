package claudeai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/theirongolddev/ccquota/internal/htmlparse"
	"github.com/theirongolddev/ccquota/internal/model"
	"github.com/theirongolddev/ccquota/internal/resettime"
	"github.com/theirongolddev/ccquota/internal/schema"
)

const defaultCaptureTimeout = 10 * time.Second

var errNoEndpoint = errors.New("claudeai: usage endpoint was not observed")

// Fetcher runs acquisitions against one browser session. It is not safe to
// run two FetchSnapshot calls concurrently on the same Fetcher.
type Fetcher struct {
	Session Session
	Client  *Client
	Tokens  TokenSource
	Schema  schema.Schema

	// CaptureTimeout bounds the wait for the usage request after page load.
	CaptureTimeout time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// NewFetcher returns a Fetcher with the default schema and HTTP client.
func NewFetcher(sess Session, tokens TokenSource, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		Session:        sess,
		Client:         NewClient(nil),
		Tokens:         tokens,
		Schema:         schema.Default,
		CaptureTimeout: defaultCaptureTimeout,
		Logger:         logger,
		Now:            time.Now,
	}
}

func (f *Fetcher) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

// Acquire fetches the remote snapshot and aggregates local logs concurrently.
// since limits the aggregate; zero means all history.
func (f *Fetcher) Acquire(ctx context.Context, since time.Time) Result {
	res := Result{FetchedAt: f.now()}

	var g errgroup.Group
	g.Go(func() error {
		res.Snapshot, res.SnapshotErr = f.FetchSnapshot(ctx)
		return nil
	})
	if f.Tokens != nil {
		g.Go(func() error {
			res.Usage, res.UsageErr = f.Tokens.Aggregate(since)
			return nil
		})
	}
	_ = g.Wait()

	return res
}

// FetchSnapshot drives the session to the usage page and returns a snapshot
// from the replayed usage endpoint, or from the page text when replay fails.
func (f *Fetcher) FetchSnapshot(ctx context.Context) (*model.UsageSnapshot, error) {
	if err := f.Session.EnsureReady(ctx, false); err != nil {
		return nil, err
	}
	if err := f.Session.EnsureLoggedIn(ctx); err != nil {
		return nil, err
	}

	snap, err := f.fetchAPI(ctx)
	if err != nil {
		var apiErr *APIFetchError
		if !errors.As(err, &apiErr) && !errors.Is(err, errNoEndpoint) {
			return nil, err
		}
		f.logger().Warn("usage api unavailable, falling back to page text", zap.Error(err))

		var htmlErr error
		snap, htmlErr = f.fetchHTML(ctx)
		if htmlErr != nil {
			if apiErr != nil && apiErr.Unauthorized() {
				return nil, errors.Join(err, htmlErr)
			}
			return nil, htmlErr
		}
	}

	f.Session.MarkReady()
	return snap, nil
}

func (f *Fetcher) fetchAPI(ctx context.Context) (*model.UsageSnapshot, error) {
	timeout := f.CaptureTimeout
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	ep, ok := f.Session.WaitEndpoint(waitCtx, model.CategoryUsage)
	cancel()
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errNoEndpoint
	}

	body, err := f.replay(ctx, ep)
	if err != nil {
		return nil, err
	}
	payload, err := schema.Decode(body)
	if err != nil {
		return nil, &APIFetchError{URL: ep.URL, Err: err}
	}

	snap := BuildSnapshot(payload, f.Schema, f.now())
	snap.RawPayload = body

	if ep, ok := f.Session.Endpoint(model.CategoryOverageLimit); ok {
		if fields, err := f.optional(ctx, ep, schema.Overage); err == nil {
			snap.MonthlyCredits = schema.TransformOverage(fields["limit"])
		}
	}
	if ep, ok := f.Session.Endpoint(model.CategoryCredits); ok {
		if fields, err := f.optional(ctx, ep, schema.Credits); err == nil {
			if v, ok := schema.Number(fields["balance"]["amount"]); ok {
				major := schema.MinorToMajor(v)
				snap.CreditBalance = &major
			}
		}
	}

	return snap, nil
}

func (f *Fetcher) replay(ctx context.Context, ep model.CapturedEndpoint) ([]byte, error) {
	cookie, err := f.Session.CookieHeader(ctx, ep.URL)
	if err != nil {
		f.logger().Debug("reading browser cookies", zap.Error(err))
	}
	client := f.Client
	if client == nil {
		client = NewClient(nil)
	}
	return client.Replay(ctx, ep, cookie)
}

// optional replays an enrichment endpoint. Failures are logged, never fatal.
func (f *Fetcher) optional(ctx context.Context, ep model.CapturedEndpoint, s schema.Schema) (map[string]map[string]any, error) {
	body, err := f.replay(ctx, ep)
	if err == nil {
		var payload any
		if payload, err = schema.Decode(body); err == nil {
			return schema.ExtractFromSchema(payload, s), nil
		}
	}
	f.logger().Warn("optional endpoint failed", zap.String("category", string(ep.Category)), zap.Error(err))
	return nil, err
}

func (f *Fetcher) fetchHTML(ctx context.Context) (*model.UsageSnapshot, error) {
	html, err := f.Session.PageHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("claudeai: reading page: %w", err)
	}
	parsed, err := htmlparse.ParseHTML(html)
	if err != nil {
		return nil, err
	}

	pct := parsed.UsagePercent
	return &model.UsageSnapshot{
		Source:       model.SourceHTML,
		UsagePercent: &pct,
		ResetTime:    parsed.ResetTime,
		Timestamp:    f.now(),
	}, nil
}

// BuildSnapshot converts a decoded usage payload into a snapshot using s.
// Windows absent from the payload stay nil.
func BuildSnapshot(payload any, s schema.Schema, now time.Time) *model.UsageSnapshot {
	groups := schema.ExtractFromSchema(payload, s)

	snap := &model.UsageSnapshot{
		Source:        model.SourceAPI,
		FiveHour:      toWindow(groups[schema.GroupFiveHour]),
		SevenDay:      toWindow(groups[schema.GroupSevenDay]),
		Timestamp:     now,
		SchemaVersion: s.Version,
	}

	for group, name := range schema.PerModelGroups {
		w := toWindow(groups[group])
		if !w.Present() {
			continue
		}
		if snap.SevenDayPerModel == nil {
			snap.SevenDayPerModel = make(map[string]model.Window)
		}
		snap.SevenDayPerModel[name] = w
	}

	if w := toWindow(groups[schema.GroupExtraUsage]); w.Present() {
		snap.ExtraUsage = &w
	}

	snap.UsagePercent = snap.FiveHour.Utilization
	snap.ResetTime = resettime.Unknown
	if snap.FiveHour.ResetsAt != nil {
		snap.ResetTime = resettime.Bucket(snap.FiveHour.ResetsAt.Sub(now))
	}
	return snap
}

func toWindow(fields map[string]any) model.Window {
	var w model.Window
	if fields == nil {
		return w
	}
	w.Utilization = schema.Utilization(fields["utilization"])
	if s, ok := fields["resets_at"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			w.ResetsAt = &t
		}
	}
	return w
}
