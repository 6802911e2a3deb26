package claudeai

import (
	"context"
	"errors"
	"time"

	"github.com/theirongolddev/ccquota/internal/browser"
	"github.com/theirongolddev/ccquota/internal/htmlparse"
	"github.com/theirongolddev/ccquota/internal/model"
)

// Session is the browser side of an acquisition. *browser.Controller
// implements it.
type Session interface {
	EnsureReady(ctx context.Context, forceVisible bool) error
	EnsureLoggedIn(ctx context.Context) error
	Endpoint(cat model.Category) (model.CapturedEndpoint, bool)
	WaitEndpoint(ctx context.Context, cat model.Category) (model.CapturedEndpoint, bool)
	CookieHeader(ctx context.Context, url string) (string, error)
	PageHTML(ctx context.Context) (string, error)
	MarkReady()
}

var _ Session = (*browser.Controller)(nil)

// TokenSource aggregates local token usage.
type TokenSource interface {
	Aggregate(since time.Time) (model.AggregateUsage, error)
}

// Result is the outcome of one acquisition. The snapshot and the local
// aggregate succeed or fail independently.
type Result struct {
	Snapshot    *model.UsageSnapshot
	SnapshotErr error
	Usage       model.AggregateUsage
	UsageErr    error
	FetchedAt   time.Time
}

// FailureKind is a coarse classification of an acquisition error for display.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureNeedsLogin    FailureKind = "needs_login"
	FailureLayoutChanged FailureKind = "layout_changed"
	FailureUnreachable   FailureKind = "unreachable"
	FailureProfileLocked FailureKind = "profile_locked"
	FailureUnknown       FailureKind = "unknown"
)

// Classify maps an error from FetchSnapshot to a FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var apiErr *APIFetchError
	switch {
	case errors.Is(err, browser.ErrAuthTimeout):
		return FailureNeedsLogin
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return FailureNeedsLogin
	case errors.Is(err, htmlparse.ErrLayoutChanged):
		return FailureLayoutChanged
	case errors.Is(err, browser.ErrProfileLocked):
		return FailureProfileLocked
	case errors.Is(err, browser.ErrConnection),
		errors.Is(err, browser.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return FailureUnreachable
	}
	return FailureUnknown
}

// Hint returns a short user-facing explanation for a failure kind.
func (k FailureKind) Hint() string {
	switch k {
	case FailureNeedsLogin:
		return "log in to claude.ai in the browser window (run `ccquota login`)"
	case FailureLayoutChanged:
		return "claude.ai changed its usage page; ccquota needs an update"
	case FailureUnreachable:
		return "could not reach a browser or claude.ai; check Chrome and your network"
	case FailureProfileLocked:
		return "another browser is using the ccquota profile; close it or start it with --remote-debugging-port"
	case FailureNone:
		return ""
	}
	return "unexpected error; rerun with --verbose for details"
}
