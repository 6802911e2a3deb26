// Package claudeai acquires claude.ai plan usage by replaying the requests the
// usage page makes, falling back to the rendered page text when replay fails.
package claudeai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/theirongolddev/ccquota/internal/model"
)

const (
	requestTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	userAgent      = "ccquota/1.0"
)

var (
	// ErrUnauthorized indicates the browser session is no longer logged in.
	ErrUnauthorized = errors.New("claudeai: unauthorized (session expired or logged out)")
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("claudeai: rate limited")
)

// APIFetchError reports a failed replay of a captured endpoint. It is not
// fatal to an acquisition: the caller falls back to the page text.
type APIFetchError struct {
	URL    string
	Status int // 0 when no response was received
	Err    error
}

func (e *APIFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("claudeai: replaying %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("claudeai: replaying %s: %v", e.URL, e.Err)
}

func (e *APIFetchError) Unwrap() error { return e.Err }

// Unauthorized reports whether the server rejected the session.
func (e *APIFetchError) Unauthorized() bool {
	return errors.Is(e.Err, ErrUnauthorized)
}

// Headers the transport manages itself or that must not be forwarded.
var skipHeaders = map[string]bool{
	"host":              true,
	"content-length":    true,
	"connection":        true,
	"accept-encoding":   true,
	"cookie":            true,
	"transfer-encoding": true,
}

// Client replays captured endpoints over plain HTTP.
type Client struct {
	http *http.Client
}

// NewClient returns a client using hc, or a default client when hc is nil.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{http: hc}
}

// Replay re-issues a captured GET request with its original headers and the
// browser's cookies and returns the JSON body.
func (c *Client) Replay(ctx context.Context, ep model.CapturedEndpoint, cookieHeader string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	fail := func(status int, err error) error {
		return &APIFetchError{URL: ep.URL, Status: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("creating request: %w", err))
	}

	for k, v := range ep.Headers {
		if strings.HasPrefix(k, ":") || skipHeaders[strings.ToLower(k)] {
			continue
		}
		req.Header.Set(k, v)
	}
	if cookieHeader != "" {
		req.Header.Set("Cookie", cookieHeader)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	//nolint:gosec // URL was captured from the browser's own request to claude.ai
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fail(resp.StatusCode, ErrUnauthorized)
	case http.StatusTooManyRequests:
		return nil, fail(resp.StatusCode, ErrRateLimited)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(resp.StatusCode, errors.New("unexpected status"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("reading response: %w", err))
	}
	if len(body) == 0 || !json.Valid(body) {
		return nil, fail(resp.StatusCode, errors.New("response is not JSON"))
	}
	return body, nil
}
