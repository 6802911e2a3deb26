package browser

import (
	"context"
	"net/http"
)

// LaunchOptions configures a browser started by ccquota.
type LaunchOptions struct {
	Bin        string
	ProfileDir string
	Port       int
	Headless   bool
}

// Backend opens connections to a Chromium-family browser.
type Backend interface {
	// Attach connects to a browser already listening on the local debug port.
	Attach(ctx context.Context, port int) (Conn, error)
	// Launch starts a new browser process owned by the caller.
	Launch(ctx context.Context, opts LaunchOptions) (Conn, error)
}

// RequestObserver receives every outgoing request the page sends.
type RequestObserver func(url string, headers map[string]string)

// Conn is one page in a connected browser.
type Conn interface {
	Alive() bool
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context, url string) ([]*http.Cookie, error)
	// Observe subscribes fn to outgoing requests until ctx is done.
	Observe(ctx context.Context, fn RequestObserver) error
	// Close disconnects from an attached browser or terminates an owned one.
	Close() error
}
