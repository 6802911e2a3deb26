package browser

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// RodBackend implements Backend with go-rod over the Chrome DevTools Protocol.
type RodBackend struct {
	Logger *zap.Logger
}

// NewRodController returns a Controller backed by a real browser.
func NewRodController(opts Options, hooks Hooks, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewController(opts, &RodBackend{Logger: logger}, hooks, logger)
}

func (b *RodBackend) logger() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

// Attach resolves the websocket URL of a browser on the local debug port.
func (b *RodBackend) Attach(ctx context.Context, port int) (Conn, error) {
	u, err := launcher.ResolveURL(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("resolve debug port %d: %w", port, err)
	}
	return b.connect(ctx, u, nil)
}

// Launch starts a browser with the persistent profile. The profile is never
// removed: ccquota relies on it to keep the user's login between runs.
func (b *RodBackend) Launch(ctx context.Context, opts LaunchOptions) (Conn, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.ProfileDir != "" {
		if err := os.MkdirAll(opts.ProfileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		l = l.UserDataDir(opts.ProfileDir)
	}
	if opts.Port > 0 {
		l = l.RemoteDebuggingPort(opts.Port)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	conn, err := b.connect(ctx, u, l)
	if err != nil {
		l.Kill()
		return nil, err
	}
	return conn, nil
}

func (b *RodBackend) connect(ctx context.Context, controlURL string, l *launcher.Launcher) (Conn, error) {
	// The browser outlives ctx; per-call contexts are applied on the page.
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		if l != nil {
			_ = browser.Close()
		}
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &rodConn{
		browser:  browser,
		page:     page.Context(context.Background()),
		launcher: l,
		logger:   b.logger(),
	}, nil
}

type rodConn struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher // nil when attached
	logger   *zap.Logger
}

func (c *rodConn) Alive() bool {
	_, err := c.browser.Version()
	return err == nil
}

func (c *rodConn) Navigate(ctx context.Context, url string) error {
	p := c.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (c *rodConn) URL(ctx context.Context) (string, error) {
	info, err := c.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (c *rodConn) HTML(ctx context.Context) (string, error) {
	return c.page.Context(ctx).HTML()
}

func (c *rodConn) Cookies(ctx context.Context, url string) ([]*http.Cookie, error) {
	cookies, err := c.page.Context(ctx).Cookies([]string{url})
	if err != nil {
		return nil, err
	}
	return lo.Map(cookies, func(ck *proto.NetworkCookie, _ int) *http.Cookie {
		return &http.Cookie{Name: ck.Name, Value: ck.Value, Domain: ck.Domain, Path: ck.Path}
	}), nil
}

func (c *rodConn) Observe(ctx context.Context, fn RequestObserver) error {
	if err := (proto.NetworkEnable{}).Call(c.page); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}

	wait := c.page.Context(ctx).EachEvent(func(ev *proto.NetworkRequestWillBeSent) {
		if ev.Request == nil {
			return
		}
		headers := make(map[string]string, len(ev.Request.Headers))
		for k, v := range ev.Request.Headers {
			headers[k] = v.Str()
		}
		fn(ev.Request.URL, headers)
	})
	go wait()
	return nil
}

func (c *rodConn) Close() error {
	if c.launcher == nil {
		// Attached: leave the user's browser running, drop only our tab.
		return c.page.Close()
	}
	err := c.browser.Close()
	c.launcher.Kill()
	c.logger.Debug("terminated owned browser")
	return err
}
