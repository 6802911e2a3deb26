// Package browser drives a Chromium-family browser over the DevTools protocol
// to reach the claude.ai usage page and observe its API traffic.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/model"
)

var (
	// ErrConnection indicates the browser could not be attached to or launched.
	ErrConnection = errors.New("browser: could not connect to or launch a browser")
	// ErrProfileLocked indicates another browser process holds the profile directory.
	ErrProfileLocked = errors.New("browser: profile directory is in use by another browser")
	// ErrAuthTimeout indicates the user did not finish logging in before the deadline.
	ErrAuthTimeout = errors.New("browser: timed out waiting for login")
	// ErrClosed is returned by page operations when no session is open.
	ErrClosed = errors.New("browser: session is not open")
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateUninitialized State = iota
	StateAttaching
	StateAttached
	StateLaunching
	StateOwned
	StateNeedsLogin
	StateWaitingForLogin
	StateLoggedIn
	StateReady
	StateClosed
)

var stateNames = [...]string{
	"uninitialized", "attaching", "attached", "launching", "owned",
	"needs_login", "waiting_for_login", "logged_in", "ready", "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a Controller.
type Options struct {
	DebugPort    int
	ProfileDir   string
	Bin          string
	Headless     bool
	UsageURL     string
	AuthMarkers  []string
	LoginTimeout time.Duration
	PageTimeout  time.Duration
	PollInterval time.Duration
}

// DefaultOptions returns the built-in controller settings.
func DefaultOptions() Options {
	return Options{
		DebugPort:    9222,
		Headless:     true,
		UsageURL:     "https://claude.ai/settings/usage",
		AuthMarkers:  []string{"/login", "/logout", "/oauth"},
		LoginTimeout: 5 * time.Minute,
		PageTimeout:  30 * time.Second,
		PollInterval: 2 * time.Second,
	}
}

// Hooks are optional callbacks for interactive front ends.
type Hooks struct {
	// OnLoginNeeded fires once per login wait with the auth URL shown.
	OnLoginNeeded func(url string)
	// OnStateChange fires on every state transition.
	OnStateChange func(from, to State)
}

// Controller owns one browser session and the endpoints captured from it.
// Methods are safe for concurrent use, but callers are expected to run
// one acquisition at a time.
type Controller struct {
	opts        Options
	backend     Backend
	hooks       Hooks
	logger      *zap.Logger
	interceptor *Interceptor

	mu            sync.Mutex
	conn          Conn
	state         State
	owned         bool
	headless      bool
	observeCancel context.CancelFunc
	transitions   []transition // queued for OnStateChange until mu is released
}

type transition struct {
	from, to State
}

// NewController builds a controller on top of a backend.
func NewController(opts Options, backend Backend, hooks Hooks, logger *zap.Logger) *Controller {
	def := DefaultOptions()
	if opts.DebugPort == 0 {
		opts.DebugPort = def.DebugPort
	}
	if opts.UsageURL == "" {
		opts.UsageURL = def.UsageURL
	}
	if len(opts.AuthMarkers) == 0 {
		opts.AuthMarkers = def.AuthMarkers
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = def.LoginTimeout
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = def.PageTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		opts:        opts,
		backend:     backend,
		hooks:       hooks,
		logger:      logger,
		interceptor: NewInterceptor(nil, logger),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Owned reports whether the current browser was launched by this controller.
func (c *Controller) Owned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.owned
}

func (c *Controller) ownedHeadless() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.owned && c.headless
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.logger.Debug("browser state", zap.Stringer("from", from), zap.Stringer("to", to))
	if c.hooks.OnStateChange != nil {
		c.transitions = append(c.transitions, transition{from: from, to: to})
	}
}

// unlock releases mu, then runs the state hooks queued while it was held so
// a hook may call back into the controller.
func (c *Controller) unlock() {
	queued := c.transitions
	c.transitions = nil
	c.mu.Unlock()
	for _, tr := range queued {
		c.hooks.OnStateChange(tr.from, tr.to)
	}
}

func (c *Controller) setState(to State) {
	c.mu.Lock()
	defer c.unlock()
	c.setStateLocked(to)
}

// EnsureReady makes sure a live browser connection exists. It attaches to a
// browser on the debug port when possible and otherwise launches one with the
// persistent profile. forceVisible relaunches a headless owned browser with a
// window so the user can interact with it.
func (c *Controller) EnsureReady(ctx context.Context, forceVisible bool) error {
	c.mu.Lock()
	defer c.unlock()

	if c.conn != nil {
		if c.conn.Alive() {
			if !forceVisible || !c.owned || !c.headless {
				return nil
			}
			c.logger.Info("relaunching browser with a visible window")
		} else {
			c.logger.Warn("stale browser connection detected, reconnecting")
		}
		_ = c.closeLocked()
	}

	c.setStateLocked(StateAttaching)
	conn, err := c.backend.Attach(ctx, c.opts.DebugPort)
	if err == nil {
		c.logger.Debug("attached to running browser", zap.Int("port", c.opts.DebugPort))
		c.adoptLocked(conn, false, false)
		c.setStateLocked(StateAttached)
		return nil
	}
	c.logger.Debug("attach failed, launching", zap.Int("port", c.opts.DebugPort), zap.Error(err))

	c.setStateLocked(StateLaunching)
	headless := c.opts.Headless && !forceVisible
	conn, err = c.backend.Launch(ctx, LaunchOptions{
		Bin:        c.opts.Bin,
		ProfileDir: c.opts.ProfileDir,
		Port:       c.opts.DebugPort,
		Headless:   headless,
	})
	if err != nil {
		c.setStateLocked(StateUninitialized)
		if profileLocked(c.opts.ProfileDir, err) {
			return fmt.Errorf("%w: %s", ErrProfileLocked, c.opts.ProfileDir)
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	c.logger.Debug("launched browser", zap.Bool("headless", headless), zap.String("profile", c.opts.ProfileDir))
	c.adoptLocked(conn, true, headless)
	c.setStateLocked(StateOwned)
	return nil
}

func (c *Controller) adoptLocked(conn Conn, owned, headless bool) {
	c.conn = conn
	c.owned = owned
	c.headless = headless

	obsCtx, cancel := context.WithCancel(context.Background())
	c.observeCancel = cancel
	if err := conn.Observe(obsCtx, c.interceptor.Observe); err != nil {
		// Replay is impossible without captured requests; the HTML path still works.
		c.logger.Warn("network interception unavailable", zap.Error(err))
	}
}

// profileLocked reports whether a launch failure was caused by another
// browser holding the profile.
func profileLocked(profileDir string, err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"singletonlock", "processsingleton", "profile in use", "already in use"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	if profileDir == "" {
		return false
	}
	_, statErr := os.Lstat(filepath.Join(profileDir, "SingletonLock"))
	return statErr == nil
}

func (c *Controller) current() (Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClosed
	}
	return c.conn, nil
}

func (c *Controller) isAuthURL(u string) bool {
	for _, m := range c.opts.AuthMarkers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}

func (c *Controller) navigate(ctx context.Context, conn Conn) (string, error) {
	pageCtx, cancel := context.WithTimeout(ctx, c.opts.PageTimeout)
	defer cancel()

	if err := conn.Navigate(pageCtx, c.opts.UsageURL); err != nil {
		return "", fmt.Errorf("%w: navigating to %s: %w", ErrConnection, c.opts.UsageURL, err)
	}
	u, err := conn.URL(pageCtx)
	if err != nil {
		return "", fmt.Errorf("%w: reading page url: %w", ErrConnection, err)
	}
	return u, nil
}

// EnsureLoggedIn loads the usage page and, if it redirects to an
// authentication flow, shows a visible browser and waits for the user to
// finish logging in.
func (c *Controller) EnsureLoggedIn(ctx context.Context) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	u, err := c.navigate(ctx, conn)
	if err != nil {
		return err
	}
	if !c.isAuthURL(u) {
		c.setState(StateLoggedIn)
		return nil
	}

	c.logger.Info("login required", zap.String("url", u))
	c.setState(StateNeedsLogin)
	if c.hooks.OnLoginNeeded != nil {
		c.hooks.OnLoginNeeded(u)
	}

	if c.ownedHeadless() {
		if err := c.EnsureReady(ctx, true); err != nil {
			return err
		}
		if conn, err = c.current(); err != nil {
			return err
		}
		if _, err := c.navigate(ctx, conn); err != nil {
			return err
		}
	}

	if err := c.waitForLogin(ctx, conn); err != nil {
		return err
	}

	c.setState(StateLoggedIn)
	if _, err := c.navigate(ctx, conn); err != nil {
		return err
	}
	return nil
}

func (c *Controller) waitForLogin(ctx context.Context, conn Conn) error {
	c.setState(StateWaitingForLogin)
	c.logger.Info("waiting for login", zap.Duration("timeout", c.opts.LoginTimeout))

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.LoginTimeout)
	defer cancel()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrAuthTimeout
		case <-ticker.C:
			u, err := conn.URL(waitCtx)
			if err != nil {
				c.logger.Debug("polling page url", zap.Error(err))
				continue
			}
			if !c.isAuthURL(u) {
				c.logger.Info("login detected", zap.String("url", u))
				return nil
			}
		}
	}
}

// MarkReady records that a fetch completed on the current session.
func (c *Controller) MarkReady() {
	c.mu.Lock()
	defer c.unlock()
	if c.conn != nil {
		c.setStateLocked(StateReady)
	}
}

// Endpoint returns the captured endpoint for a category.
func (c *Controller) Endpoint(cat model.Category) (model.CapturedEndpoint, bool) {
	return c.interceptor.Endpoint(cat)
}

// WaitEndpoint waits until an endpoint of the category has been captured.
func (c *Controller) WaitEndpoint(ctx context.Context, cat model.Category) (model.CapturedEndpoint, bool) {
	return c.interceptor.Wait(ctx, cat)
}

// Reset forgets every captured endpoint without touching the browser.
func (c *Controller) Reset() {
	c.interceptor.Reset()
}

// PageHTML returns the rendered HTML of the current page.
func (c *Controller) PageHTML(ctx context.Context) (string, error) {
	conn, err := c.current()
	if err != nil {
		return "", err
	}
	pageCtx, cancel := context.WithTimeout(ctx, c.opts.PageTimeout)
	defer cancel()
	return conn.HTML(pageCtx)
}

// CookieHeader returns the browser's cookies for rawURL as a Cookie header
// value. The value is held in memory only.
func (c *Controller) CookieHeader(ctx context.Context, rawURL string) (string, error) {
	conn, err := c.current()
	if err != nil {
		return "", err
	}
	cookies, err := conn.Cookies(ctx, rawURL)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; "), nil
}

// Close releases the browser: an attached browser is only disconnected, an
// owned one is terminated. Close is idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.unlock()
	err := c.closeLocked()
	c.setStateLocked(StateClosed)
	return err
}

func (c *Controller) closeLocked() error {
	if c.observeCancel != nil {
		c.observeCancel()
		c.observeCancel = nil
	}
	c.interceptor.Reset()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.owned = false
	c.headless = false
	return err
}
