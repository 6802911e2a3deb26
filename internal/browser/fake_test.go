package browser

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

type fakeBackend struct {
	mu          sync.Mutex
	attachErr   error
	launchErr   error
	attaches    int
	launches    []LaunchOptions
	conns       []*fakeConn
	newConnFunc func() *fakeConn
}

func (b *fakeBackend) newConn(owned bool) *fakeConn {
	var c *fakeConn
	if b.newConnFunc != nil {
		c = b.newConnFunc()
	} else {
		c = &fakeConn{urls: []string{"https://claude.ai/settings/usage"}}
	}
	c.owned = owned
	c.alive = true
	b.conns = append(b.conns, c)
	return c
}

func (b *fakeBackend) Attach(_ context.Context, _ int) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attaches++
	if b.attachErr != nil {
		return nil, b.attachErr
	}
	return b.newConn(false), nil
}

func (b *fakeBackend) Launch(_ context.Context, opts LaunchOptions) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.launches = append(b.launches, opts)
	if b.launchErr != nil {
		return nil, b.launchErr
	}
	return b.newConn(true), nil
}

// fakeConn returns urls in sequence from URL(); the last one repeats.
type fakeConn struct {
	mu         sync.Mutex
	owned      bool
	alive      bool
	closed     int
	navigated  []string
	urls       []string
	html       string
	cookies    []*http.Cookie
	observer   RequestObserver
	observeErr error
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConn) Navigate(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.navigated = append(c.navigated, url)
	return nil
}

func (c *fakeConn) URL(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.urls) == 0 {
		return "", errors.New("no page")
	}
	u := c.urls[0]
	if len(c.urls) > 1 {
		c.urls = c.urls[1:]
	}
	return u, nil
}

func (c *fakeConn) HTML(_ context.Context) (string, error) {
	return c.html, nil
}

func (c *fakeConn) Cookies(_ context.Context, _ string) ([]*http.Cookie, error) {
	return c.cookies, nil
}

func (c *fakeConn) Observe(_ context.Context, fn RequestObserver) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.observeErr != nil {
		return c.observeErr
	}
	c.observer = fn
	return nil
}

func (c *fakeConn) emit(url string, headers map[string]string) {
	c.mu.Lock()
	fn := c.observer
	c.mu.Unlock()
	if fn != nil {
		fn(url, headers)
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	c.alive = false
	return nil
}
