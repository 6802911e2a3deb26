package browser

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/theirongolddev/ccquota/internal/model"
)

// EndpointDescriptor matches one category of claude.ai API request by path.
type EndpointDescriptor struct {
	Category      model.Category
	PathPrefix    string
	PathSubstring string
}

// DefaultEndpoints lists the endpoints the usage page calls, checked in order.
var DefaultEndpoints = []EndpointDescriptor{
	{Category: model.CategoryUsage, PathPrefix: "/api/organizations/", PathSubstring: "/usage"},
	{Category: model.CategoryOverageLimit, PathPrefix: "/api/organizations/", PathSubstring: "/overage_spend_limit"},
	{Category: model.CategoryCredits, PathPrefix: "/api/organizations/", PathSubstring: "/prepaid/credits"},
}

// Matches reports whether a request path belongs to this descriptor.
func (d EndpointDescriptor) Matches(path string) bool {
	if !strings.HasPrefix(path, d.PathPrefix) {
		return false
	}
	return strings.Contains(path[len(d.PathPrefix):], d.PathSubstring)
}

var sensitiveHeaders = map[string]bool{
	"cookie":        true,
	"authorization": true,
	"x-api-key":     true,
}

func redact(headers map[string]string) map[string]string {
	return lo.MapValues(headers, func(v, k string) string {
		if sensitiveHeaders[strings.ToLower(k)] {
			return "[redacted]"
		}
		return v
	})
}

// Interceptor passively records the first request seen for each endpoint
// category. It never blocks, modifies, or fails a request.
type Interceptor struct {
	descriptors []EndpointDescriptor
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	captured map[model.Category]model.CapturedEndpoint
	ready    map[model.Category]chan struct{}
}

// NewInterceptor returns an interceptor for the given descriptors.
// A nil descriptor list means DefaultEndpoints.
func NewInterceptor(descriptors []EndpointDescriptor, logger *zap.Logger) *Interceptor {
	if descriptors == nil {
		descriptors = DefaultEndpoints
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		descriptors: descriptors,
		logger:      logger,
		now:         time.Now,
		captured:    make(map[model.Category]model.CapturedEndpoint),
		ready:       make(map[model.Category]chan struct{}),
	}
}

// Observe inspects one outgoing request. It is safe to call from the
// browser event goroutine.
func (i *Interceptor) Observe(rawURL string, headers map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("request observer panicked", zap.Any("panic", r), zap.String("url", rawURL))
		}
	}()

	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}

	for _, d := range i.descriptors {
		if !d.Matches(u.Path) {
			continue
		}
		i.capture(d.Category, rawURL, headers)
		return
	}
}

func (i *Interceptor) capture(cat model.Category, rawURL string, headers map[string]string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.captured[cat]; ok {
		return
	}

	hdrs := make(map[string]string, len(headers))
	for k, v := range headers {
		hdrs[k] = v
	}
	i.captured[cat] = model.CapturedEndpoint{
		Category:   cat,
		URL:        rawURL,
		Headers:    hdrs,
		CapturedAt: i.now(),
	}
	close(i.readyLocked(cat))

	i.logger.Debug("captured endpoint",
		zap.String("category", string(cat)),
		zap.String("url", rawURL),
		zap.Any("headers", redact(hdrs)))
}

func (i *Interceptor) readyLocked(cat model.Category) chan struct{} {
	ch, ok := i.ready[cat]
	if !ok {
		ch = make(chan struct{})
		i.ready[cat] = ch
	}
	return ch
}

// Endpoint returns the captured endpoint for a category.
func (i *Interceptor) Endpoint(cat model.Category) (model.CapturedEndpoint, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ep, ok := i.captured[cat]
	return ep, ok
}

// Wait blocks until an endpoint of the category is captured or ctx is done.
func (i *Interceptor) Wait(ctx context.Context, cat model.Category) (model.CapturedEndpoint, bool) {
	i.mu.Lock()
	if ep, ok := i.captured[cat]; ok {
		i.mu.Unlock()
		return ep, true
	}
	ch := i.readyLocked(cat)
	i.mu.Unlock()

	select {
	case <-ch:
		return i.Endpoint(cat)
	case <-ctx.Done():
		return model.CapturedEndpoint{}, false
	}
}

// Reset forgets every captured endpoint.
func (i *Interceptor) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.captured = make(map[model.Category]model.CapturedEndpoint)
	i.ready = make(map[model.Category]chan struct{})
}
