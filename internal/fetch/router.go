package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

// Browser is a dynamic-mode fetcher that owns a headless browser process.
type Browser interface {
	repository.Fetcher
	Close()
}

// BrowserFactory starts a browser. withImages is decided by the first
// dynamic request the browser serves.
type BrowserFactory func(ctx context.Context, withImages bool) (Browser, error)

// Router dispatches on the render mode of a request. The browser is started
// on the first dynamic request and owned by the Router until Close, so one
// Router must serve a single worker.
type Router struct {
	static     repository.Fetcher
	newBrowser BrowserFactory

	mu      sync.Mutex
	browser Browser
}

func NewRouter(static repository.Fetcher, newBrowser BrowserFactory) *Router {
	return &Router{static: static, newBrowser: newBrowser}
}

func (r *Router) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	switch req.Mode {
	case entity.RenderStatic, "":
		return r.static.Fetch(ctx, req)
	case entity.RenderDynamic:
		b, err := r.browserFor(ctx, req.NeedImages)
		if err != nil {
			return nil, &Error{Kind: KindTransport, URL: req.URL, Err: err}
		}
		return b.Fetch(ctx, req)
	}
	return nil, fmt.Errorf("unknown render mode %q", req.Mode)
}

func (r *Router) browserFor(ctx context.Context, withImages bool) (Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	if r.newBrowser == nil {
		return nil, fmt.Errorf("dynamic rendering is not configured")
	}
	b, err := r.newBrowser(ctx, withImages)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	r.browser = b
	return b, nil
}

// Close shuts down the browser if one was started.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		r.browser.Close()
		r.browser = nil
	}
}
