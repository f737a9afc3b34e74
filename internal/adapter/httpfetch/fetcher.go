package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/fetch"
	"github.com/user/imo-scraper/internal/repository"
)

// maxBody caps how much of a page is read into memory.
const maxBody = 16 << 20

// Fetcher is the static render mode: one plain HTTP request per call.
// Clients are kept per proxy so connections are reused.
type Fetcher struct {
	base *http.Transport

	mu      sync.Mutex
	clients map[string]*http.Client
}

var _ repository.Fetcher = (*Fetcher)(nil)

func New() *Fetcher {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConnsPerHost = 4
	base.ResponseHeaderTimeout = 30 * time.Second
	return &Fetcher{base: base, clients: make(map[string]*http.Client)}
}

func (f *Fetcher) client(proxy string) (*http.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[proxy]; ok {
		return c, nil
	}
	tr := f.base.Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		tr.Proxy = http.ProxyURL(u)
	}
	c := &http.Client{Transport: tr}
	f.clients[proxy] = c
	return c, nil
}

func (f *Fetcher) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	client, err := f.client(req.Proxy)
	if err != nil {
		return nil, &fetch.Error{Kind: fetch.KindTransport, URL: req.URL, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return nil, &fetch.Error{Kind: fetch.KindTransport, URL: req.URL, Err: err}
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fetch.Wrap(ctx, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fetch.Wrap(ctx, req.URL, fmt.Errorf("read body: %w", err))
	}

	return &entity.FetchResponse{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Latency:     time.Since(start),
	}, nil
}
