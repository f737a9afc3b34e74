package chromedp_fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/fetch"
)

// stealthScript runs before any page script and removes the usual
// automation giveaways.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
for (const k of Object.keys(window)) {
  if (/^cdc_|^\$cdc_|^__webdriver|^__selenium|^__driver/.test(k)) { try { delete window[k]; } catch (e) {} }
}
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['pt-PT', 'pt', 'en']});
`

const scrollScript = `
(async () => {
  let last = -1;
  for (let i = 0; i < 30 && document.body.scrollHeight !== last; i++) {
    last = document.body.scrollHeight;
    window.scrollTo(0, last);
    await new Promise(r => setTimeout(r, 400));
  }
  return true;
})()
`

type Config struct {
	UserAgent  string
	Proxy      string
	WithImages bool
	ExecPath   string
	Logger     *zap.Logger
}

// Browser owns one headless Chrome process. Each Fetch opens a fresh tab.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
}

var _ fetch.Browser = (*Browser)(nil)

// NewBrowser starts Chrome and keeps it running until Close.
func NewBrowser(ctx context.Context, cfg Config) (*Browser, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
	)
	if !cfg.WithImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// The browser outlives any single request context.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Sugar().Debugf))
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	return &Browser{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancel:      cancel,
		logger:      log,
	}, nil
}

// Fetch renders req.URL in a new tab and returns the resulting DOM.
func (b *Browser) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		tabCtx, cancel = context.WithTimeout(tabCtx, req.Timeout)
		defer cancel()
	}
	// Tie the tab to the caller's cancellation as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		mu          sync.Mutex
		status      int
		contentType string
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			status = int(e.Response.Status)
			contentType = e.Response.MimeType
			mu.Unlock()
		}
	})

	var html, finalURL string
	start := time.Now()
	err := chromedp.Run(tabCtx, b.actions(req, &html, &finalURL)...)
	latency := time.Since(start)
	if err != nil {
		b.logger.Debug("render failed", zap.String("url", req.URL), zap.Error(err))
		return nil, fetch.Wrap(tabCtx, req.URL, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if status == 0 {
		status = 200
	}
	return &entity.FetchResponse{
		StatusCode:  status,
		FinalURL:    finalURL,
		Body:        []byte(html),
		ContentType: contentType,
		Latency:     latency,
	}, nil
}

func (b *Browser) actions(req entity.FetchRequest, html, finalURL *string) []chromedp.Action {
	acts := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if ua, lang := req.Headers["User-Agent"], req.Headers["Accept-Language"]; ua != "" {
		acts = append(acts, emulation.SetUserAgentOverride(ua).WithAcceptLanguage(lang))
	}
	if extra := extraHeaders(req.Headers); len(extra) > 0 {
		acts = append(acts, network.SetExtraHTTPHeaders(extra))
	}

	acts = append(acts, chromedp.Navigate(req.URL))
	if req.WaitSelector != "" {
		acts = append(acts, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery))
	} else {
		acts = append(acts, chromedp.WaitReady("body", chromedp.ByQuery))
	}
	if req.ScrollToBottom {
		acts = append(acts, chromedp.Evaluate(scrollScript, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	}
	for _, step := range req.Steps {
		switch step.Action {
		case "click":
			acts = append(acts, chromedp.Click(step.Selector, chromedp.ByQuery, chromedp.NodeVisible))
		case "scroll_into_view":
			acts = append(acts, chromedp.ScrollIntoView(step.Selector, chromedp.ByQuery))
		}
		if step.PostDelayMS > 0 {
			acts = append(acts, chromedp.Sleep(time.Duration(step.PostDelayMS)*time.Millisecond))
		}
	}
	return append(acts,
		chromedp.Location(finalURL),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

func extraHeaders(h map[string]string) network.Headers {
	out := network.Headers{}
	for k, v := range h {
		if k == "User-Agent" || k == "Accept-Language" {
			continue
		}
		out[k] = v
	}
	return out
}

// Close kills the browser process.
func (b *Browser) Close() {
	b.cancel()
	b.cancelAlloc()
}

// Factory returns a fetch.BrowserFactory starting browsers from base.
func Factory(base Config) fetch.BrowserFactory {
	return func(ctx context.Context, withImages bool) (fetch.Browser, error) {
		cfg := base
		cfg.WithImages = withImages
		return NewBrowser(ctx, cfg)
	}
}
