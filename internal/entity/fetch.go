package entity

import "time"

// RenderMode selects between a plain HTTP fetch and a headless browser.
type RenderMode string

const (
	RenderStatic  RenderMode = "static"
	RenderDynamic RenderMode = "dynamic"
)

// BrowserStep is one scripted interaction in dynamic mode.
type BrowserStep struct {
	Selector    string
	Action      string // "click" or "scroll_into_view"
	PostDelayMS int
}

type FetchRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Mode    RenderMode
	Timeout time.Duration

	// UseProxy asks for a proxy from the identity pool; Proxy pins one.
	UseProxy bool
	Proxy    string

	// Dynamic-only options.
	WaitSelector   string
	ScrollToBottom bool
	Steps          []BrowserStep
	NeedImages     bool
}

type FetchResponse struct {
	StatusCode  int
	FinalURL    string
	Body        []byte
	ContentType string
	Latency     time.Duration
}

// RateWindow is the persisted list of recent request timestamps for a source.
type RateWindow struct {
	Source   Source
	Requests []time.Time
}
