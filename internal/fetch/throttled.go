package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/pkg/metrics"
)

// Acquirer is the part of the rate limiter the fetcher needs.
type Acquirer interface {
	Acquire(ctx context.Context, src entity.Source, deadline time.Time) error
}

// Throttled is the Fetcher handed to one source's worker. Before every
// request it takes a slot from the rate limiter, then applies header hygiene
// and the per-request timeout, and finally turns blocked or non-2xx
// responses into *Error.
type Throttled struct {
	source         entity.Source
	next           repository.Fetcher
	limiter        Acquirer
	identity       *Identity
	acceptLanguage string
	timeout        time.Duration
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

type ThrottledConfig struct {
	Source         entity.Source
	Next           repository.Fetcher
	Limiter        Acquirer
	Identity       *Identity
	AcceptLanguage string
	// Timeout applies when a request carries none.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func NewThrottled(cfg ThrottledConfig) *Throttled {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Throttled{
		source:         cfg.Source,
		next:           cfg.Next,
		limiter:        cfg.Limiter,
		identity:       cfg.Identity,
		acceptLanguage: cfg.AcceptLanguage,
		timeout:        cfg.Timeout,
		logger:         log.With(zap.String("source", string(cfg.Source))),
		metrics:        cfg.Metrics,
	}
}

// Fetch waits for the limiter until the deadline of ctx, so callers pass
// their run context rather than a per-page one. A context that ends while
// waiting or fetching is returned as ctx.Err().
func (t *Throttled) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	if t.limiter != nil {
		deadline, _ := ctx.Deadline()
		if err := t.limiter.Acquire(ctx, t.source, deadline); err != nil {
			return nil, err
		}
	}

	req = t.prepare(req)
	reqCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := t.next.Fetch(reqCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		err = Wrap(reqCtx, req.URL, err)
		t.failed(req, err)
		return nil, err
	}
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	if resp.FinalURL == "" {
		resp.FinalURL = req.URL
	}
	if err := Classify(resp); err != nil {
		t.failed(req, err)
		return nil, err
	}

	t.metrics.PageFetched(string(t.source), string(req.Mode), resp.Latency.Seconds())
	t.logger.Debug("fetched",
		zap.String("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int64("latency_ms", resp.Latency.Milliseconds()),
		zap.String("mode", string(req.Mode)),
	)
	return resp, nil
}

func (t *Throttled) prepare(req entity.FetchRequest) entity.FetchRequest {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Mode == "" {
		req.Mode = entity.RenderStatic
	}
	if req.Timeout <= 0 {
		req.Timeout = t.timeout
	}
	if req.Timeout <= 0 {
		req.Timeout = 30 * time.Second
	}

	headers := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if _, ok := headers["User-Agent"]; !ok && t.identity != nil {
		if ua := t.identity.UserAgent(t.source); ua != "" {
			headers["User-Agent"] = ua
		}
	}
	if _, ok := headers["Accept-Language"]; !ok && t.acceptLanguage != "" {
		headers["Accept-Language"] = t.acceptLanguage
	}
	req.Headers = headers

	if req.UseProxy && req.Proxy == "" && t.identity != nil {
		req.Proxy = t.identity.Proxy()
	}
	return req
}

func (t *Throttled) failed(req entity.FetchRequest, err error) {
	code := "fetch_transport"
	var fe *Error
	if errors.As(err, &fe) {
		code = fe.Code()
	}
	t.metrics.FetchError(string(t.source), code)
	t.logger.Warn("fetch failed",
		zap.String("url", req.URL),
		zap.String("kind", code),
		zap.Error(err),
	)
}
