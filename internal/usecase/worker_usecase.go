package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/canon"
	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/fetch"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/internal/source"
	"github.com/user/imo-scraper/pkg/metrics"
)

// Run notes and failure reasons written to scraper_runs.
const (
	ReasonBlocked            = "blocked"
	ReasonUnrecognizedLayout = "unrecognized_layout"
	ReasonCancelled          = "cancelled"
	NoteRunTimeout           = "run_timeout"
	NoteRateExceeded         = "rate_exceeded"
)

// maxConsecutiveSkips ends a seed after that many pages in a row were
// skipped for retryable fetch errors.
const maxConsecutiveSkips = 3

type WorkerConfig struct {
	Kind     entity.ListingKind
	MaxPages int
	// PageTimeout bounds the total time spent on one page across all its
	// attempts and backoff. A dynamic render without a timeout of its own
	// gets the whole budget.
	PageTimeout time.Duration
	// RequestTimeout is the per-attempt limit of a static request without
	// a timeout of its own. Zero leaves it to the fetcher.
	RequestTimeout time.Duration
	// RetryBase and RetryAttempts drive the backoff on timeout, transport
	// and 5xx errors: base * 2^(attempt-1), jittered by +/-25%.
	RetryBase     time.Duration
	RetryAttempts int
	// NotifyThreshold is in whole euros; zero disables notifications.
	NotifyThreshold int
}

type WorkerDeps struct {
	Adapter  source.Adapter
	Fetcher  repository.Fetcher
	Upserter *ListingUpserter
	Ledger   *Ledger
	Seen     repository.SeenIndex
	Notifier repository.Notifier
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Worker runs the pagination state machine of one source. It is single
// threaded and owns its fetcher for the duration of a run.
type Worker struct {
	WorkerDeps
	cfg    WorkerConfig
	src    entity.Source
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
	now    func() time.Time
}

func NewWorker(deps WorkerDeps, cfg WorkerConfig) *Worker {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = source.DefaultMaxPages
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	src := deps.Adapter.Source()
	return &Worker{
		WorkerDeps: deps,
		cfg:        cfg,
		src:        src,
		logger:     log.With(zap.String("source", string(src))),
		sleep:      sleepCtx,
		jitter:     rand.Float64,
		now:        time.Now,
	}
}

// stop is why a seed or the whole run ended early.
type stop struct {
	fail string // non-empty fails the run
	note string // non-empty completes the run with a note
	err  error
}

func (s *stop) ends() bool { return s != nil && (s.fail != "" || s.note != "") }

// Run executes one ScraperRun under main. ctx carries the run deadline.
// The returned run is always in a terminal state unless err is non-nil.
func (w *Worker) Run(ctx context.Context, main *entity.MainRun) (*entity.ScraperRun, error) {
	// Ledger writes must land even after the run deadline or a cancel.
	bookCtx := context.WithoutCancel(ctx)

	run, err := w.Ledger.StartScraper(bookCtx, main, w.src)
	if err != nil {
		return nil, err
	}
	w.Metrics.WorkerStarted()
	defer w.Metrics.WorkerStopped()
	log := w.logger.With(zap.Int64("run_id", run.ID))

	known := w.loadSeen(ctx, log)

	var notes []string
	var result *stop
	for _, seed := range w.Adapter.SeedURLs(w.cfg.Kind) {
		s := w.paginate(ctx, bookCtx, run, seed, known, log)
		if s.ends() {
			result = s
			break
		}
		if s != nil && s.note == "" && s.err != nil {
			notes = append(notes, s.err.Error())
		}
	}

	switch {
	case result != nil && result.fail != "":
		log.Error("scraper run failed", zap.String("reason", result.fail), zap.Error(result.err))
		err = w.Ledger.Fail(bookCtx, run, result.fail)
	case result != nil:
		notes = append(notes, result.note)
		err = w.Ledger.Complete(bookCtx, run, joinNotes(notes))
	default:
		err = w.Ledger.Complete(bookCtx, run, joinNotes(notes))
	}
	if run.DurationS != nil {
		w.Metrics.RunFinished(string(w.src), string(run.Status), *run.DurationS)
	}
	return run, err
}

func (w *Worker) loadSeen(ctx context.Context, log *zap.Logger) map[string]struct{} {
	if w.Seen == nil {
		return make(map[string]struct{})
	}
	known, err := w.Seen.Load(ctx, w.src)
	if err != nil {
		log.Warn("seen index unavailable, relying on store dedup", zap.Error(err))
		return make(map[string]struct{})
	}
	log.Info("seen index loaded", zap.Int("urls", len(known)))
	return known
}

// paginate walks one seed. A nil result means the seed ended normally; a
// result with only err set is a note-worthy but non-terminal seed end.
func (w *Worker) paginate(ctx, bookCtx context.Context, run *entity.ScraperRun, seed string, known map[string]struct{}, log *zap.Logger) *stop {
	pageURL := seed
	skipped := 0
	for n := 1; n <= w.cfg.MaxPages; n++ {
		if s := w.checkCtx(ctx); s != nil {
			return s
		}
		plog := log.With(zap.Int("page", n), zap.String("url", pageURL))

		resp, err := w.fetchWithRetry(ctx, w.Adapter.ListRequest(pageURL), plog)
		if err != nil {
			if s := w.terminal(ctx, err); s != nil {
				return s
			}
			fe, _ := fetch.AsError(err)
			if fe != nil && fe.Retryable() {
				skipped++
				plog.Warn("page skipped after retries", zap.Error(err))
				if skipped >= maxConsecutiveSkips {
					return &stop{err: fmt.Errorf("%d consecutive pages skipped at page %d: %w", skipped, n, err)}
				}
				pageURL = w.Adapter.PageURL(seed, n+1)
				continue
			}
			plog.Warn("seed ended on fetch error", zap.Error(err))
			return &stop{err: fmt.Errorf("page %d: %w", n, err)}
		}
		skipped = 0

		page, err := w.Adapter.ParseListPage(resp)
		if err != nil {
			return &stop{fail: ReasonUnrecognizedLayout, err: err}
		}
		if page.Skipped > 0 {
			plog.Warn("unreadable candidates skipped", zap.Int("count", page.Skipped))
		}
		if len(page.Candidates) == 0 {
			plog.Info("empty page, seed done")
			return nil
		}

		seen, created, allKnown, s := w.processPage(ctx, page.Candidates, known, plog)
		if err := w.Ledger.RecordPage(bookCtx, run, seen, created); err != nil {
			plog.Error("record page counters", zap.Error(err))
		}
		plog.Info("page processed",
			zap.Int("candidates", len(page.Candidates)),
			zap.Int("seen", seen),
			zap.Int("new", created),
			zap.Bool("has_next", page.HasNext),
		)
		if s != nil {
			return s
		}

		if !page.HasNext {
			return nil
		}
		if allKnown {
			plog.Info("every candidate already known, seed done")
			return nil
		}
		if page.NextURL != "" {
			pageURL = page.NextURL
		} else {
			pageURL = w.Adapter.PageURL(seed, n+1)
		}
	}
	log.Info("max pages reached", zap.String("seed", seed), zap.Int("max_pages", w.cfg.MaxPages))
	return nil
}

// processPage upserts the candidates of one page in parse order.
func (w *Worker) processPage(ctx context.Context, cands []entity.RawListing, known map[string]struct{}, log *zap.Logger) (seen, created int, allKnown bool, s *stop) {
	allKnown = true
	for _, c := range cands {
		if s := w.checkCtx(ctx); s != nil {
			return seen, created, false, s
		}
		c.Source = w.src
		c.Kind = w.cfg.Kind

		canonical, err := canon.ListingURL(w.src, c.URL, c.SiteID)
		_, isKnown := known[canonical]
		if err != nil || !isKnown {
			allKnown = false
		}
		if err == nil && !isKnown {
			c, s = w.enrich(ctx, c, log)
			if s != nil {
				return seen, created, false, s
			}
		}

		l, outcome, err := w.Upserter.Upsert(ctx, c)
		if err != nil {
			if s := w.checkCtx(ctx); s != nil {
				return seen, created, false, s
			}
			log.Error("candidate skipped", zap.String("url", c.URL), zap.Error(err))
			continue
		}
		switch outcome {
		case entity.OutcomeSkippedInvalid:
			continue
		case entity.OutcomeCreated:
			created++
			known[l.CanonicalURL] = struct{}{}
			w.afterCreate(ctx, l, log)
		}
		seen++
	}
	return seen, created, allKnown, nil
}

// enrich fetches the detail page and images of a new candidate. Failures
// other than a block or the run ending fall back to the list data.
func (w *Worker) enrich(ctx context.Context, c entity.RawListing, log *zap.Logger) (entity.RawListing, *stop) {
	if w.Adapter.NeedsDetailPage(c) {
		req := w.Adapter.DetailRequest(c)
		resp, err := w.fetchWithRetry(ctx, req, log)
		if err != nil {
			if s := w.terminal(ctx, err); s != nil {
				return c, s
			}
			log.Warn("detail page unavailable, keeping list data", zap.String("url", c.URL), zap.Error(err))
		} else if enriched, err := w.Adapter.ParseDetailPage(c, resp); err != nil {
			log.Warn("detail page unreadable, keeping list data", zap.String("url", c.URL), zap.Error(err))
		} else {
			c = enriched
		}
	}

	if len(c.ImageURLs) == 0 {
		imgs, err := w.Adapter.ExtractImages(ctx, c, w.Fetcher)
		if err != nil {
			if s := w.terminal(ctx, err); s != nil {
				return c, s
			}
			log.Warn("image extraction failed", zap.String("url", c.URL), zap.Error(err))
		}
		c.ImageURLs = imgs
	}
	return c, nil
}

func (w *Worker) afterCreate(ctx context.Context, l *entity.Listing, log *zap.Logger) {
	if w.Seen != nil {
		if err := w.Seen.Add(ctx, w.src, l.CanonicalURL); err != nil {
			log.Warn("seen index add failed", zap.String("url", l.CanonicalURL), zap.Error(err))
		}
	}
	if w.Notifier == nil || w.cfg.NotifyThreshold <= 0 {
		return
	}
	if l.PriceMinor > int64(w.cfg.NotifyThreshold)*100 {
		return
	}
	if err := w.Notifier.NotifyNew(ctx, l); err != nil {
		log.Warn("notify failed", zap.String("url", l.CanonicalURL), zap.Error(err))
	}
}

// fetchWithRetry retries retryable fetch errors with jittered exponential
// backoff. Any other error is returned at once.
func (w *Worker) fetchWithRetry(ctx context.Context, req entity.FetchRequest, log *zap.Logger) (*entity.FetchResponse, error) {
	perAttempt := req.Timeout
	if perAttempt <= 0 {
		perAttempt = w.cfg.RequestTimeout
		if req.Mode == entity.RenderDynamic {
			perAttempt = w.cfg.PageTimeout
		}
	}
	var pageEnd time.Time
	if w.cfg.PageTimeout > 0 {
		pageEnd = w.now().Add(w.cfg.PageTimeout)
	}
	var lastErr error
	for attempt := 0; attempt <= w.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := w.backoff(attempt)
			if !pageEnd.IsZero() && !w.now().Add(delay).Before(pageEnd) {
				log.Info("page budget spent", zap.Int("attempts", attempt), zap.Error(lastErr))
				return nil, &fetch.Error{Kind: fetch.KindTimeout, URL: req.URL, Err: lastErr}
			}
			log.Info("retrying fetch", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := w.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		req.Timeout = perAttempt
		if !pageEnd.IsZero() {
			if left := pageEnd.Sub(w.now()); perAttempt <= 0 || left < perAttempt {
				req.Timeout = left
			}
		}
		resp, err := w.Fetcher.Fetch(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		fe, ok := fetch.AsError(err)
		if !ok || !fe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.RetryBase << (attempt - 1)
	return time.Duration(float64(d) * (0.75 + 0.5*w.jitter()))
}

// terminal maps errors that end the whole run. It returns nil for errors
// that only affect the current page or candidate.
func (w *Worker) terminal(ctx context.Context, err error) *stop {
	switch {
	case errors.Is(err, repository.ErrRateExceeded):
		return &stop{note: NoteRateExceeded, err: err}
	case fetch.IsKind(err, fetch.KindBlocked):
		return &stop{fail: ReasonBlocked, err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if s := w.checkCtx(ctx); s != nil {
			return s
		}
	}
	return nil
}

// checkCtx reports the end of the run: its deadline completes it with the
// partial counters, a cancel fails it.
func (w *Worker) checkCtx(ctx context.Context) *stop {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &stop{note: NoteRunTimeout, err: err}
	default:
		return &stop{fail: ReasonCancelled, err: err}
	}
}

func joinNotes(notes []string) string {
	kept := notes[:0]
	for _, n := range notes {
		if n != "" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, "; ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
