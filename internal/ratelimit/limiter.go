// Package ratelimit enforces per-source request budgets over a rolling window.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/pkg/config"
	"github.com/user/imo-scraper/pkg/metrics"
)

// PolicyFunc returns the policy of a source.
type PolicyFunc func(entity.Source) config.RatePolicy

type sourceState struct {
	// lock is a one-slot semaphore so waiters can give up on cancellation.
	lock   chan struct{}
	window []time.Time
	last   time.Time
}

// Limiter grants permission to issue one request for a source. Each source
// has its own lock; holders of different sources never contend.
type Limiter struct {
	policies PolicyFunc
	store    repository.WindowStore
	logger   *zap.Logger
	metrics  *metrics.Metrics

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64

	mu     sync.Mutex
	states map[entity.Source]*sourceState
}

type Option func(*Limiter)

// WithStore persists the windows of quota-strict sources and shares them
// with every limiter using the same store.
func WithStore(s repository.WindowStore) Option {
	return func(l *Limiter) { l.store = s }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.logger = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithClock replaces the wall clock and the sleeper, mainly for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithJitter replaces the random source used for the inter-request jitter.
// fn must return a value in [0, n).
func WithJitter(fn func(n int64) int64) Option {
	return func(l *Limiter) { l.jitter = fn }
}

func New(policies PolicyFunc, opts ...Option) *Limiter {
	l := &Limiter{
		policies: policies,
		logger:   zap.NewNop(),
		now:      time.Now,
		sleep:    sleepCtx,
		jitter:   rand.Int64N,
		states:   make(map[entity.Source]*sourceState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) state(src entity.Source) *sourceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[src]
	if !ok {
		st = &sourceState{lock: make(chan struct{}, 1)}
		l.states[src] = st
	}
	return st
}

// Acquire blocks until a request for src may be issued. It returns
// repository.ErrRateExceeded when the budget cannot be met before deadline
// (zero means no deadline) and ctx.Err() when ctx is done first.
//
// Quota-strict sources with a store re-read the stored window on every
// attempt, so grants made by other processes count against this one. A store
// implementing repository.WindowReserver records the grant atomically.
func (l *Limiter) Acquire(ctx context.Context, src entity.Source, deadline time.Time) error {
	st := l.state(src)
	if err := l.lock(ctx, st, deadline); err != nil {
		return err
	}
	defer func() { <-st.lock }()

	p := l.policies(src)
	window := p.Window()
	shared := p.QuotaStrict && l.store != nil
	reserver, _ := l.store.(repository.WindowReserver)

	gap := time.Duration(p.MinIntervalMS) * time.Millisecond
	jittered := false
	for {
		if shared {
			l.reload(ctx, src, st, window)
		}

		now := l.now()
		st.window = prune(st.window, now.Add(-window))
		if len(st.window) >= p.MaxPerWindow {
			free := st.window[0].Add(window)
			if !deadline.IsZero() && free.After(deadline) {
				l.metrics.RateDenied(string(src))
				return fmt.Errorf("%s: %d requests in the last %s: %w", src, len(st.window), window, repository.ErrRateExceeded)
			}
			if err := l.sleep(ctx, free.Sub(now)); err != nil {
				return err
			}
			continue
		}

		if !st.last.IsZero() {
			if !jittered && p.JitterMS > 0 {
				gap += time.Duration(l.jitter(int64(p.JitterMS))) * time.Millisecond
			}
			jittered = true
			if next := st.last.Add(gap); next.After(now) {
				if !deadline.IsZero() && next.After(deadline) {
					l.metrics.RateDenied(string(src))
					return fmt.Errorf("%s: next slot at %s: %w", src, next.Format(time.RFC3339), repository.ErrRateExceeded)
				}
				if err := l.sleep(ctx, next.Sub(now)); err != nil {
					return err
				}
				continue
			}
		}

		if shared && reserver != nil {
			ok, stored, err := reserver.Reserve(ctx, src, now, window, p.MaxPerWindow)
			if err != nil {
				l.logger.Warn("reserve rate slot", zap.String("source", string(src)), zap.Error(err))
			} else if !ok {
				st.window = prune(mergeSorted(st.window, stored), now.Add(-window))
				if len(st.window) < p.MaxPerWindow {
					l.metrics.RateDenied(string(src))
					return fmt.Errorf("%s: slot refused by the shared window: %w", src, repository.ErrRateExceeded)
				}
				continue
			}
		}

		st.window = append(st.window, now)
		st.last = now

		if shared && reserver == nil {
			w := entity.RateWindow{Source: src, Requests: append([]time.Time(nil), st.window...)}
			if err := l.store.Save(ctx, w); err != nil {
				l.logger.Warn("save rate window", zap.String("source", string(src)), zap.Error(err))
			}
		}
		return nil
	}
}

// reload merges the stored window into st. Load failures keep the local view.
func (l *Limiter) reload(ctx context.Context, src entity.Source, st *sourceState, window time.Duration) {
	stored, err := l.store.Load(ctx, src, l.now().Add(-window))
	if err != nil {
		l.logger.Warn("load rate window", zap.String("source", string(src)), zap.Error(err))
		return
	}
	st.window = mergeSorted(st.window, stored)
	if n := len(st.window); n > 0 && st.window[n-1].After(st.last) {
		st.last = st.window[n-1]
	}
}

// Granted returns the timestamps currently inside the window of src.
func (l *Limiter) Granted(src entity.Source) []time.Time {
	st := l.state(src)
	st.lock <- struct{}{}
	defer func() { <-st.lock }()
	st.window = prune(st.window, l.now().Add(-l.policies(src).Window()))
	return append([]time.Time(nil), st.window...)
}

func (l *Limiter) lock(ctx context.Context, st *sourceState, deadline time.Time) error {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		d := deadline.Sub(l.now())
		if d <= 0 {
			select {
			case st.lock <- struct{}{}:
				return nil
			default:
				return repository.ErrRateExceeded
			}
		}
		t := time.NewTimer(d)
		defer t.Stop()
		expired = t.C
	}
	select {
	case st.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return repository.ErrRateExceeded
	}
}

// prune drops timestamps at or before cutoff. ts is ascending.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

func mergeSorted(a, b []time.Time) []time.Time {
	out := make([]time.Time, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i].Before(b[j])):
			out = append(out, a[i])
			i++
		case i < len(a) && a[i].Equal(b[j]):
			out = append(out, a[i])
			i++
			j++
		default:
			out = append(out, b[j])
			j++
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
