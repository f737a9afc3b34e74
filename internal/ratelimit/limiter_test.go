package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/pkg/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

type memWindowStore struct {
	mu    sync.Mutex
	data  map[entity.Source][]time.Time
	saves int
}

func (s *memWindowStore) Load(_ context.Context, src entity.Source, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, t := range s.data[src] {
		if t.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memWindowStore) Save(_ context.Context, w entity.RateWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[w.Source] = append([]time.Time(nil), w.Requests...)
	s.saves++
	return nil
}

func fixed(p config.RatePolicy) PolicyFunc {
	return func(entity.Source) config.RatePolicy { return p }
}

func newTestLimiter(clock *fakeClock, p config.RatePolicy, opts ...Option) *Limiter {
	opts = append([]Option{
		WithClock(clock.Now, clock.Sleep),
		WithJitter(func(int64) int64 { return 0 }),
	}, opts...)
	return New(fixed(p), opts...)
}

func TestAcquireNeverExceedsWindow(t *testing.T) {
	clock := newFakeClock()
	p := config.RatePolicy{MaxPerWindow: 3, WindowS: 60, MinIntervalMS: 5000}
	l := newTestLimiter(clock, p)

	var grants []time.Time
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Acquire(context.Background(), entity.SourceRemax, time.Time{}))
		grants = append(grants, clock.Now())
	}

	for i, g := range grants {
		n := 0
		for _, other := range grants[:i+1] {
			if other.After(g.Add(-p.Window())) {
				n++
			}
		}
		assert.LessOrEqual(t, n, p.MaxPerWindow, "grant %d at %s", i, g)
	}
}

func TestAcquireExceededBeforeDeadline(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 2, WindowS: 3600})
	deadline := clock.Now().Add(time.Minute)

	require.NoError(t, l.Acquire(context.Background(), entity.SourceIdealista, deadline))
	require.NoError(t, l.Acquire(context.Background(), entity.SourceIdealista, deadline))

	err := l.Acquire(context.Background(), entity.SourceIdealista, deadline)
	assert.ErrorIs(t, err, repository.ErrRateExceeded)
	assert.Len(t, l.Granted(entity.SourceIdealista), 2)
}

func TestAcquireWaitsForSlotInsideDeadline(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 1, WindowS: 30})
	start := clock.Now()

	require.NoError(t, l.Acquire(context.Background(), entity.SourceERA, start.Add(time.Minute)))
	require.NoError(t, l.Acquire(context.Background(), entity.SourceERA, start.Add(time.Minute)))
	assert.Equal(t, start.Add(30*time.Second), clock.Now())
}

func TestAcquireCancelled(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 1, WindowS: 3600})
	require.NoError(t, l.Acquire(context.Background(), entity.SourceERA, time.Time{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, entity.SourceERA, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquireAppliesMinIntervalAndJitter(t *testing.T) {
	clock := newFakeClock()
	p := config.RatePolicy{MaxPerWindow: 100, WindowS: 3600, MinIntervalMS: 1000, JitterMS: 500}
	l := newTestLimiter(clock, p, WithJitter(func(n int64) int64 {
		assert.Equal(t, int64(500), n)
		return 250
	}))
	start := clock.Now()

	require.NoError(t, l.Acquire(context.Background(), entity.SourceCasaSapo, time.Time{}))
	assert.Equal(t, start, clock.Now(), "first grant must not wait")

	require.NoError(t, l.Acquire(context.Background(), entity.SourceCasaSapo, time.Time{}))
	assert.Equal(t, start.Add(1250*time.Millisecond), clock.Now())
}

func TestAcquireMinIntervalPastDeadline(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 100, WindowS: 3600, MinIntervalMS: 10000})
	require.NoError(t, l.Acquire(context.Background(), entity.SourceSuperCasa, time.Time{}))

	err := l.Acquire(context.Background(), entity.SourceSuperCasa, clock.Now().Add(time.Second))
	assert.ErrorIs(t, err, repository.ErrRateExceeded)
}

func TestAcquireSourcesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 1, WindowS: 3600})
	deadline := clock.Now().Add(time.Second)

	require.NoError(t, l.Acquire(context.Background(), entity.SourceRemax, deadline))
	require.NoError(t, l.Acquire(context.Background(), entity.SourceERA, deadline))
	assert.ErrorIs(t, l.Acquire(context.Background(), entity.SourceRemax, deadline), repository.ErrRateExceeded)
}

func TestQuotaStrictWindowSurvivesRestart(t *testing.T) {
	clock := newFakeClock()
	p := config.RatePolicy{MaxPerWindow: 3, WindowS: 3600, QuotaStrict: true}
	store := &memWindowStore{data: map[entity.Source][]time.Time{
		entity.SourceIdealista: {
			clock.Now().Add(-2 * time.Hour), // outside the window
			clock.Now().Add(-30 * time.Minute),
			clock.Now().Add(-10 * time.Minute),
		},
	}}
	l := newTestLimiter(clock, p, WithStore(store))
	deadline := clock.Now().Add(time.Minute)

	require.NoError(t, l.Acquire(context.Background(), entity.SourceIdealista, deadline))
	err := l.Acquire(context.Background(), entity.SourceIdealista, deadline)
	assert.ErrorIs(t, err, repository.ErrRateExceeded)

	assert.Equal(t, 1, store.saves)
	assert.Len(t, store.data[entity.SourceIdealista], 3)

	// A fresh limiter sharing the store sees the same budget.
	l2 := newTestLimiter(clock, p, WithStore(store))
	assert.ErrorIs(t, l2.Acquire(context.Background(), entity.SourceIdealista, deadline), repository.ErrRateExceeded)
}

func TestBestEffortSourceDoesNotPersist(t *testing.T) {
	clock := newFakeClock()
	store := &memWindowStore{data: map[entity.Source][]time.Time{}}
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 3, WindowS: 3600}, WithStore(store))

	require.NoError(t, l.Acquire(context.Background(), entity.SourceRemax, time.Time{}))
	assert.Zero(t, store.saves)
}

// sharedWindowStore adds saved timestamps to what is stored, like a sorted set.
type sharedWindowStore struct {
	mu   sync.Mutex
	data []time.Time
}

func (s *sharedWindowStore) Load(_ context.Context, _ entity.Source, since time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Time
	for _, t := range s.data {
		if t.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *sharedWindowStore) Save(_ context.Context, w entity.RateWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = mergeSorted(s.data, w.Requests)
	return nil
}

// reservingStore records grants atomically; beforeReserve runs inside the
// critical section to model a grant by another process.
type reservingStore struct {
	sharedWindowStore
	beforeReserve func(s *reservingStore)
	reserved      int
}

func (s *reservingStore) Reserve(_ context.Context, _ entity.Source, at time.Time, window time.Duration, limit int) (bool, []time.Time, error) {
	if s.beforeReserve != nil {
		s.beforeReserve(s)
		s.beforeReserve = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var inside []time.Time
	for _, t := range s.data {
		if t.After(at.Add(-window)) {
			inside = append(inside, t)
		}
	}
	if len(inside) >= limit {
		return false, inside, nil
	}
	s.data = append(s.data, at)
	s.reserved++
	return true, nil, nil
}

func TestQuotaStrictWindowSharedAcrossLimiters(t *testing.T) {
	clock := newFakeClock()
	p := config.RatePolicy{MaxPerWindow: 2, WindowS: 3600, QuotaStrict: true}
	store := &sharedWindowStore{}
	a := newTestLimiter(clock, p, WithStore(store))
	b := newTestLimiter(clock, p, WithStore(store))
	deadline := clock.Now().Add(time.Minute)

	granted := 0
	for _, l := range []*Limiter{b, a, b, a} {
		err := l.Acquire(context.Background(), entity.SourceIdealista, deadline)
		if err == nil {
			granted++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrRateExceeded)
	}
	assert.Equal(t, 2, granted)
	assert.Len(t, store.data, 2)
}

func TestQuotaStrictReserveRefusedByConcurrentGrant(t *testing.T) {
	clock := newFakeClock()
	p := config.RatePolicy{MaxPerWindow: 2, WindowS: 3600, QuotaStrict: true}
	store := &reservingStore{}
	store.data = []time.Time{clock.Now().Add(-10 * time.Minute)}
	store.beforeReserve = func(s *reservingStore) {
		s.mu.Lock()
		s.data = append(s.data, clock.Now().Add(-time.Second))
		s.mu.Unlock()
	}
	l := newTestLimiter(clock, p, WithStore(store))

	err := l.Acquire(context.Background(), entity.SourceIdealista, clock.Now().Add(time.Minute))
	assert.ErrorIs(t, err, repository.ErrRateExceeded)
	assert.Zero(t, store.reserved)
	assert.Len(t, store.data, 2)
}

func TestQuotaStrictReserveSkipsSave(t *testing.T) {
	clock := newFakeClock()
	store := &reservingStore{}
	l := newTestLimiter(clock, config.RatePolicy{MaxPerWindow: 2, WindowS: 3600, QuotaStrict: true}, WithStore(store))

	require.NoError(t, l.Acquire(context.Background(), entity.SourceIdealista, time.Time{}))
	require.NoError(t, l.Acquire(context.Background(), entity.SourceIdealista, time.Time{}))
	assert.Equal(t, 2, store.reserved)
	assert.Len(t, store.data, 2)
}
