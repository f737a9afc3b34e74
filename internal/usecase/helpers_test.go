package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/internal/source"
)

// fakeAdapter serves pre-parsed pages keyed by URL.
type fakeAdapter struct {
	src        entity.Source
	seeds      []string
	pages      map[string]source.ListPage
	badLayout  map[string]bool
	withDetail bool
}

func newFakeAdapter(seeds ...string) *fakeAdapter {
	return &fakeAdapter{
		src:       entity.SourceSuperCasa,
		seeds:     seeds,
		pages:     make(map[string]source.ListPage),
		badLayout: make(map[string]bool),
	}
}

func (a *fakeAdapter) Source() entity.Source { return a.src }
func (a *fakeAdapter) SeedURLs(entity.ListingKind) []string { return a.seeds }
func (a *fakeAdapter) NeedsDetailPage(c entity.RawListing) bool { return a.withDetail }

func (a *fakeAdapter) PageURL(seed string, n int) string {
	if n <= 1 {
		return seed
	}
	return fmt.Sprintf("%s?page=%d", seed, n)
}

func (a *fakeAdapter) ListRequest(u string) entity.FetchRequest {
	return entity.FetchRequest{URL: u, Mode: entity.RenderStatic}
}

func (a *fakeAdapter) ParseListPage(resp *entity.FetchResponse) (source.ListPage, error) {
	if a.badLayout[resp.FinalURL] {
		return source.ListPage{}, repository.ErrUnrecognizedLayout
	}
	return a.pages[resp.FinalURL], nil
}

func (a *fakeAdapter) DetailRequest(c entity.RawListing) entity.FetchRequest {
	return entity.FetchRequest{URL: c.URL + "/detail", Mode: entity.RenderDynamic}
}

func (a *fakeAdapter) ParseDetailPage(c entity.RawListing, _ *entity.FetchResponse) (entity.RawListing, error) {
	c.Description = "detailed"
	return c, nil
}

func (a *fakeAdapter) ExtractImages(_ context.Context, c entity.RawListing, _ repository.Fetcher) ([]string, error) {
	return c.ImageURLs, nil
}

// scriptedFetcher returns the queued errors of a URL in order, then succeeds.
type scriptedFetcher struct {
	mu       sync.Mutex
	errs     map[string][]error
	calls    []entity.FetchRequest
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{errs: make(map[string][]error)}
}

func (f *scriptedFetcher) failWith(url string, errs ...error) {
	f.errs[url] = append(f.errs[url], errs...)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	var err error
	if q := f.errs[req.URL]; len(q) > 0 {
		err, f.errs[req.URL] = q[0], q[1:]
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &entity.FetchResponse{StatusCode: 200, FinalURL: req.URL, Body: []byte("<html></html>")}, nil
}

func (f *scriptedFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.URL)
	}
	return out
}

func (f *scriptedFetcher) listURLs() []string {
	var out []string
	for _, u := range f.urls() {
		if !strings.HasSuffix(u, "/detail") {
			out = append(out, u)
		}
	}
	return out
}

func cand(id, price string) entity.RawListing {
	return entity.RawListing{
		Source:    entity.SourceSuperCasa,
		URL:       "https://supercasa.pt/arrendar/i" + id,
		Title:     "Apartamento " + id,
		ZoneText:  "Benfica, Lisboa",
		PriceText: price,
		Bedrooms:  "T2",
		AreaText:  "80 m²",
		ImageURLs: []string{"https://media.supercasa.pt/" + id + "/a.jpg"},
	}
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyNew(ctx context.Context, l *entity.Listing) error {
	return m.Called(ctx, l).Error(0)
}

type mockListingRepo struct {
	mock.Mock
}

func (m *mockListingRepo) Upsert(ctx context.Context, l *entity.Listing, now time.Time) (entity.Outcome, error) {
	args := m.Called(ctx, l, now)
	return args.Get(0).(entity.Outcome), args.Error(1)
}

func (m *mockListingRepo) KnownURLs(ctx context.Context, src entity.Source) (map[string]struct{}, error) {
	args := m.Called(ctx, src)
	set, _ := args.Get(0).(map[string]struct{})
	return set, args.Error(1)
}

type stubResolver struct {
	loc entity.Location
}

func (s stubResolver) Resolve(string) entity.Location { return s.loc }

func intPtr(i int) *int { return &i }

