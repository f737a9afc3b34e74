// Package source implements one adapter per real-estate site. Every adapter
// exposes the same capability set; site differences live in data (selectors,
// render needs, pagination scheme) plus a few per-site hooks.
package source

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
)

// DefaultMaxPages caps pagination per seed.
const DefaultMaxPages = 50

// ListPage is what one list page yields.
type ListPage struct {
	Candidates []entity.RawListing
	HasNext    bool
	// NextURL is empty when the page signals a next page without linking it.
	NextURL string
	// Skipped counts cards that could not be read as candidates.
	Skipped int
}

// Adapter is the per-site strategy driven by a worker.
type Adapter interface {
	Source() entity.Source
	SeedURLs(kind entity.ListingKind) []string
	// PageURL builds the URL of page n (1-based) of a seed.
	PageURL(seed string, n int) string
	ListRequest(pageURL string) entity.FetchRequest
	// ParseListPage returns repository.ErrUnrecognizedLayout when the page has
	// no candidates and none of the structure of a results page.
	ParseListPage(resp *entity.FetchResponse) (ListPage, error)
	NeedsDetailPage(c entity.RawListing) bool
	DetailRequest(c entity.RawListing) entity.FetchRequest
	ParseDetailPage(c entity.RawListing, resp *entity.FetchResponse) (entity.RawListing, error)
	// ExtractImages returns the candidate's image URLs, rendering the listing
	// through controller when the site only exposes its gallery to a browser.
	// controller may be nil.
	ExtractImages(ctx context.Context, c entity.RawListing, controller repository.Fetcher) ([]string, error)
}
