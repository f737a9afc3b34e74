package repository

import (
	"context"
	"time"

	"github.com/user/imo-scraper/internal/entity"
)

// ListingRepository persists canonical listings keyed by canonical URL.
type ListingRepository interface {
	// Upsert inserts the listing with first_seen_at = last_seen_at = now, or
	// refreshes last_seen_at and the mutable fields of an existing row.
	// It must be serializable with respect to the same canonical URL.
	Upsert(ctx context.Context, l *entity.Listing, now time.Time) (entity.Outcome, error)
	// KnownURLs returns every canonical URL stored for a source.
	KnownURLs(ctx context.Context, source entity.Source) (map[string]struct{}, error)
}
