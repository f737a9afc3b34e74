package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/imo-scraper/internal/entity"
)

// ListingRepoImpl relies on the unique index on canonical_url for
// serializability: concurrent upserts of one URL resolve inside Postgres.
type ListingRepoImpl struct {
	db *pgxpool.Pool
}

func NewListingRepo(db *pgxpool.Pool) *ListingRepoImpl {
	return &ListingRepoImpl{db: db}
}

// Upsert inserts l or refreshes the stored row. Empty text fields, null
// numbers and empty image lists never overwrite stored values.
func (r *ListingRepoImpl) Upsert(ctx context.Context, l *entity.Listing, now time.Time) (entity.Outcome, error) {
	query := `
		INSERT INTO listings (id, canonical_url, source, listing_kind, title, zone_text, price_minor,
			bedrooms_raw, bedrooms_num, area_m2, floor_raw, description, image_urls,
			parish_id, county_id, district_id, first_seen_at, last_seen_at, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17, $17)
		ON CONFLICT (canonical_url) DO UPDATE SET
			listing_kind = EXCLUDED.listing_kind,
			title        = COALESCE(NULLIF(EXCLUDED.title, ''), listings.title),
			zone_text    = COALESCE(NULLIF(EXCLUDED.zone_text, ''), listings.zone_text),
			price_minor  = EXCLUDED.price_minor,
			bedrooms_raw = COALESCE(NULLIF(EXCLUDED.bedrooms_raw, ''), listings.bedrooms_raw),
			bedrooms_num = COALESCE(EXCLUDED.bedrooms_num, listings.bedrooms_num),
			area_m2      = COALESCE(EXCLUDED.area_m2, listings.area_m2),
			floor_raw    = COALESCE(NULLIF(EXCLUDED.floor_raw, ''), listings.floor_raw),
			description  = COALESCE(NULLIF(EXCLUDED.description, ''), listings.description),
			image_urls   = CASE WHEN cardinality(EXCLUDED.image_urls) > 0 THEN EXCLUDED.image_urls ELSE listings.image_urls END,
			parish_id    = COALESCE(EXCLUDED.parish_id, listings.parish_id),
			county_id    = COALESCE(EXCLUDED.county_id, listings.county_id),
			district_id  = COALESCE(EXCLUDED.district_id, listings.district_id),
			last_seen_at = GREATEST(listings.last_seen_at, EXCLUDED.last_seen_at),
			scraped_at   = EXCLUDED.scraped_at
		RETURNING (xmax = 0) AS inserted, id::text, first_seen_at, last_seen_at;
	`
	images := l.ImageURLs
	if images == nil {
		images = []string{}
	}

	var inserted bool
	err := r.db.QueryRow(ctx, query,
		l.ID,
		l.CanonicalURL,
		string(l.Source),
		string(l.Kind),
		l.Title,
		l.ZoneText,
		l.PriceMinor,
		l.BedroomsRaw,
		l.BedroomsNum,
		l.AreaM2,
		l.FloorRaw,
		l.Description,
		images,
		l.ParishID,
		l.CountyID,
		l.DistrictID,
		now,
	).Scan(&inserted, &l.ID, &l.FirstSeenAt, &l.LastSeenAt)
	if err != nil {
		return "", err
	}
	if inserted {
		return entity.OutcomeCreated, nil
	}
	return entity.OutcomeRefreshed, nil
}

func (r *ListingRepoImpl) KnownURLs(ctx context.Context, source entity.Source) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT canonical_url FROM listings WHERE source = $1;`, string(source))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		known[u] = struct{}{}
	}
	return known, rows.Err()
}

// SeenRepoImpl serves the seen index straight from the listings table.
// Add is a no-op because the upsert already recorded the URL.
type SeenRepoImpl struct {
	listings *ListingRepoImpl
}

func NewSeenRepo(listings *ListingRepoImpl) *SeenRepoImpl {
	return &SeenRepoImpl{listings: listings}
}

func (r *SeenRepoImpl) Load(ctx context.Context, source entity.Source) (map[string]struct{}, error) {
	return r.listings.KnownURLs(ctx, source)
}

func (r *SeenRepoImpl) Add(context.Context, entity.Source, string) error {
	return nil
}
