package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/canon"
	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/pkg/metrics"
)

// ErrInvalidCandidate is returned by Normalize for candidates that cannot
// become a listing (no usable URL or price).
var ErrInvalidCandidate = errors.New("invalid candidate")

// LocationResolver maps a free-text address to gazetteer ids.
type LocationResolver interface {
	Resolve(address string) entity.Location
}

// ListingUpserter turns raw candidates into canonical listings and commits
// them through the listing store.
type ListingUpserter struct {
	repo      repository.ListingRepository
	resolver  LocationResolver
	blocklist []string
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewListingUpserter(
	repo repository.ListingRepository,
	resolver LocationResolver,
	blocklist []string,
	logger *zap.Logger,
	m *metrics.Metrics,
) *ListingUpserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingUpserter{
		repo:      repo,
		resolver:  resolver,
		blocklist: blocklist,
		now:       time.Now,
		logger:    logger,
		metrics:   m,
	}
}

// ListingID is the stable opaque id of a canonical URL.
func ListingID(canonicalURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(canonicalURL)).String()
}

// Normalize applies URL canonicalization, number parsing, image cleanup and
// location resolution.
func (u *ListingUpserter) Normalize(raw entity.RawListing) (*entity.Listing, error) {
	canonical, err := canon.ListingURL(raw.Source, raw.URL, raw.SiteID)
	if err != nil {
		return nil, fmt.Errorf("%w: url %q: %v", ErrInvalidCandidate, raw.URL, err)
	}
	price, ok := canon.ParsePrice(raw.PriceText)
	if !ok {
		return nil, fmt.Errorf("%w: price %q on %s", ErrInvalidCandidate, raw.PriceText, canonical)
	}

	base := raw.BaseURL
	if base == "" {
		base = raw.URL
	}
	l := &entity.Listing{
		ID:           ListingID(canonical),
		CanonicalURL: canonical,
		Source:       raw.Source,
		Kind:         raw.Kind,
		Title:        raw.Title,
		ZoneText:     raw.ZoneText,
		PriceMinor:   price,
		BedroomsRaw:  raw.Bedrooms,
		BedroomsNum:  canon.ParseBedrooms(raw.Bedrooms),
		AreaM2:       canon.ParseArea(raw.AreaText),
		FloorRaw:     raw.Floor,
		Description:  raw.Description,
		ImageURLs:    canon.NormalizeImages(base, raw.ImageURLs, u.blocklist),
	}
	if u.resolver != nil {
		loc := u.resolver.Resolve(raw.ZoneText)
		l.ParishID, l.CountyID, l.DistrictID = loc.ParishID, loc.CountyID, loc.DistrictID
	}
	return l, nil
}

// Upsert normalizes raw and stores it. Invalid candidates are reported as
// skipped_invalid with a nil error. A failing store call is retried once.
func (u *ListingUpserter) Upsert(ctx context.Context, raw entity.RawListing) (*entity.Listing, entity.Outcome, error) {
	l, err := u.Normalize(raw)
	if err != nil {
		u.logger.Debug("candidate skipped", zap.String("source", string(raw.Source)), zap.Error(err))
		u.metrics.Upsert(string(raw.Source), string(entity.OutcomeSkippedInvalid))
		return nil, entity.OutcomeSkippedInvalid, nil
	}

	now := u.now().UTC()
	outcome, err := u.repo.Upsert(ctx, l, now)
	if err != nil && ctx.Err() == nil {
		u.logger.Warn("upsert failed, retrying once",
			zap.String("url", l.CanonicalURL), zap.Error(err))
		outcome, err = u.repo.Upsert(ctx, l, now)
	}
	if err != nil {
		return nil, "", fmt.Errorf("store_conflict %s: %w", l.CanonicalURL, err)
	}
	u.metrics.Upsert(string(l.Source), string(outcome))
	return l, outcome, nil
}
