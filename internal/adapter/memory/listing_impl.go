// Package memory holds in-process repositories used for dry runs and tests.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/pkg/utils"
)

const lockStripes = 64

// ListingRepoImpl keeps listings in a map keyed by canonical URL. Upserts of
// the same URL are serialized by a striped mutex on the URL hash.
type ListingRepoImpl struct {
	stripes [lockStripes]sync.Mutex

	mu    sync.RWMutex
	byURL map[string]*entity.Listing
}

func NewListingRepo() *ListingRepoImpl {
	return &ListingRepoImpl{byURL: make(map[string]*entity.Listing)}
}

func (r *ListingRepoImpl) stripe(canonicalURL string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(utils.HashURL(canonicalURL)))
	return &r.stripes[h.Sum32()%lockStripes]
}

func (r *ListingRepoImpl) Upsert(_ context.Context, l *entity.Listing, now time.Time) (entity.Outcome, error) {
	lock := r.stripe(l.CanonicalURL)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	cur, ok := r.byURL[l.CanonicalURL]
	r.mu.RUnlock()

	if !ok {
		row := *l
		row.ImageURLs = append([]string(nil), l.ImageURLs...)
		row.FirstSeenAt, row.LastSeenAt = now, now
		r.mu.Lock()
		r.byURL[l.CanonicalURL] = &row
		r.mu.Unlock()
		*l = row
		return entity.OutcomeCreated, nil
	}

	r.mu.Lock()
	mergeListing(cur, l, now)
	*l = *cur
	r.mu.Unlock()
	return entity.OutcomeRefreshed, nil
}

// mergeListing refreshes cur with the non-empty fields of next.
func mergeListing(cur, next *entity.Listing, now time.Time) {
	setString(&cur.Title, next.Title)
	setString(&cur.ZoneText, next.ZoneText)
	setString(&cur.BedroomsRaw, next.BedroomsRaw)
	setString(&cur.FloorRaw, next.FloorRaw)
	setString(&cur.Description, next.Description)
	cur.PriceMinor = next.PriceMinor
	cur.Kind = next.Kind
	if next.BedroomsNum != nil {
		cur.BedroomsNum = next.BedroomsNum
	}
	if next.AreaM2 != nil {
		cur.AreaM2 = next.AreaM2
	}
	if len(next.ImageURLs) > 0 {
		cur.ImageURLs = append([]string(nil), next.ImageURLs...)
	}
	if next.ParishID != nil {
		cur.ParishID = next.ParishID
	}
	if next.CountyID != nil {
		cur.CountyID = next.CountyID
	}
	if next.DistrictID != nil {
		cur.DistrictID = next.DistrictID
	}
	if now.After(cur.LastSeenAt) {
		cur.LastSeenAt = now
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (r *ListingRepoImpl) KnownURLs(_ context.Context, source entity.Source) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{})
	for u, l := range r.byURL {
		if l.Source == source {
			out[u] = struct{}{}
		}
	}
	return out, nil
}

// Get returns a copy of the stored listing.
func (r *ListingRepoImpl) Get(canonicalURL string) (entity.Listing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byURL[canonicalURL]
	if !ok {
		return entity.Listing{}, false
	}
	return *l, true
}

func (r *ListingRepoImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byURL)
}
