package location

import (
	"fmt"
	"math"

	"github.com/user/imo-scraper/internal/entity"
)

type countyRef struct {
	id         int
	districtID int
	norm       string
}

type parishRef struct {
	id         int
	countyID   int
	districtID int
	norm       string
}

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	counties        []countyRef
	parishes        []parishRef
	defaultDistrict *int
}

// NewResolver indexes g. When primaryDistrict is set the gazetteer is first
// filtered to that district, which also becomes the default district of every
// result.
func NewResolver(g *entity.Gazetteer, primaryDistrict string) (*Resolver, error) {
	if g == nil {
		return nil, fmt.Errorf("nil gazetteer")
	}
	g = Prepare(g)
	r := &Resolver{}
	if primaryDistrict != "" {
		filtered, err := FilterDistrict(g, primaryDistrict)
		if err != nil {
			return nil, err
		}
		g = filtered
		id := g.Districts[0].ID
		r.defaultDistrict = &id
	}

	for _, d := range g.Districts {
		for _, c := range d.Counties {
			r.counties = append(r.counties, countyRef{id: c.ID, districtID: d.ID, norm: c.NormName})
			for _, p := range c.Parishes {
				r.parishes = append(r.parishes, parishRef{id: p.ID, countyID: c.ID, districtID: d.ID, norm: p.NormName})
			}
		}
	}
	return r, nil
}

type parishHit struct {
	ref       parishRef
	exact     bool
	score     int
	countyPos int
	full      int
}

func (a parishHit) better(b parishHit) bool {
	if a.exact != b.exact {
		return a.exact
	}
	if a.score != b.score {
		return a.score > b.score
	}
	if a.countyPos != b.countyPos {
		return a.countyPos < b.countyPos
	}
	if a.full != b.full {
		return a.full > b.full
	}
	return a.ref.id < b.ref.id
}

// Resolve maps an address fragment to parish, county and district ids.
//
// Parts are scanned left to right. The first part that matches any parish
// fixes the parish and its parent county; otherwise the first county match
// wins. Among parishes scoring equally in one part, the one whose county is
// named earliest in the address is preferred.
func (r *Resolver) Resolve(address string) entity.Location {
	loc := entity.Location{DistrictID: r.defaultDistrict}
	if isEmptyAddress(address) {
		return loc
	}
	parts := splitParts(address)
	if len(parts) == 0 {
		return loc
	}

	countyPos := make(map[int]int)
	var firstCounty *countyRef
	for i, part := range parts {
		for j := range r.counties {
			c := &r.counties[j]
			if PartialRatio(c.norm, part) < MatchThreshold {
				continue
			}
			if _, ok := countyPos[c.id]; !ok {
				countyPos[c.id] = i
			}
			if firstCounty == nil {
				firstCounty = c
			}
		}
	}

	for _, part := range parts {
		var best *parishHit
		for _, p := range r.parishes {
			score := PartialRatio(p.norm, part)
			if score < MatchThreshold {
				continue
			}
			pos, ok := countyPos[p.countyID]
			if !ok {
				pos = math.MaxInt
			}
			hit := parishHit{ref: p, exact: p.norm == part, score: score, countyPos: pos, full: Ratio(p.norm, part)}
			if best == nil || hit.better(*best) {
				best = &hit
			}
		}
		if best != nil {
			pid, cid, did := best.ref.id, best.ref.countyID, best.ref.districtID
			loc.ParishID, loc.CountyID, loc.DistrictID = &pid, &cid, &did
			return loc
		}
	}

	if firstCounty != nil {
		cid, did := firstCounty.id, firstCounty.districtID
		loc.CountyID, loc.DistrictID = &cid, &did
	}
	return loc
}
