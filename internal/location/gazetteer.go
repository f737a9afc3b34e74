package location

import (
	"fmt"
	"sort"

	"github.com/user/imo-scraper/internal/entity"
)

// Prepare returns a copy of g with every NormName filled in and every level
// sorted by ascending id.
func Prepare(g *entity.Gazetteer) *entity.Gazetteer {
	out := &entity.Gazetteer{Districts: make([]entity.District, len(g.Districts))}
	for i, d := range g.Districts {
		d.NormName = Normalize(d.Name)
		counties := make([]entity.County, len(d.Counties))
		for j, c := range d.Counties {
			c.DistrictID = d.ID
			c.NormName = Normalize(c.Name)
			parishes := make([]entity.Parish, len(c.Parishes))
			for k, p := range c.Parishes {
				p.CountyID = c.ID
				p.NormName = Normalize(p.Name)
				parishes[k] = p
			}
			sort.Slice(parishes, func(a, b int) bool { return parishes[a].ID < parishes[b].ID })
			c.Parishes = parishes
			counties[j] = c
		}
		sort.Slice(counties, func(a, b int) bool { return counties[a].ID < counties[b].ID })
		d.Counties = counties
		out.Districts[i] = d
	}
	sort.Slice(out.Districts, func(a, b int) bool { return out.Districts[a].ID < out.Districts[b].ID })
	return out
}

// FilterDistrict keeps only the district whose normalized name equals name.
func FilterDistrict(g *entity.Gazetteer, name string) (*entity.Gazetteer, error) {
	want := Normalize(name)
	for _, d := range g.Districts {
		if Normalize(d.Name) == want {
			return &entity.Gazetteer{Districts: []entity.District{d}}, nil
		}
	}
	return nil, fmt.Errorf("district %q not in gazetteer", name)
}
