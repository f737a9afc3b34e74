package filestore

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/user/imo-scraper/internal/entity"
)

type gazetteerFile struct {
	Districts []struct {
		ID       int    `yaml:"id"`
		Name     string `yaml:"name"`
		Counties []struct {
			ID       int    `yaml:"id"`
			Name     string `yaml:"name"`
			Parishes []struct {
				ID   int    `yaml:"id"`
				Name string `yaml:"name"`
			} `yaml:"parishes"`
		} `yaml:"counties"`
	} `yaml:"districts"`
}

// GazetteerRepoImpl reads the gazetteer from a YAML seed file.
type GazetteerRepoImpl struct {
	path string
}

func NewGazetteerRepo(path string) *GazetteerRepoImpl {
	return &GazetteerRepoImpl{path: path}
}

func (r *GazetteerRepoImpl) Load(context.Context) (*entity.Gazetteer, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	return ParseGazetteer(data)
}

// ParseGazetteer decodes the YAML layout and rejects duplicate ids.
func ParseGazetteer(data []byte) (*entity.Gazetteer, error) {
	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode gazetteer: %w", err)
	}

	seen := make(map[string]bool)
	dup := func(level string, id int) error {
		k := fmt.Sprintf("%s/%d", level, id)
		if seen[k] {
			return fmt.Errorf("duplicate %s id %d", level, id)
		}
		seen[k] = true
		return nil
	}

	g := &entity.Gazetteer{}
	for _, d := range f.Districts {
		if err := dup("district", d.ID); err != nil {
			return nil, err
		}
		district := entity.District{ID: d.ID, Name: d.Name}
		for _, c := range d.Counties {
			if err := dup("county", c.ID); err != nil {
				return nil, err
			}
			county := entity.County{ID: c.ID, DistrictID: d.ID, Name: c.Name}
			for _, p := range c.Parishes {
				if err := dup("parish", p.ID); err != nil {
					return nil, err
				}
				county.Parishes = append(county.Parishes, entity.Parish{ID: p.ID, CountyID: c.ID, Name: p.Name})
			}
			district.Counties = append(district.Counties, county)
		}
		g.Districts = append(g.Districts, district)
	}
	if len(g.Districts) == 0 {
		return nil, fmt.Errorf("gazetteer has no districts")
	}
	return g, nil
}
