package source

import (
	"fmt"

	"github.com/user/imo-scraper/internal/entity"
)

var registry = map[entity.Source]func() *siteAdapter{
	entity.SourceImoVirtual: newImoVirtual,
	entity.SourceIdealista:  newIdealista,
	entity.SourceRemax:      newRemax,
	entity.SourceERA:        newERA,
	entity.SourceCasaSapo:   newCasaSapo,
	entity.SourceSuperCasa:  newSuperCasa,
}

// Lookup returns a fresh adapter for src.
func Lookup(src entity.Source) (Adapter, error) {
	ctor, ok := registry[src]
	if !ok {
		return nil, fmt.Errorf("no adapter for source %q", src)
	}
	return ctor(), nil
}

// All returns one adapter per supported source, in spawn order.
func All() []Adapter {
	out := make([]Adapter, 0, len(entity.AllSources))
	for _, src := range entity.AllSources {
		if ctor, ok := registry[src]; ok {
			out = append(out, ctor())
		}
	}
	return out
}
