package repository

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
)

// SeenIndex tracks the canonical URLs already stored for each source.
type SeenIndex interface {
	Load(ctx context.Context, source entity.Source) (map[string]struct{}, error)
	Add(ctx context.Context, source entity.Source, canonicalURL string) error
}
