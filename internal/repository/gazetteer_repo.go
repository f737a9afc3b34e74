package repository

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
)

// GazetteerRepository loads the district/county/parish reference data.
type GazetteerRepository interface {
	Load(ctx context.Context) (*entity.Gazetteer, error)
}
