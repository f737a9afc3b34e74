package repository

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
)

// Fetcher performs one retrieval of a URL. Implementations never retry.
type Fetcher interface {
	Fetch(ctx context.Context, req entity.FetchRequest) (*entity.FetchResponse, error)
}
