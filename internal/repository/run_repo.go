package repository

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
)

// RunRepository stores MainRun and ScraperRun rows.
type RunRepository interface {
	CreateMain(ctx context.Context, run *entity.MainRun) error
	// CreateMainExclusive inserts run unless another MainRun is initialized
	// or running, in which case it returns ErrRunAlreadyActive. The check and
	// the insert are atomic across processes sharing the store.
	CreateMainExclusive(ctx context.Context, run *entity.MainRun) error
	UpdateMain(ctx context.Context, run *entity.MainRun) error
	CreateScraper(ctx context.Context, run *entity.ScraperRun) error
	UpdateScraper(ctx context.Context, run *entity.ScraperRun) error
	ScraperRuns(ctx context.Context, mainRunID int64) ([]*entity.ScraperRun, error)
	// LatestMain returns ErrNotFound when no run exists.
	LatestMain(ctx context.Context) (*entity.MainRun, error)
}
