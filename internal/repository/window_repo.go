package repository

import (
	"context"
	"time"

	"github.com/user/imo-scraper/internal/entity"
)

// WindowStore persists the rolling request window of quota-strict sources.
type WindowStore interface {
	// Load returns the stored timestamps newer than since.
	Load(ctx context.Context, source entity.Source, since time.Time) ([]time.Time, error)
	Save(ctx context.Context, w entity.RateWindow) error
}

// WindowReserver is a WindowStore that checks and records a grant in one
// atomic step, so limiters in several processes share one budget.
type WindowReserver interface {
	// Reserve records at when fewer than limit requests fall inside
	// (at-window, at]. Otherwise it records nothing and returns the stored
	// timestamps inside that span.
	Reserve(ctx context.Context, source entity.Source, at time.Time, window time.Duration, limit int) (bool, []time.Time, error)
}
