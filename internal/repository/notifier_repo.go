package repository

import (
	"context"

	"github.com/user/imo-scraper/internal/entity"
)

// Notifier forwards newly created listings to the external notification sender.
type Notifier interface {
	NotifyNew(ctx context.Context, l *entity.Listing) error
}
