package database

import (
	"context"

	"github.com/lysyi3m/clubfeed/app/stream"
)

type SavedItemRepository interface {
	stream.OverlaySource

	Save(ctx context.Context, item stream.Item, saved bool) (bool, error)
	GetSavedItems(ctx context.Context, limit, offset int) ([]SavedItem, error)
	GetSavedCount(ctx context.Context) (int, error)
}
