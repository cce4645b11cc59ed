package database

import (
	"time"
)

// SavedItem is a local copy of an item the viewer saved.
type SavedItem struct {
	ID           string
	OwnerID      string
	LikeCount    int
	LikedByUser  bool
	CommentCount int
	CreatedAt    time.Time // zero when unknown
	SavedAt      time.Time
}
