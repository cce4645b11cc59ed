package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/clubfeed/app/stream"
)

// SavedRepository stores items the viewer saved. It serves as the overlay
// seed, as the save call of the mutator and as the "saved" stream source.
type SavedRepository struct {
	db  *DB
	now func() time.Time
}

func NewSavedRepository(db *DB) *SavedRepository {
	return &SavedRepository{db: db, now: time.Now}
}

// Save stores a copy of item when saved is true and removes it otherwise.
// The result is always confirmed once the statement succeeds.
func (r *SavedRepository) Save(ctx context.Context, item stream.Item, saved bool) (bool, error) {
	if !saved {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM saved_items WHERE id = ?`, string(item.ID)); err != nil {
			return false, fmt.Errorf("failed to delete saved item: %w", err)
		}
		return true, nil
	}

	var createdAt int64
	if !item.CreatedAt.IsZero() {
		createdAt = item.CreatedAt.Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_items (id, owner_id, like_count, liked_by_user, comment_count, created_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			like_count = excluded.like_count,
			liked_by_user = excluded.liked_by_user,
			comment_count = excluded.comment_count,
			created_at = excluded.created_at
	`, string(item.ID), item.OwnerID, item.LikeCount, item.LikedByUser, item.CommentCount, createdAt, r.now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to upsert saved item: %w", err)
	}

	return true, nil
}

func (r *SavedRepository) SavedIDs(ctx context.Context) ([]stream.ItemID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM saved_items ORDER BY saved_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get saved ids: %w", err)
	}
	defer rows.Close()

	var ids []stream.ItemID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan saved id: %w", err)
		}
		ids = append(ids, stream.ItemID(id))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved ids: %w", err)
	}

	return ids, nil
}

// GetSavedItems returns saved items, most recently saved first.
func (r *SavedRepository) GetSavedItems(ctx context.Context, limit, offset int) ([]SavedItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, like_count, liked_by_user, comment_count, created_at, saved_at
		FROM saved_items
		ORDER BY saved_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get saved items: %w", err)
	}
	defer rows.Close()

	var items []SavedItem
	for rows.Next() {
		var item SavedItem
		var createdAt, savedAt int64
		err := rows.Scan(&item.ID, &item.OwnerID, &item.LikeCount, &item.LikedByUser, &item.CommentCount, &createdAt, &savedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved item row: %w", err)
		}
		if createdAt > 0 {
			item.CreatedAt = time.Unix(createdAt, 0).UTC()
		}
		item.SavedAt = time.Unix(0, savedAt).UTC()
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating saved item rows: %w", err)
	}

	return items, nil
}

func (r *SavedRepository) GetSavedCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saved_items").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get saved item count: %w", err)
	}
	return count, nil
}

// Stream exposes the saved items as a paginated stream.
func (r *SavedRepository) Stream(pageSize, firstPage int) *SavedStream {
	if pageSize <= 0 {
		pageSize = stream.DefaultPageSize
	}
	return &SavedStream{repo: r, pageSize: pageSize, firstPage: firstPage}
}

type SavedStream struct {
	repo      *SavedRepository
	pageSize  int
	firstPage int
}

// FetchPage ignores the key owner: saved items belong to the viewer.
func (s *SavedStream) FetchPage(ctx context.Context, key stream.Key, pageIndex int) (stream.Page, error) {
	offset := max(pageIndex-s.firstPage, 0) * s.pageSize

	saved, err := s.repo.GetSavedItems(ctx, s.pageSize, offset)
	if err != nil {
		return stream.Page{}, err
	}

	items := make([]stream.Item, len(saved))
	for i, item := range saved {
		items[i] = stream.Item{
			ID:           stream.ItemID(item.ID),
			OwnerID:      item.OwnerID,
			LikeCount:    item.LikeCount,
			LikedByUser:  item.LikedByUser,
			Saved:        true,
			CommentCount: item.CommentCount,
			CreatedAt:    item.CreatedAt,
		}
	}

	return stream.Page{
		Index:   pageIndex,
		Items:   items,
		HasMore: len(items) == s.pageSize,
	}, nil
}
