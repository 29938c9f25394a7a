package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"civicease/civicfeed/internal/models"
)

// GetAnnouncement loads one post by id.
func (db *DB) GetAnnouncement(ctx context.Context, id int64) (*models.Announcement, error) {
	var a models.Announcement
	err := db.GetContext(ctx, &a, db.Rebind(`SELECT * FROM posts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load announcement %d: %w", id, err)
	}
	return &a, nil
}

// CountAnnouncements returns the number of stored posts.
func (db *DB) CountAnnouncements(ctx context.Context) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("failed to count announcements: %w", err)
	}
	return n, nil
}
