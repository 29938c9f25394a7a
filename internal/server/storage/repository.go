package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/models"
	"civicease/civicfeed/internal/server/pagination"
)

// AnnouncementFilter selects one page of announcements in (created_at, id) order.
type AnnouncementFilter struct {
	CategoryID *int64
	Since      *time.Time
	After      *pagination.Cursor
	Limit      int
}

// Repository is the data access the API needs.
type Repository interface {
	ListAnnouncements(ctx context.Context, f AnnouncementFilter) ([]models.Announcement, error)
	GetAnnouncement(ctx context.Context, id int64) (*models.Announcement, error)
	DueUnreadNotifications(ctx context.Context, userID int64, now time.Time) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	SaveReminder(ctx context.Context, in database.ReminderInput) (int64, error)
	GetReminder(ctx context.Context, id int64) (*models.Reminder, error)
	PingContext(ctx context.Context) error
}

// sqlxRepository implements Repository on top of the shared store.
type sqlxRepository struct {
	*database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) Repository {
	return &sqlxRepository{DB: db}
}

// ListAnnouncements returns up to f.Limit posts, oldest first, optionally restricted to a
// category and to rows after a cursor or a creation time.
func (r *sqlxRepository) ListAnnouncements(ctx context.Context, f AnnouncementFilter) ([]models.Announcement, error) {
	var where []string
	var args []any

	if f.CategoryID != nil {
		where = append(where, "rss_category_id = ?")
		args = append(args, *f.CategoryID)
	}
	switch {
	case f.After != nil:
		where = append(where, "(created_at > ? OR (created_at = ? AND id > ?))")
		args = append(args, f.After.CreatedAt.UTC(), f.After.CreatedAt.UTC(), f.After.ID)
	case f.Since != nil:
		where = append(where, "created_at > ?")
		args = append(args, f.Since.UTC())
	}

	query := "SELECT * FROM posts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC LIMIT ?"
	args = append(args, f.Limit)

	items := []models.Announcement{}
	if err := r.SelectContext(ctx, &items, r.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return items, nil
}
