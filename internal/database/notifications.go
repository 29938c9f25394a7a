package database

import (
	"context"
	"fmt"
	"time"

	"civicease/civicfeed/internal/models"
)

// DueUnreadNotifications returns the user's unread notifications scheduled at or before now,
// newest schedule first.
func (db *DB) DueUnreadNotifications(ctx context.Context, userID int64, now time.Time) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := db.SelectContext(ctx, &notifications, db.Rebind(`
		SELECT * FROM notifications
		WHERE user_id = ? AND is_read = ? AND scheduled_at <= ?
		ORDER BY scheduled_at DESC, id DESC`),
		userID, false, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications for user %d: %w", userID, err)
	}
	return notifications, nil
}

// CreateNotification stores a notification the user scheduled.
func (db *DB) CreateNotification(ctx context.Context, userID, postID int64, message string, scheduledAt time.Time) (int64, error) {
	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO notifications (user_id, post_id, message, scheduled_at, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		userID, postID, message, scheduledAt.UTC(), false, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create notification for user %d: %w", userID, err)
	}
	return id, nil
}

// MarkNotificationRead flips the read flag for one notification.
func (db *DB) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE notifications SET is_read = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
