package models

import "time"

// Notification is an in-app alert a user scheduled for an announcement.
type Notification struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	PostID      int64     `db:"post_id" json:"post_id"`
	Message     string    `db:"message" json:"message"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
	Read        bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
