package models

import (
	"database/sql"
	"time"
)

// Reminder is a user comment on an announcement, optionally flagged for an email reminder.
// It maps to the 'reviews' table.
type Reminder struct {
	ID          int64          `db:"id" json:"id"`
	UserID      int64          `db:"user_id" json:"user_id"`
	PostID      int64          `db:"post_id" json:"post_id"`
	Content     string         `db:"content" json:"content"`
	DatePosted  time.Time      `db:"date_posted" json:"date_posted"`
	Enabled     bool           `db:"reminder_enabled" json:"reminder_enabled"`
	DueAt       sql.NullTime   `db:"reminder_at" json:"-"`
	Sent        bool           `db:"reminder_sent" json:"reminder_sent"`
	Failures    int            `db:"reminder_failures" json:"reminder_failures"`
	LastError   sql.NullString `db:"reminder_last_error" json:"-"`
	Quarantined bool           `db:"reminder_quarantined" json:"reminder_quarantined"`
}

// IsDue reports whether the reminder should be dispatched at now.
func (r *Reminder) IsDue(now time.Time) bool {
	return r.Enabled && !r.Sent && !r.Quarantined && r.DueAt.Valid && !r.DueAt.Time.After(now)
}
