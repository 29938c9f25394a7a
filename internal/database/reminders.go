package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"civicease/civicfeed/internal/models"
)

// ReminderInput is what a user submits with a comment.
type ReminderInput struct {
	UserID  int64
	PostID  int64
	Content string
	Enabled bool
	DueAt   *time.Time
}

// DueReminders returns enabled, unsent, non-quarantined reminders due at or before now.
func (db *DB) DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	var reminders []models.Reminder
	err := db.SelectContext(ctx, &reminders, db.Rebind(`
		SELECT * FROM reviews
		WHERE reminder_enabled = ? AND reminder_sent = ? AND reminder_quarantined = ?
		  AND reminder_at IS NOT NULL AND reminder_at <= ?
		ORDER BY reminder_at ASC, id ASC`),
		true, false, false, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	return reminders, nil
}

// GetReminder loads one review row by id.
func (db *DB) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	var r models.Reminder
	err := db.GetContext(ctx, &r, db.Rebind(`SELECT * FROM reviews WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reminder %d: %w", id, err)
	}
	return &r, nil
}

// SaveReminder inserts the reminder or replaces the one already held for the same
// (user, post) pair. A replaced reminder starts over as unsent.
func (db *DB) SaveReminder(ctx context.Context, in ReminderInput) (int64, error) {
	var due sql.NullTime
	if in.DueAt != nil {
		due = sql.NullTime{Time: in.DueAt.UTC(), Valid: true}
	}

	var id int64
	err := db.QueryRowxContext(ctx, db.Rebind(`
		INSERT INTO reviews (user_id, post_id, content, date_posted, reminder_enabled, reminder_at,
		                     reminder_sent, reminder_failures, reminder_last_error, reminder_quarantined)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)
		ON CONFLICT (user_id, post_id) DO UPDATE SET
			content = excluded.content,
			date_posted = excluded.date_posted,
			reminder_enabled = excluded.reminder_enabled,
			reminder_at = excluded.reminder_at,
			reminder_sent = excluded.reminder_sent,
			reminder_failures = 0,
			reminder_last_error = NULL,
			reminder_quarantined = excluded.reminder_quarantined
		RETURNING id`),
		in.UserID, in.PostID, in.Content, time.Now().UTC(), in.Enabled, due, false, false,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save reminder for user %d post %d: %w", in.UserID, in.PostID, err)
	}
	return id, nil
}

// MarkReminderSent sets the sent flag. It never clears it.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, db.Rebind(`UPDATE reviews SET reminder_sent = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %d sent: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordReminderFailure counts a failed dispatch attempt. When maxFailures is positive and
// the count reaches it, the reminder is quarantined and no longer scanned.
func (db *DB) RecordReminderFailure(ctx context.Context, id int64, reason string, maxFailures int) (quarantined bool, err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var failures int
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		UPDATE reviews
		SET reminder_failures = reminder_failures + 1, reminder_last_error = ?
		WHERE id = ?
		RETURNING reminder_failures`), reason, id).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to record failure for reminder %d: %w", id, err)
	}

	if maxFailures > 0 && failures >= maxFailures {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE reviews SET reminder_quarantined = ? WHERE id = ?`), true, id); err != nil {
			return false, fmt.Errorf("failed to quarantine reminder %d: %w", id, err)
		}
		quarantined = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit failure for reminder %d: %w", id, err)
	}
	return quarantined, nil
}
