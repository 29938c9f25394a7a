// Package reminders selects the reminders and notifications that are due.
package reminders

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"civicease/civicfeed/internal/models"
)

// Store is the read side the scanner needs.
type Store interface {
	DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error)
	DueUnreadNotifications(ctx context.Context, userID int64, now time.Time) ([]models.Notification, error)
}

// Scanner queries due work. Both queries are point-in-time snapshots; rows created after a
// scan are picked up by the next one.
type Scanner struct {
	store Store
}

// NewScanner creates a Scanner over store.
func NewScanner(store Store) *Scanner {
	return &Scanner{store: store}
}

// DueReminders returns enabled, unsent reminders whose due time is at or before now.
func (s *Scanner) DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		return nil, err
	}

	// Drop anything the store returned that is not due at now.
	filtered := due[:0]
	for _, r := range due {
		if r.IsDue(now) {
			filtered = append(filtered, r)
		}
	}

	log.Debug().Time("now", now).Int("due", len(filtered)).Msg("Scanned reminders")
	return filtered, nil
}

// DueUnreadNotifications returns the user's unread notifications scheduled at or before
// now, newest schedule first.
func (s *Scanner) DueUnreadNotifications(ctx context.Context, userID int64, now time.Time) ([]models.Notification, error) {
	return s.store.DueUnreadNotifications(ctx, userID, now)
}
