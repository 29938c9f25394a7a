package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/models"
	"civicease/civicfeed/internal/scheduler"
)

// ErrDanglingReference means the reminder's user or post no longer resolves.
var ErrDanglingReference = errors.New("reminder references a missing user or post")

// Store is the persistence the notifier reads and writes.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetAnnouncement(ctx context.Context, id int64) (*models.Announcement, error)
	MarkReminderSent(ctx context.Context, id int64) error
	RecordReminderFailure(ctx context.Context, id int64, reason string, maxFailures int) (bool, error)
}

// Scanner finds due reminders.
type Scanner interface {
	DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error)
}

// Config tunes dispatch behaviour.
type Config struct {
	// MaxFailures quarantines a reminder after this many failed attempts; 0 retries forever.
	MaxFailures int
}

// Stats counts the outcome of one scan.
type Stats struct {
	Due         int
	Sent        int
	Failed      int
	Skipped     int
	Quarantined int
}

// Notifier dispatches due reminders and flips their sent flag.
type Notifier struct {
	store   Store
	scanner Scanner
	mailer  Mailer
	cfg     Config
	clock   scheduler.Clock
}

// New creates a Notifier. clock supplies the scan time; nil means the wall clock.
func New(store Store, scanner Scanner, mailer Mailer, cfg Config, clock scheduler.Clock) *Notifier {
	if clock == nil {
		clock = scheduler.RealClock
	}
	return &Notifier{store: store, scanner: scanner, mailer: mailer, cfg: cfg, clock: clock}
}

// Dispatch resolves, formats and sends one reminder, then marks it sent. The sent flag is
// only set after the mailer reports success.
func (n *Notifier) Dispatch(ctx context.Context, r models.Reminder) error {
	user, err := n.store.GetUser(ctx, r.UserID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("user %d: %w", r.UserID, ErrDanglingReference)
	}
	if err != nil {
		return err
	}
	if user.Email == "" {
		return fmt.Errorf("user %d has no email: %w", r.UserID, ErrDanglingReference)
	}

	post, err := n.store.GetAnnouncement(ctx, r.PostID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("post %d: %w", r.PostID, ErrDanglingReference)
	}
	if err != nil {
		return err
	}

	if err := n.mailer.Send(ctx, FormatMessage(user, post, &r)); err != nil {
		return err
	}

	if err := n.store.MarkReminderSent(ctx, r.ID); err != nil {
		return fmt.Errorf("reminder %d sent but not marked: %w", r.ID, err)
	}
	return nil
}

// RunOnce dispatches every reminder due now, one at a time.
func (n *Notifier) RunOnce(ctx context.Context) (*Stats, error) {
	now := n.clock.Now()
	due, err := n.scanner.DueReminders(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to scan reminders: %w", err)
	}

	stats := &Stats{Due: len(due)}
	for _, r := range due {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		logger := log.With().
			Int64("reminder_id", r.ID).
			Int64("user_id", r.UserID).
			Int64("post_id", r.PostID).
			Logger()

		err := n.Dispatch(ctx, r)
		switch {
		case err == nil:
			stats.Sent++
			logger.Info().Msg("Reminder sent")
			continue
		case errors.Is(err, ErrDanglingReference):
			stats.Skipped++
			logger.Warn().Err(err).Msg("Skipping reminder with dangling reference")
		case errors.Is(err, ErrMailerDisabled):
			stats.Failed++
			logger.Debug().Msg("Reminder left unsent, mail transport disabled")
			continue
		default:
			stats.Failed++
			logger.Error().Err(err).Msg("Reminder dispatch failed, will retry next scan")
		}

		quarantined, recErr := n.store.RecordReminderFailure(ctx, r.ID, err.Error(), n.cfg.MaxFailures)
		if recErr != nil {
			logger.Error().Err(recErr).Msg("Failed to record reminder failure")
			continue
		}
		if quarantined {
			stats.Quarantined++
			logger.Warn().Int("max_failures", n.cfg.MaxFailures).Msg("Reminder quarantined after repeated failures")
		}
	}

	if stats.Due > 0 {
		log.Info().
			Int("due", stats.Due).
			Int("sent", stats.Sent).
			Int("failed", stats.Failed).
			Int("skipped", stats.Skipped).
			Int("quarantined", stats.Quarantined).
			Msg("Reminder scan finished")
	}
	return stats, nil
}
