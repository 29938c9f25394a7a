package importfeeds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/models"
)

const (
	// MaxTitleLength is the title cap in characters; it is also the dedup key length.
	MaxTitleLength = 100
	// UntitledTitle replaces empty titles.
	UntitledTitle = "Untitled"
)

// Importer writes fetched feed items into the posts table.
type Importer struct {
	db *database.DB
}

// NewImporter creates a new item importer
func NewImporter(db *database.DB) *Importer {
	return &Importer{db: db}
}

// NormalizeTitle applies the storage cap and the empty-title fallback.
func NormalizeTitle(title string) string {
	if title == "" {
		return UntitledTitle
	}
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxTitleLength])
}

// ImportItems stores every item whose normalized title is not yet present. Existing posts
// are never modified. All inserts of the call are committed in one transaction; on error
// nothing from the batch is kept and both counts are zero.
func (i *Importer) ImportItems(ctx context.Context, categoryID int, items []models.FeedItem) (inserted, skipped int, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	tx, err := i.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			inserted, skipped = 0, 0
			log.Debug().Int("category_id", categoryID).Msg("Import batch rolled back")
		}
	}()

	lookup, err := tx.PreparexContext(ctx, tx.Rebind(`SELECT id FROM posts WHERE title = ?`))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare title lookup: %w", err)
	}
	defer lookup.Close()

	insert, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO posts (title, rss_category_id, rss_category_name, rss_link, rss_description, rss_pub_date, created_at)
		VALUES (:title, :rss_category_id, :rss_category_name, :rss_link, :rss_description, :rss_pub_date, :created_at)
		ON CONFLICT (title) DO NOTHING
		RETURNING id`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare post insert: %w", err)
	}
	defer insert.Close()

	for n, item := range items {
		title := NormalizeTitle(item.Title)
		logger := log.With().
			Int("category_id", categoryID).
			Int("item", n).
			Str("title", title).
			Logger()

		var existing int64
		err = lookup.QueryRowxContext(ctx, title).Scan(&existing)
		switch {
		case err == nil:
			skipped++
			logger.Debug().Int64("post_id", existing).Msg("Duplicate title, skipping")
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return 0, 0, fmt.Errorf("failed to look up title %q: %w", title, err)
		}

		var id int64
		err = insert.QueryRowxContext(ctx, models.NewAnnouncement(categoryID, title, item)).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// Another writer committed the same title after the lookup.
			err = nil
			skipped++
			logger.Debug().Msg("Title inserted concurrently, skipping")
			continue
		}
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert post %q: %w", title, err)
		}

		inserted++
		logger.Debug().Int64("post_id", id).Msg("Post created")
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import batch: %w", err)
	}

	log.Info().
		Int("category_id", categoryID).
		Int("inserted", inserted).
		Int("skipped", skipped).
		Msg("Import batch committed")

	return inserted, skipped, nil
}
