package models

import (
	"database/sql"
	"time"
	"unicode/utf8"
)

// MaxCategoryNameLength is the width of posts.rss_category_name in characters.
const MaxCategoryNameLength = 120

// Announcement represents a row in the 'posts' table
type Announcement struct {
	ID           int64          `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	CategoryID   sql.NullInt64  `db:"rss_category_id" json:"-"`
	CategoryName sql.NullString `db:"rss_category_name" json:"-"`
	Link         sql.NullString `db:"rss_link" json:"-"`
	Description  sql.NullString `db:"rss_description" json:"-"`
	PubDate      sql.NullTime   `db:"rss_pub_date" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// NewAnnouncement builds an Announcement for a fetched item in the given category.
func NewAnnouncement(categoryID int, title string, item FeedItem) *Announcement {
	a := &Announcement{
		Title:        title,
		CategoryID:   sql.NullInt64{Int64: int64(categoryID), Valid: true},
		CategoryName: sql.NullString{String: truncateRunes(item.Category, MaxCategoryNameLength), Valid: true},
		Link:         sql.NullString{String: item.Link, Valid: true},
		Description:  sql.NullString{String: item.Description, Valid: true},
		CreatedAt:    time.Now().UTC(),
	}
	if item.PubDate != nil {
		a.PubDate = sql.NullTime{Time: item.PubDate.UTC(), Valid: true}
	}
	return a
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
