package testsupport

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"civicease/civicfeed/internal/database"
)

// MustOpenDB opens a migrated SQLite store in a temp dir and registers cleanup.
func MustOpenDB(t testing.TB) *database.DB {
	t.Helper()

	cfg := database.NewConfig("sqlite3", filepath.Join(t.TempDir(), "civicfeed.db"))
	db, err := database.NewDB(cfg)
	if err != nil {
		t.Fatalf("database.NewDB: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustCreateUser inserts a user and returns its id.
func MustCreateUser(t testing.TB, db *database.DB, username string) int64 {
	t.Helper()

	id, err := db.CreateUser(context.Background(), username, username+"@example.org")
	if err != nil {
		t.Fatalf("db.CreateUser: %v", err)
	}
	return id
}

// MustCreatePost inserts a post with only a title and category and returns its id.
func MustCreatePost(t testing.TB, db *database.DB, title string, categoryID int) int64 {
	t.Helper()

	var id int64
	err := db.QueryRowx(
		db.Rebind(`INSERT INTO posts (title, rss_category_id, created_at) VALUES (?, ?, ?) RETURNING id`),
		title, sql.NullInt64{Int64: int64(categoryID), Valid: true}, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return id
}

// MustSaveReminder stores an enabled reminder due at dueAt.
func MustSaveReminder(t testing.TB, db *database.DB, userID, postID int64, content string, dueAt time.Time) int64 {
	t.Helper()

	id, err := db.SaveReminder(context.Background(), database.ReminderInput{
		UserID:  userID,
		PostID:  postID,
		Content: content,
		Enabled: true,
		DueAt:   &dueAt,
	})
	if err != nil {
		t.Fatalf("db.SaveReminder: %v", err)
	}
	return id
}
