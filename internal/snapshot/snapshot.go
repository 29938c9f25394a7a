// Package snapshot persists fetched category feeds as JSON files so that scraping and
// importing can run as separate steps.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/samber/lo"

	"civicease/civicfeed/internal/feed"
	"civicease/civicfeed/internal/models"
)

const filePattern = "category_*.json"

// Item is the on-disk form of a feed item.
type Item struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	PubDate     string `json:"pubDate"`
	Category    string `json:"category"`
}

// Snapshot is one category_{id}.json file.
type Snapshot struct {
	CategoryID   int       `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	ScrapedAt    string    `json:"scraped_at,omitempty"` // informational; zone-less timestamps are accepted
	Items        []Item    `json:"items"`
}

// FromFeed converts a fetched feed into its snapshot form.
func FromFeed(f *feed.Feed, scrapedAt time.Time) *Snapshot {
	return &Snapshot{
		CategoryID:   f.CategoryID,
		CategoryName: f.Title,
		Title:        f.Title,
		Description:  f.Description,
		ScrapedAt:    scrapedAt.UTC().Format(time.RFC3339Nano),
		Items: lo.Map(f.Items, func(it models.FeedItem, _ int) Item {
			return Item{
				Title:       it.Title,
				Link:        it.Link,
				Description: it.Description,
				PubDate:     it.PubDateText,
				Category:    it.Category,
			}
		}),
	}
}

// FeedItems converts the stored items back, re-parsing their dates.
func (s *Snapshot) FeedItems() []models.FeedItem {
	return lo.Map(s.Items, func(it Item, _ int) models.FeedItem {
		return models.FeedItem{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			PubDateText: it.PubDate,
			PubDate:     feed.ParsePubDate(it.PubDate),
			Category:    it.Category,
		}
	})
}

// Store reads and writes snapshots in one directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the file used for categoryID.
func (s *Store) Path(categoryID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("category_%d.json", categoryID))
}

// Save writes the snapshot atomically, replacing any previous file for the category.
func (s *Store) Save(snap *Snapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot for category %d: %w", snap.CategoryID, err)
	}

	path := s.Path(snap.CategoryID)
	tmp, err := os.CreateTemp(s.dir, ".category-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return path, nil
}

// Load reads one snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	if snap.CategoryID <= 0 {
		return nil, fmt.Errorf("snapshot %s has no category_id", path)
	}
	return &snap, nil
}

// List returns every snapshot file in the directory, sorted by name.
// A missing directory yields no files.
func (s *Store) List() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, filePattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
