package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"civicease/civicfeed/internal/feed"
	"civicease/civicfeed/internal/models"
	"civicease/civicfeed/internal/snapshot"
)

// Fetcher retrieves one category feed.
type Fetcher interface {
	Fetch(ctx context.Context, categoryID int) (*feed.Feed, error)
}

// ItemWriter persists a batch of items for a category.
type ItemWriter interface {
	ImportItems(ctx context.Context, categoryID int, items []models.FeedItem) (inserted, skipped int, err error)
}

// CategoryResult is the outcome for one feed source in a cycle.
type CategoryResult struct {
	CategoryID int
	Name       string
	Source     string // feed URL category or snapshot path
	Fetched    int
	Inserted   int
	Skipped    int
	Err        error
}

// Summary aggregates one cycle.
type Summary struct {
	Inserted   int
	Skipped    int
	Categories []CategoryResult
	Duration   time.Duration
}

// Failed returns the results that carry an error.
func (s *Summary) Failed() []CategoryResult {
	return lo.Filter(s.Categories, func(r CategoryResult, _ int) bool { return r.Err != nil })
}

// String renders the human-readable cycle summary.
func (s *Summary) String() string {
	var b strings.Builder
	failed := s.Failed()
	fmt.Fprintf(&b, "%d sources, %d failed: %d inserted, %d skipped in %s",
		len(s.Categories), len(failed), s.Inserted, s.Skipped, s.Duration.Round(time.Millisecond))
	for _, r := range failed {
		fmt.Fprintf(&b, "\n  category %d (%s): %v", r.CategoryID, r.Source, r.Err)
	}
	return b.String()
}

func (s *Summary) add(r CategoryResult) {
	s.Categories = append(s.Categories, r)
	s.Inserted += r.Inserted
	s.Skipped += r.Skipped
}

// Processor drives fetch and import over all categories, one at a time.
type Processor struct {
	fetcher    Fetcher
	writer     ItemWriter
	snapshots  *snapshot.Store // nil disables snapshot files
	categories []int
	now        func() time.Time

	inserted atomic.Int64
	skipped  atomic.Int64
}

// NewProcessor creates a processor for the given categories. snapshots may be nil.
// A scrape-only processor may omit writer and a load-only one may omit fetcher.
func NewProcessor(fetcher Fetcher, writer ItemWriter, categories []int, snapshots *snapshot.Store) (*Processor, error) {
	if fetcher == nil && writer == nil {
		return nil, errors.New("fetcher and item writer cannot both be nil")
	}
	if len(categories) == 0 {
		return nil, errors.New("no categories configured")
	}
	return &Processor{
		fetcher:    fetcher,
		writer:     writer,
		snapshots:  snapshots,
		categories: categories,
		now:        time.Now,
	}, nil
}

// SetClock replaces the time source used for durations and snapshot stamps.
func (p *Processor) SetClock(now func() time.Time) {
	p.now = now
}

// RunCycle fetches every category and imports its items. A failing category is recorded
// in the summary and contributes nothing; the cycle moves on to the next one.
func (p *Processor) RunCycle(ctx context.Context) (*Summary, error) {
	if p.fetcher == nil || p.writer == nil {
		return nil, errors.New("ingestion cycle needs both a fetcher and an item writer")
	}

	start := p.now()
	summary := &Summary{}

	for _, id := range p.categories {
		if err := ctx.Err(); err != nil {
			summary.Duration = p.now().Sub(start)
			return summary, err
		}

		result := CategoryResult{CategoryID: id, Source: "feed"}

		f, err := p.fetcher.Fetch(ctx, id)
		if err != nil {
			result.Err = err
			log.Warn().Err(err).Int("category_id", id).Msg("Category fetch failed, continuing")
			summary.add(result)
			continue
		}
		result.Name = f.Title
		result.Fetched = len(f.Items)

		if p.snapshots != nil && len(f.Items) > 0 {
			if path, err := p.snapshots.Save(snapshot.FromFeed(f, p.now())); err != nil {
				log.Warn().Err(err).Int("category_id", id).Msg("Failed to write snapshot")
			} else {
				log.Debug().Str("path", path).Int("category_id", id).Msg("Snapshot written")
			}
		}

		result.Inserted, result.Skipped, result.Err = p.writer.ImportItems(ctx, id, f.Items)
		if result.Err != nil {
			log.Error().Err(result.Err).Int("category_id", id).Msg("Category import failed, continuing")
		} else {
			log.Info().
				Int("category_id", id).
				Str("category", result.Name).
				Int("fetched", result.Fetched).
				Int("inserted", result.Inserted).
				Int("skipped", result.Skipped).
				Msg("Category processed")
		}
		summary.add(result)
	}

	summary.Duration = p.now().Sub(start)
	p.record(summary)
	return summary, nil
}

// Scrape fetches every category and writes a snapshot for each one that returned items.
// Nothing is imported.
func (p *Processor) Scrape(ctx context.Context) (*Summary, error) {
	if p.snapshots == nil {
		return nil, errors.New("scrape needs a snapshot directory")
	}
	if p.fetcher == nil {
		return nil, errors.New("scrape needs a fetcher")
	}

	start := p.now()
	summary := &Summary{}

	for _, id := range p.categories {
		if err := ctx.Err(); err != nil {
			summary.Duration = p.now().Sub(start)
			return summary, err
		}

		result := CategoryResult{CategoryID: id, Source: "feed"}
		f, err := p.fetcher.Fetch(ctx, id)
		if err != nil {
			result.Err = err
			log.Warn().Err(err).Int("category_id", id).Msg("Category fetch failed, continuing")
			summary.add(result)
			continue
		}
		result.Name = f.Title
		result.Fetched = len(f.Items)

		if len(f.Items) == 0 {
			log.Info().Int("category_id", id).Msg("No items in category, no snapshot written")
			summary.add(result)
			continue
		}

		path, err := p.snapshots.Save(snapshot.FromFeed(f, p.now()))
		if err != nil {
			result.Err = err
			log.Error().Err(err).Int("category_id", id).Msg("Failed to write snapshot")
		} else {
			result.Source = path
			log.Info().Int("category_id", id).Int("items", result.Fetched).Str("path", path).Msg("Category scraped")
		}
		summary.add(result)
	}

	summary.Duration = p.now().Sub(start)
	return summary, nil
}

// LoadSnapshots imports every snapshot file found in the snapshot directory.
// An unreadable file is recorded as a failed source.
func (p *Processor) LoadSnapshots(ctx context.Context) (*Summary, error) {
	if p.snapshots == nil {
		return nil, errors.New("load needs a snapshot directory")
	}
	if p.writer == nil {
		return nil, errors.New("load needs an item writer")
	}

	paths, err := p.snapshots.List()
	if err != nil {
		return nil, err
	}

	start := p.now()
	summary := &Summary{}
	log.Info().Int("files", len(paths)).Str("dir", p.snapshots.Dir()).Msg("Loading snapshots")

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			summary.Duration = p.now().Sub(start)
			return summary, err
		}

		result := CategoryResult{Source: path}
		snap, err := snapshot.Load(path)
		if err != nil {
			result.Err = err
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable snapshot")
			summary.add(result)
			continue
		}
		result.CategoryID = snap.CategoryID
		result.Name = snap.CategoryName
		result.Fetched = len(snap.Items)

		result.Inserted, result.Skipped, result.Err = p.writer.ImportItems(ctx, snap.CategoryID, snap.FeedItems())
		if result.Err != nil {
			log.Error().Err(result.Err).Str("path", path).Msg("Snapshot import failed, continuing")
		} else {
			log.Info().
				Str("path", path).
				Int("category_id", snap.CategoryID).
				Int("inserted", result.Inserted).
				Int("skipped", result.Skipped).
				Msg("Snapshot imported")
		}
		summary.add(result)
	}

	summary.Duration = p.now().Sub(start)
	p.record(summary)
	return summary, nil
}

// Refresh is the snapshot-based cycle: scrape every category, then load every snapshot.
func (p *Processor) Refresh(ctx context.Context) (*Summary, error) {
	scraped, err := p.Scrape(ctx)
	if err != nil {
		return scraped, err
	}
	loaded, err := p.LoadSnapshots(ctx)
	if loaded != nil && scraped != nil {
		// Fetch failures only show up in the scrape half.
		for _, r := range scraped.Failed() {
			loaded.Categories = append(loaded.Categories, r)
		}
		loaded.Duration += scraped.Duration
	}
	return loaded, err
}

func (p *Processor) record(s *Summary) {
	p.inserted.Add(int64(s.Inserted))
	p.skipped.Add(int64(s.Skipped))
}

// Stats returns inserted and skipped totals across all cycles run by this processor.
func (p *Processor) Stats() (inserted, skipped int64) {
	return p.inserted.Load(), p.skipped.Load()
}
