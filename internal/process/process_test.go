package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"civicease/civicfeed/internal/feed"
	importfeeds "civicease/civicfeed/internal/import"
	"civicease/civicfeed/internal/models"
	"civicease/civicfeed/internal/snapshot"
	"civicease/civicfeed/internal/testsupport"
)

type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, categoryID int) (*feed.Feed, error) {
	args := m.Called(ctx, categoryID)
	if f, ok := args.Get(0).(*feed.Feed); ok {
		return f, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) ImportItems(ctx context.Context, categoryID int, items []models.FeedItem) (int, int, error) {
	args := m.Called(ctx, categoryID, items)
	return args.Int(0), args.Int(1), args.Error(2)
}

func allCategories() []int {
	ids := make([]int, 13)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func feedWith(id int, titles ...string) *feed.Feed {
	f := &feed.Feed{CategoryID: id, Title: fmt.Sprintf("Category %d", id)}
	for _, t := range titles {
		f.Items = append(f.Items, models.FeedItem{Title: t})
	}
	return f
}

func TestNewProcessorValidates(t *testing.T) {
	_, err := NewProcessor(nil, nil, []int{1}, nil)
	assert.Error(t, err)
	_, err = NewProcessor(&MockFetcher{}, &MockWriter{}, nil, nil)
	assert.Error(t, err)
}

func TestPartialProcessorRefusesMissingHalf(t *testing.T) {
	store := snapshot.NewStore(t.TempDir())

	scrapeOnly, err := NewProcessor(&MockFetcher{}, nil, []int{1}, store)
	require.NoError(t, err)
	_, err = scrapeOnly.RunCycle(context.Background())
	assert.Error(t, err)
	_, err = scrapeOnly.LoadSnapshots(context.Background())
	assert.Error(t, err)

	loadOnly, err := NewProcessor(nil, &MockWriter{}, []int{1}, store)
	require.NoError(t, err)
	_, err = loadOnly.Scrape(context.Background())
	assert.Error(t, err)
}

func TestRunCycleSurvivesFailingCategory(t *testing.T) {
	fetcher := &MockFetcher{}
	writer := &MockWriter{}

	for _, id := range allCategories() {
		if id == 7 {
			fetcher.On("Fetch", mock.Anything, 7).Return(nil, errors.New("connection reset by peer"))
			continue
		}
		f := feedWith(id, fmt.Sprintf("item %d", id))
		fetcher.On("Fetch", mock.Anything, id).Return(f, nil)
		writer.On("ImportItems", mock.Anything, id, f.Items).Return(1, 0, nil)
	}

	p, err := NewProcessor(fetcher, writer, allCategories(), nil)
	require.NoError(t, err)

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 12, summary.Inserted)
	assert.Zero(t, summary.Skipped)
	require.Len(t, summary.Categories, 13)
	failed := summary.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 7, failed[0].CategoryID)
	assert.Zero(t, failed[0].Inserted)
	assert.Contains(t, summary.String(), "13 sources, 1 failed: 12 inserted, 0 skipped")
	assert.Contains(t, summary.String(), "connection reset by peer")

	writer.AssertNotCalled(t, "ImportItems", mock.Anything, 7, mock.Anything)
	fetcher.AssertExpectations(t)
	writer.AssertExpectations(t)

	inserted, skipped := p.Stats()
	assert.Equal(t, int64(12), inserted)
	assert.Zero(t, skipped)
}

func TestRunCycleImportErrorIsPerCategory(t *testing.T) {
	fetcher := &MockFetcher{}
	writer := &MockWriter{}

	f1, f2 := feedWith(1, "a"), feedWith(2, "b", "c")
	fetcher.On("Fetch", mock.Anything, 1).Return(f1, nil)
	fetcher.On("Fetch", mock.Anything, 2).Return(f2, nil)
	writer.On("ImportItems", mock.Anything, 1, f1.Items).Return(0, 0, errors.New("database is locked"))
	writer.On("ImportItems", mock.Anything, 2, f2.Items).Return(1, 1, nil)

	p, err := NewProcessor(fetcher, writer, []int{1, 2}, nil)
	require.NoError(t, err)

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, summary.Failed(), 1)
}

func TestRunCycleStopsOnCancel(t *testing.T) {
	fetcher := &MockFetcher{}
	writer := &MockWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	f1 := feedWith(1, "a")
	fetcher.On("Fetch", mock.Anything, 1).Return(f1, nil)
	writer.On("ImportItems", mock.Anything, 1, f1.Items).Return(1, 0, nil).Run(func(mock.Arguments) { cancel() })

	p, err := NewProcessor(fetcher, writer, []int{1, 2, 3}, nil)
	require.NoError(t, err)

	summary, err := p.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, summary.Categories, 1)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, 2)
}

func TestRunCycleEndToEndWithStore(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, 1).Return(feedWith(1, "Same title", "Only in one"), nil)
	fetcher.On("Fetch", mock.Anything, 2).Return(feedWith(2, "Same title"), nil)
	fetcher.On("Fetch", mock.Anything, 3).Return(feedWith(3), nil) // channel with zero items

	snapDir := filepath.Join(t.TempDir(), "rss_data")
	p, err := NewProcessor(fetcher, importfeeds.NewImporter(db), []int{1, 2, 3}, snapshot.NewStore(snapDir))
	require.NoError(t, err)

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, summary.Failed())

	empty := summary.Categories[2]
	assert.Zero(t, empty.Inserted)
	assert.Zero(t, empty.Skipped)
	assert.NoError(t, empty.Err)

	_, err = os.Stat(filepath.Join(snapDir, "category_1.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(snapDir, "category_3.json"))
	assert.True(t, os.IsNotExist(err), "empty categories leave no snapshot")

	again, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 3, again.Skipped)
}

func TestScrapeThenLoadSnapshots(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	store := snapshot.NewStore(t.TempDir())

	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, 1).Return(feedWith(1, "Birth certificate"), nil)
	fetcher.On("Fetch", mock.Anything, 2).Return(nil, errors.New("feed returned status 500"))
	fetcher.On("Fetch", mock.Anything, 3).Return(feedWith(3, "Land records", "Birth certificate"), nil)

	p, err := NewProcessor(fetcher, importfeeds.NewImporter(db), []int{1, 2, 3}, store)
	require.NoError(t, err)

	scraped, err := p.Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, scraped.Failed(), 1)
	assert.Zero(t, scraped.Inserted)

	n, err := db.CountAnnouncements(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "scrape does not import")

	loaded, err := p.LoadSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Inserted)
	assert.Equal(t, 1, loaded.Skipped)
	assert.Len(t, loaded.Categories, 2)
}

func TestLoadSnapshotsRecordsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "category_4.json"), []byte("garbage"), 0o644))

	writer := &MockWriter{}
	p, err := NewProcessor(&MockFetcher{}, writer, []int{4}, snapshot.NewStore(dir))
	require.NoError(t, err)

	summary, err := p.LoadSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Failed(), 1)
	writer.AssertNotCalled(t, "ImportItems", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefreshCarriesFetchFailures(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, 1).Return(feedWith(1, "Gas subsidy"), nil)
	fetcher.On("Fetch", mock.Anything, 2).Return(nil, errors.New("timeout"))

	p, err := NewProcessor(fetcher, importfeeds.NewImporter(db), []int{1, 2}, snapshot.NewStore(t.TempDir()))
	require.NoError(t, err)

	summary, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Len(t, summary.Failed(), 1)
}

func TestScrapeNeedsSnapshotStore(t *testing.T) {
	p, err := NewProcessor(&MockFetcher{}, &MockWriter{}, []int{1}, nil)
	require.NoError(t, err)
	_, err = p.Scrape(context.Background())
	assert.Error(t, err)
	_, err = p.LoadSnapshots(context.Background())
	assert.Error(t, err)
}

func TestFetchedAndSnapshotTitlesShareDedupKey(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	store := snapshot.NewStore(t.TempDir())

	f, err := feed.Parse([]byte(`<rss version="2.0"><channel><title>Transport</title>
		<item><title>  Renew permit  </title></item>
		<item><title>   </title></item>
	</channel></rss>`))
	require.NoError(t, err)
	f.CategoryID = 5

	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, 5).Return(f, nil)

	p, err := NewProcessor(fetcher, importfeeds.NewImporter(db), []int{5}, store)
	require.NoError(t, err)

	direct, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, direct.Inserted)

	var titles []string
	require.NoError(t, db.Select(&titles, `SELECT title FROM posts ORDER BY id`))
	assert.Equal(t, []string{"  Renew permit  ", "   "}, titles)

	loaded, err := p.LoadSnapshots(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded.Inserted)
	assert.Equal(t, 2, loaded.Skipped)
}

func TestLoadSnapshotsAcceptsScraperOutput(t *testing.T) {
	db := testsupport.MustOpenDB(t)
	dir := t.TempDir()
	raw := `{
  "category_id": 3,
  "category_name": "Health",
  "title": "Health",
  "description": null,
  "scraped_at": "2025-06-10T14:30:00.123456",
  "items": [
    {"title": "Vaccination drive", "link": null, "description": null, "pubDate": "Tue, 10 Jun 2025 14:30:00 +0530", "category": "Health"},
    {"title": null, "link": "https://example.gov/x", "description": "", "pubDate": null, "category": null}
  ]
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "category_3.json"), []byte(raw), 0o644))

	p, err := NewProcessor(nil, importfeeds.NewImporter(db), []int{3}, snapshot.NewStore(dir))
	require.NoError(t, err)

	summary, err := p.LoadSnapshots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Failed())
	assert.Equal(t, 2, summary.Inserted)

	var titles []string
	require.NoError(t, db.Select(&titles, `SELECT title FROM posts ORDER BY id`))
	assert.Equal(t, []string{"Vaccination drive", importfeeds.UntitledTitle}, titles)
}
