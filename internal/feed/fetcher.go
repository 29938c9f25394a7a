package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed/rss"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"civicease/civicfeed/internal/models"
)

const maxBodyBytes = 16 << 20

// Config controls how category feeds are requested.
type Config struct {
	URLTemplate string // fmt template with one %d for the category id
	UserAgent   string
	Timeout     time.Duration
}

// Feed is the parsed content of one category feed.
type Feed struct {
	CategoryID  int
	Title       string
	Description string
	Items       []models.FeedItem
}

// Fetcher downloads and parses category feeds.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets one with cfg.Timeout.
func NewFetcher(cfg Config, client *http.Client) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{cfg: cfg, client: client}
}

// URL returns the feed address for a category.
func (f *Fetcher) URL(categoryID int) string {
	return fmt.Sprintf(f.cfg.URLTemplate, categoryID)
}

// Fetch retrieves and parses the feed for categoryID. A document without a top-level
// channel yields an empty Feed and no error; malformed XML is an error.
func (f *Fetcher) Fetch(ctx context.Context, categoryID int) (*Feed, error) {
	url := f.URL(categoryID)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for category %d: %w", categoryID, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch category %d: %w", categoryID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("category %d: feed returned status %d", categoryID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read category %d body: %w", categoryID, err)
	}

	feed, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse category %d feed: %w", categoryID, err)
	}
	feed.CategoryID = categoryID

	log.Debug().
		Int("category_id", categoryID).
		Str("channel", feed.Title).
		Int("items", len(feed.Items)).
		Msg("Fetched category feed")

	return feed, nil
}

// Parse converts an RSS document into a Feed. The body must be well-formed XML. A root
// without a top-level <channel> yields an empty Feed. Item titles keep their source
// whitespace; other missing fields become empty strings and unparseable dates become nil.
func Parse(data []byte) (*Feed, error) {
	doc, err := scanDocument(data)
	if err != nil {
		return nil, err
	}
	if !doc.hasChannel {
		log.Debug().Str("root", doc.root).Msg("Document has no channel, treating as empty feed")
		return &Feed{Items: []models.FeedItem{}}, nil
	}

	parser := &rss.Parser{}
	channel, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	// gofeed trims titles; the raw text is the dedup key.
	rawTitles := len(doc.titles) == len(channel.Items)
	if !rawTitles {
		log.Debug().
			Int("scanned", len(doc.titles)).
			Int("parsed", len(channel.Items)).
			Msg("Item count mismatch, keeping parsed titles")
	}

	items := lo.Map(channel.Items, func(item *rss.Item, i int) models.FeedItem {
		fi := models.FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			PubDateText: item.PubDate,
		}
		if rawTitles {
			fi.Title = doc.titles[i]
		}
		if len(item.Categories) > 0 && item.Categories[0] != nil {
			fi.Category = item.Categories[0].Value
		}
		fi.PubDate = ParsePubDate(item.PubDate)
		return fi
	})

	return &Feed{
		Title:       channel.Title,
		Description: channel.Description,
		Items:       items,
	}, nil
}
