package models

import "time"

// FeedItem is one parsed <item> of a category feed. It is never persisted as-is.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	PubDateText string     // raw pubDate as found in the feed
	PubDate     *time.Time // nil when PubDateText matched no known layout
	Category    string
}
