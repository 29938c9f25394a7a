package feed

import (
	"strings"
	"time"
)

// pubDateLayouts are tried in order; the first successful parse wins.
var pubDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123, // named zone, e.g. GMT or IST
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05",
}

// ParsePubDate parses an RSS pubDate. It returns nil when no layout matches; values
// without a zone are read as UTC.
func ParsePubDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
