package feed

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// document is what a strict pass over the raw body reveals before gofeed sees it.
type document struct {
	root       string
	hasChannel bool
	// titles holds the untrimmed <title> text of each <item> directly under the first
	// top-level <channel>, in document order. An item without a title contributes "".
	titles []string
}

// scanDocument checks that data is well-formed XML and records the channel layout.
// Only unqualified element names count, so a namespaced channel is not a channel.
func scanDocument(data []byte) (*document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel

	doc := &document{}
	var (
		depth        int
		inChannel   bool // inside the first top-level channel
		channelSeen bool
		inItem      bool
		itemTitle   bool // the current item already has its first title
		titleDepth = -1
		titleChild bool // title text stops at its first child element
		title      []byte
		rootClosed bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if rootClosed {
				return nil, errors.New("malformed xml: content after the root element")
			}
			if titleDepth > 0 {
				titleChild = true
			}
			depth++
			local := t.Name.Local
			if t.Name.Space != "" {
				local = ""
			}
			switch {
			case depth == 1:
				doc.root = t.Name.Local
			case depth == 2 && local == "channel" && !channelSeen:
				channelSeen = true
				inChannel = true
				doc.hasChannel = true
			case depth == 3 && inChannel && local == "item":
				inItem = true
				itemTitle = false
				doc.titles = append(doc.titles, "")
			case depth == 4 && inItem && local == "title" && !itemTitle:
				titleDepth = depth
				titleChild = false
				title = title[:0]
			}

		case xml.CharData:
			if depth == titleDepth && !titleChild {
				title = append(title, t...)
			}

		case xml.EndElement:
			switch {
			case depth == titleDepth:
				doc.titles[len(doc.titles)-1] = string(title)
				itemTitle = true
				titleDepth = -1
			case depth == 3 && inItem:
				inItem = false
			case depth == 2 && inChannel:
				inChannel = false
			case depth == 1:
				rootClosed = true
			}
			depth--
		}
	}

	if doc.root == "" {
		return nil, errors.New("malformed xml: no root element")
	}
	return doc, nil
}
