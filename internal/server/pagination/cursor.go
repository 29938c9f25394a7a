package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = "|"
const timeFormat = time.RFC3339Nano

// Cursor marks the last row of a page in (created_at, id) order.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// Encode returns the opaque form handed to clients.
func (c Cursor) Encode() string {
	key := c.CreatedAt.UTC().Format(timeFormat) + cursorSeparator + strconv.FormatInt(c.ID, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Decode parses an opaque cursor produced by Encode.
func Decode(encoded string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	ts, idStr, ok := strings.Cut(string(raw), cursorSeparator)
	if !ok {
		return Cursor{}, fmt.Errorf("invalid cursor format")
	}

	createdAt, err := time.Parse(timeFormat, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid timestamp in cursor: %w", err)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return Cursor{}, fmt.Errorf("invalid id in cursor")
	}

	return Cursor{CreatedAt: createdAt.UTC(), ID: id}, nil
}
