package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Params is the raw page request taken from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor is a keyset position: rows strictly older than (CreatedAt, ID).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Request is Params after validation. Fetch is the row count to query,
// one more than Limit so that a following page can be detected.
type Request struct {
	Limit  int
	Fetch  int
	Cursor *Cursor
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Prepare normalizes the limit and decodes the cursor.
func (p Params) Prepare() (Request, error) {
	limit := NormalizeLimit(p.Limit)
	req := Request{Limit: limit, Fetch: limit + 1}
	cursor, err := ParseCursor(p.Cursor)
	if err != nil {
		return Request{}, err
	}
	req.Cursor = cursor
	return req, nil
}

// Trim cuts rows fetched with Request.Fetch down to one page and returns the
// cursor of the last kept row when another page exists.
func Trim[T any](rows []T, limit int, position func(T) Cursor) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	return page, EncodeCursor(position(page[limit-1]))
}

// EncodeCursor returns an opaque, URL-safe cursor token.
func EncodeCursor(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token from EncodeCursor. A blank token yields nil.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("%w: missing separator", ErrInvalidCursor)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: createdAt, ID: parsedID}, nil
}
