// Package pagination implements newest-first cursor paging over time-ordered rows.
//
// A cursor names the last row of the previous page by (created_at, id). Rows are
// ordered by created_at descending with id descending as the tie-break, so rows
// sharing a timestamp are never skipped or repeated across pages.
package pagination

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 30
	MaxLimit     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

type Cursor struct {
	CreatedAt time.Time
	// ID is uuid.Nil for timestamp-only cursors.
	ID uuid.UUID
}

// HasTieBreak reports whether the cursor carries an id.
func (c Cursor) HasTieBreak() bool {
	return c.ID != uuid.Nil
}

// String renders the cursor as "<RFC3339Nano>_<uuid>".
func (c Cursor) String() string {
	ts := c.CreatedAt.UTC().Format(time.RFC3339Nano)
	if !c.HasTieBreak() {
		return ts
	}
	return ts + "_" + c.ID.String()
}

// Parse accepts either the composite form or a bare RFC3339 timestamp.
func Parse(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	ts, idPart, hasID := strings.Cut(s, "_")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	c := &Cursor{CreatedAt: t.UTC()}
	if hasID {
		id, err := uuid.Parse(idPart)
		if err != nil {
			return nil, ErrInvalidCursor
		}
		c.ID = id
	}
	return c, nil
}

// NormalizeLimit clamps a requested page size. Non-positive means "use default".
func NormalizeLimit(limit, def, max int) int {
	if max <= 0 {
		max = MaxLimit
	}
	if def <= 0 || def > max {
		def = DefaultLimit
	}
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

type Page[T any] struct {
	Items      []T
	NextCursor *Cursor
	HasMore    bool
}

// Trim applies the limit+1 rule to rows fetched newest-first: if more than limit
// rows came back there is another page, and its cursor is the key of the last row
// kept.
func Trim[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}
	}
	items := rows[:limit]
	next := key(items[len(items)-1])
	return Page[T]{Items: items, NextCursor: &next, HasMore: true}
}
