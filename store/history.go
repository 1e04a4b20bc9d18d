package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"cityflow/neurotraff/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Cursor is the (ts, id) key of the last row of a page. Rows of one fetch
// cycle share a timestamp, so the id breaks the tie.
type Cursor struct {
	TS time.Time
	ID string
}

func (c Cursor) String() string {
	return c.TS.UTC().Format(time.RFC3339Nano) + "|" + c.ID
}

// ParseCursor reads "<rfc3339>|<id>". A bare timestamp is accepted and
// selects rows strictly older than it.
func ParseCursor(s string) (Cursor, error) {
	tsStr, id, _ := strings.Cut(s, "|")
	ts, err := time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor %q: %w", s, err)
	}
	return Cursor{TS: ts, ID: id}, nil
}

// Query selects a page of samples, newest first. Before is an exclusive
// upper bound on (ts, id).
type Query struct {
	Road   string
	Limit  int
	Before *Cursor
}

type Page struct {
	Samples    []models.FlowSample
	NextCursor *Cursor
	HasMore    bool
}

// HistoryStore reads stored samples through gorm.
type HistoryStore struct {
	db *gorm.DB
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) List(ctx context.Context, q Query) (Page, error) {
	q.Limit = clampLimit(q.Limit)

	query := s.db.WithContext(ctx).Model(&models.FlowSample{}).
		Order("ts DESC").Order("id DESC").Limit(q.Limit + 1)
	if q.Before != nil {
		query = query.Where("(ts, id) < (?, ?)", q.Before.TS.UTC(), q.Before.ID)
	}
	if q.Road != "" {
		query = query.Where("road = ?", q.Road)
	}

	var rows []models.FlowSample
	if err := query.Find(&rows).Error; err != nil {
		return Page{}, err
	}
	return pageOf(rows, q.Limit), nil
}

// Range returns samples with from <= ts < to ordered by timestamp, for training.
func (s *HistoryStore) Range(ctx context.Context, from, to time.Time) ([]models.FlowSample, error) {
	if !from.Before(to) {
		return nil, errors.New("empty time range")
	}
	var rows []models.FlowSample
	err := s.db.WithContext(ctx).
		Where("ts >= ? AND ts < ?", from.UTC(), to.UTC()).
		Order("ts ASC").Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// pageOf trims a limit+1 fetch down to limit rows and derives the cursor.
func pageOf(rows []models.FlowSample, limit int) Page {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}
	p := Page{Samples: rows, HasMore: hasMore}
	if p.Samples == nil {
		p.Samples = []models.FlowSample{}
	}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		p.NextCursor = &Cursor{TS: last.TS, ID: last.ID}
	}
	return p
}
