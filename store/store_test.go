package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityflow/neurotraff/models"
)

type fakeExec struct {
	seen map[string]bool
	sql  []string
	args [][]any
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	if len(args) == 0 {
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	}
	id := args[0].(string)
	if f.seen[id] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	f.seen[id] = true
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func sample(id string) models.FlowSample {
	speed := 42.0
	return models.FlowSample{
		ID: id, Road: "LBS Marg", Point: "19.1960,72.9600",
		TS:           time.Date(2025, 9, 9, 8, 0, 0, 0, time.FixedZone("IST", 19800)),
		CurrentSpeed: &speed,
	}
}

func TestAppendIsIdempotentOnID(t *testing.T) {
	db := &fakeExec{seen: map[string]bool{}}
	w := &PgWriter{db: db}

	inserted, err := w.Append(context.Background(), sample("a"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = w.Append(context.Background(), sample("a"))
	require.NoError(t, err)
	assert.False(t, inserted)

	assert.Contains(t, db.sql[0], "ON CONFLICT (id) DO NOTHING")
	ts := db.args[0][3].(time.Time)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Nil(t, db.args[0][5].(*string))
}

func TestAppendValidatesAndWrapsErrors(t *testing.T) {
	db := &fakeExec{seen: map[string]bool{}}
	w := &PgWriter{db: db}

	_, err := w.Append(context.Background(), models.FlowSample{ID: "x", Road: "r"})
	assert.ErrorIs(t, err, ErrInvalidSample)
	assert.Empty(t, db.sql)

	boom := errors.New("connection reset")
	w = &PgWriter{db: &fakeExec{err: boom}}
	_, err = w.Append(context.Background(), sample("b"))
	assert.ErrorIs(t, err, boom)
}

func TestMigrate(t *testing.T) {
	db := &fakeExec{seen: map[string]bool{}}
	require.NoError(t, (&PgWriter{db: db}).Migrate(context.Background()))
	assert.Contains(t, db.sql[0], "CREATE TABLE IF NOT EXISTS flow_samples")
}

func TestPageOf(t *testing.T) {
	rows := []models.FlowSample{sample("c"), sample("b"), sample("a")}
	rows[1].TS = rows[0].TS.Add(-time.Minute)

	p := pageOf(rows, 2)
	assert.True(t, p.HasMore)
	require.Len(t, p.Samples, 2)
	require.NotNil(t, p.NextCursor)
	assert.True(t, p.NextCursor.TS.Equal(rows[1].TS))
	assert.Equal(t, "b", p.NextCursor.ID)

	p = pageOf(rows[:1], 2)
	assert.False(t, p.HasMore)
	assert.Nil(t, p.NextCursor)

	p = pageOf(nil, 2)
	assert.NotNil(t, p.Samples)
}

// olderThan applies the (ts, id) < (?, ?) row comparison List sends to
// Postgres, over rows already in ts DESC, id DESC order.
func olderThan(rows []models.FlowSample, c *Cursor) []models.FlowSample {
	if c == nil {
		return rows
	}
	var out []models.FlowSample
	for _, r := range rows {
		if r.TS.Before(c.TS) || (r.TS.Equal(c.TS) && r.ID < c.ID) {
			out = append(out, r)
		}
	}
	return out
}

func TestPagingAcrossSharedTimestamps(t *testing.T) {
	newer := time.Date(2025, 9, 9, 8, 15, 0, 0, time.UTC)
	older := newer.Add(-15 * time.Minute)

	// two fetch cycles of 41 points each, every row of a cycle on one ts
	var rows []models.FlowSample
	for _, ts := range []time.Time{newer, older} {
		for i := 40; i >= 0; i-- {
			rows = append(rows, models.FlowSample{ID: fmt.Sprintf("%s-%02d", ts.Format("1504"), i), TS: ts})
		}
	}

	seen := map[string]bool{}
	var cursor *Cursor
	pages := 0
	for {
		candidates := olderThan(rows, cursor)
		if len(candidates) > DefaultLimit+1 {
			candidates = candidates[:DefaultLimit+1]
		}
		p := pageOf(candidates, DefaultLimit)
		pages++
		for _, r := range p.Samples {
			assert.False(t, seen[r.ID], "row %s returned twice", r.ID)
			seen[r.ID] = true
		}
		if !p.HasMore {
			break
		}
		require.NotNil(t, p.NextCursor)
		if pages == 1 {
			// boundary falls inside the older cycle
			assert.True(t, p.NextCursor.TS.Equal(older))
		}
		cursor = p.NextCursor
		require.Less(t, pages, 5)
	}
	assert.Equal(t, 2, pages)
	assert.Len(t, seen, len(rows))
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{TS: time.Date(2025, 9, 9, 8, 0, 0, 500, time.FixedZone("IST", 19800)), ID: "7f1c"}
	got, err := ParseCursor(c.String())
	require.NoError(t, err)
	assert.True(t, got.TS.Equal(c.TS))
	assert.Equal(t, "7f1c", got.ID)

	bare, err := ParseCursor("2025-09-09T12:00:00Z")
	require.NoError(t, err)
	assert.Empty(t, bare.ID)

	_, err = ParseCursor("yesterday|7f1c")
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, clampLimit(0))
	assert.Equal(t, DefaultLimit, clampLimit(-3))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, MaxLimit, clampLimit(MaxLimit+1))
}

func TestRangeRejectsEmptyWindow(t *testing.T) {
	now := time.Now()
	_, err := (&HistoryStore{}).Range(context.Background(), now, now)
	assert.Error(t, err)
}
