// Package store persists flow samples. Samples are append-only: nothing here
// updates or deletes a stored row.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityflow/neurotraff/models"
)

// Schema creates the samples table when it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS flow_samples (
	id                    TEXT PRIMARY KEY,
	road                  TEXT NOT NULL,
	point                 TEXT NOT NULL,
	ts                    TIMESTAMPTZ NOT NULL,
	road_name             TEXT,
	frc                   TEXT,
	current_speed         DOUBLE PRECISION,
	free_flow_speed       DOUBLE PRECISION,
	current_travel_time   DOUBLE PRECISION,
	free_flow_travel_time DOUBLE PRECISION,
	confidence            DOUBLE PRECISION,
	road_closure          BOOLEAN
);
CREATE INDEX IF NOT EXISTS flow_samples_road_ts ON flow_samples (road, ts DESC);
CREATE INDEX IF NOT EXISTS flow_samples_ts ON flow_samples (ts);
`

const insertSample = `
	INSERT INTO flow_samples (id, road, point, ts, road_name, frc, current_speed, free_flow_speed,
		current_travel_time, free_flow_travel_time, confidence, road_closure)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO NOTHING
`

var ErrInvalidSample = errors.New("sample requires id, road and point")

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgWriter appends samples through a pgx pool.
type PgWriter struct {
	db execer
}

func NewPgWriter(pool *pgxpool.Pool) *PgWriter {
	return &PgWriter{db: pool}
}

func (w *PgWriter) Migrate(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create flow_samples: %w", err)
	}
	return nil
}

// Append stores s. It reports false when a sample with the same id already
// exists, in which case the stored row is left untouched.
func (w *PgWriter) Append(ctx context.Context, s models.FlowSample) (bool, error) {
	if s.ID == "" || s.Road == "" || s.Point == "" {
		return false, ErrInvalidSample
	}
	tag, err := w.db.Exec(ctx, insertSample,
		s.ID, s.Road, s.Point, s.TS.UTC(), s.RoadName, s.FRC,
		s.CurrentSpeed, s.FreeFlowSpeed, s.CurrentTravelTime, s.FreeFlowTravelTime,
		s.Confidence, s.RoadClosure,
	)
	if err != nil {
		return false, fmt.Errorf("insert sample %s: %w", s.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}
