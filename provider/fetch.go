package provider

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cityflow/neurotraff/models"
)

// PointResult is the outcome for one point. Exactly one of Sample and Err is meaningful.
type PointResult struct {
	Point  string
	Sample models.FlowSample
	Err    error
}

// FetchRoad fetches every point of a road with bounded parallelism. Results
// come back in the order of points regardless of completion order, and all
// samples share the observation time now.
func (c *Client) FetchRoad(ctx context.Context, road string, points []string, now time.Time) []PointResult {
	results := make([]PointResult, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, point := range points {
		i, point := i, point
		g.Go(func() error {
			results[i].Point = point
			seg, err := c.FetchFlowSegment(gctx, point)
			if err != nil {
				results[i].Err = err
				// one bad point must not cancel its siblings
				return nil
			}
			results[i].Sample = seg.Sample(road, point, now)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Sample turns a fetched segment into a flow record with a fresh id.
func (s *FlowSegment) Sample(road, point string, ts time.Time) models.FlowSample {
	return models.FlowSample{
		ID:                 uuid.NewString(),
		Road:               road,
		Point:              point,
		TS:                 ts.UTC(),
		RoadName:           s.RoadName,
		FRC:                s.FRC,
		CurrentSpeed:       s.CurrentSpeed,
		FreeFlowSpeed:      s.FreeFlowSpeed,
		CurrentTravelTime:  s.CurrentTravelTime,
		FreeFlowTravelTime: s.FreeFlowTravelTime,
		Confidence:         s.Confidence,
		RoadClosure:        s.RoadClosure,
	}
}

// Failed lists the points whose fetch failed, in order.
func Failed(results []PointResult) []string {
	var out []string
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r.Point)
		}
	}
	return out
}

// Samples returns the successful samples, in order.
func Samples(results []PointResult) []models.FlowSample {
	out := make([]models.FlowSample, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Sample)
		}
	}
	return out
}
