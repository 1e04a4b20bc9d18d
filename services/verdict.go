package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cityflow/neurotraff/aggregate"
	"cityflow/neurotraff/classifier"
	"cityflow/neurotraff/frame"
	"cityflow/neurotraff/metrics"
	"cityflow/neurotraff/models"
	"cityflow/neurotraff/pipeline"
	"cityflow/neurotraff/provider"
)

// ErrModelUnavailable is returned when no fitted pipeline and classifier are loaded.
var ErrModelUnavailable = errors.New("model artifacts are not loaded")

type RoadCatalog interface {
	Points(name string) ([]string, error)
}

type PointFetcher interface {
	FetchRoad(ctx context.Context, road string, points []string, now time.Time) []provider.PointResult
}

// Scorer classifies raw flow records; classifier.Bundle implements it.
type Scorer interface {
	Classify(raw *frame.Frame) ([]classifier.Classification, error)
}

type VerdictCache interface {
	GetVerdict(ctx context.Context, road string) (*RoadVerdict, error)
	SetVerdict(ctx context.Context, v *RoadVerdict, ttl time.Duration) error
	PublishVerdict(ctx context.Context, v *RoadVerdict) error
}

// RoadVerdict is the answer for one road. Data holds the samples the verdict
// was computed from; FailedPoints lists points whose fetch failed.
type RoadVerdict struct {
	Status            string              `json:"status"`
	Road              string              `json:"road"`
	Data              []models.FlowSample `json:"data"`
	TrafficLevel      string              `json:"traffic_level"`
	ClearTimeEstimate int                 `json:"clear_time_estimate"`
	FailedPoints      []string            `json:"failed_points"`
	EvaluatedAt       time.Time           `json:"evaluated_at"`
}

type VerdictOptions struct {
	Window       AccessWindow
	AllowPartial bool
	CacheTTL     time.Duration
}

// VerdictService holds only read-only state and serves concurrent requests.
type VerdictService struct {
	catalog RoadCatalog
	fetcher PointFetcher
	scorer  Scorer
	cache   VerdictCache
	opts    VerdictOptions
}

// NewVerdictService wires the verdict flow. A nil scorer makes every
// evaluation fail with ErrModelUnavailable; a nil cache disables caching.
func NewVerdictService(catalog RoadCatalog, fetcher PointFetcher, scorer Scorer, cache VerdictCache, opts VerdictOptions) *VerdictService {
	return &VerdictService{catalog: catalog, fetcher: fetcher, scorer: scorer, cache: cache, opts: opts}
}

// Evaluate fetches every point of road, classifies each and folds the
// results into one verdict.
func (s *VerdictService) Evaluate(ctx context.Context, road string, now time.Time) (*RoadVerdict, error) {
	if err := s.opts.Window.Check(now); err != nil {
		return nil, err
	}
	road = strings.TrimSpace(road)
	points, err := s.catalog.Points(road)
	if err != nil {
		return nil, err
	}
	if s.scorer == nil {
		return nil, ErrModelUnavailable
	}

	if s.cache != nil && s.opts.CacheTTL > 0 {
		if v, err := s.cache.GetVerdict(ctx, road); err == nil {
			metrics.VerdictCacheHits.Inc()
			return v, nil
		}
	}

	results := s.fetcher.FetchRoad(ctx, road, points, now)
	failed := provider.Failed(results)
	for _, r := range results {
		if r.Err != nil {
			metrics.PointFetchFailures.Inc()
			log.Printf("fetch failed road=%s point=%s: %v", road, r.Point, r.Err)
		}
	}
	samples := provider.Samples(results)
	if len(samples) == 0 || (len(failed) > 0 && !s.opts.AllowPartial) {
		return nil, firstError(results)
	}

	classes, err := s.scorer.Classify(pipeline.FromSamples(samples))
	if err != nil {
		return nil, fmt.Errorf("classify road %s: %w", road, err)
	}
	scored := make([]aggregate.Sample, len(classes))
	for i, c := range classes {
		scored[i] = aggregate.Sample{Level: c.Level, Delay: c.Delay}
	}
	agg, err := aggregate.Aggregate(scored)
	if err != nil {
		return nil, err
	}

	v := &RoadVerdict{
		Status:            "success",
		Road:              road,
		Data:              samples,
		TrafficLevel:      agg.Level,
		ClearTimeEstimate: agg.ClearTimeMinutes,
		FailedPoints:      failed,
		EvaluatedAt:       now.UTC(),
	}
	if v.FailedPoints == nil {
		v.FailedPoints = []string{}
	}

	if s.cache != nil {
		if err := s.cache.PublishVerdict(ctx, v); err != nil {
			log.Printf("verdict publish failed road=%s: %v", road, err)
		}
		if s.opts.CacheTTL > 0 {
			if err := s.cache.SetVerdict(ctx, v, s.opts.CacheTTL); err != nil {
				log.Printf("verdict cache write failed road=%s: %v", road, err)
			}
		}
	}
	return v, nil
}

func firstError(results []provider.PointResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return errors.New("no points fetched")
}
