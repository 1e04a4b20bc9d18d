package pipeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cityflow/neurotraff/frame"
)

// Stage is one transformation step. Fit returns a fitted copy and never
// mutates the receiver; Apply returns a new frame and never mutates its input.
// The set of stages is closed: only this package can implement it.
type Stage interface {
	Name() string
	Fit(in *frame.Frame) (Stage, error)
	Apply(in *frame.Frame) (*frame.Frame, error)
	record() (stageRecord, error)
}

// Traffic level boundaries on the delay ratio. Both are inclusive upper bounds.
const (
	LowMaxRatio    = 0.15
	MediumMaxRatio = 0.5
)

const (
	LevelLow    = "Low"
	LevelMedium = "Medium"
	LevelHigh   = "High"
)

// LocalZone is the civil time zone calendar features are extracted in (IST, UTC+5:30).
var LocalZone = time.FixedZone("IST", 5*3600+30*60)

func requireColumns(stage string, in *frame.Frame, names ...string) error {
	var missing []string
	for _, n := range names {
		if !in.Has(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Stage: stage, Columns: missing}
	}
	return nil
}

func numericColumn(stage string, in *frame.Frame, name string) (*frame.Column, error) {
	col, ok := in.Column(name)
	if !ok {
		return nil, &SchemaError{Stage: stage, Columns: []string{name}}
	}
	if !col.Kind().Numeric() {
		return nil, &SchemaError{Stage: stage, Columns: []string{name},
			Detail: fmt.Sprintf("column %q is %s, want numeric", name, col.Kind())}
	}
	return col, nil
}

// ColumnProjector drops a fixed set of columns. Absent columns are ignored.
type ColumnProjector struct {
	name string
	drop []string
}

func NewColumnProjector(name string, drop ...string) *ColumnProjector {
	return &ColumnProjector{name: name, drop: append([]string(nil), drop...)}
}

func (s *ColumnProjector) Name() string                    { return s.name }
func (s *ColumnProjector) Fit(*frame.Frame) (Stage, error) { return s, nil }

func (s *ColumnProjector) Apply(in *frame.Frame) (*frame.Frame, error) {
	return in.Drop(s.drop...), nil
}

// DelayCalculator derives Delay = current - free-flow travel time, and the
// delay ratio Delay / free-flow where the free-flow time is positive.
type DelayCalculator struct {
	name     string
	current  string
	freeFlow string
}

func NewDelayCalculator(name, current, freeFlow string) *DelayCalculator {
	return &DelayCalculator{name: name, current: current, freeFlow: freeFlow}
}

func (s *DelayCalculator) Name() string                    { return s.name }
func (s *DelayCalculator) Fit(*frame.Frame) (Stage, error) { return s, nil }

func (s *DelayCalculator) Apply(in *frame.Frame) (*frame.Frame, error) {
	if err := requireColumns(s.name, in, s.current, s.freeFlow); err != nil {
		return nil, err
	}
	cur, err := numericColumn(s.name, in, s.current)
	if err != nil {
		return nil, err
	}
	free, err := numericColumn(s.name, in, s.freeFlow)
	if err != nil {
		return nil, err
	}

	curV, freeV := cur.Floats(), free.Floats()
	delay := make([]float64, len(curV))
	ratio := make([]float64, len(curV))
	for i := range curV {
		delay[i] = curV[i] - freeV[i]
		ratio[i] = DelayRatio(delay[i], freeV[i])
	}

	out, err := in.With(frame.NewFloat(ColDelay, delay))
	if err != nil {
		return nil, err
	}
	return out.With(frame.NewFloat(ColDelayRatio, ratio))
}

// DelayRatio is delay/freeFlow, or NaN when freeFlow is not positive.
func DelayRatio(delay, freeFlow float64) float64 {
	if freeFlow > 0 {
		return delay / freeFlow
	}
	return math.NaN()
}

// TrafficLevelCategorizer buckets the delay ratio into Low, Medium or High.
type TrafficLevelCategorizer struct {
	name   string
	source string
	target string
}

func NewTrafficLevelCategorizer(name, source, target string) *TrafficLevelCategorizer {
	return &TrafficLevelCategorizer{name: name, source: source, target: target}
}

func (s *TrafficLevelCategorizer) Name() string                    { return s.name }
func (s *TrafficLevelCategorizer) Fit(*frame.Frame) (Stage, error) { return s, nil }

func (s *TrafficLevelCategorizer) Apply(in *frame.Frame) (*frame.Frame, error) {
	src, err := numericColumn(s.name, in, s.source)
	if err != nil {
		return nil, err
	}
	n := src.Len()
	levels := make([]string, n)
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		ratio, _ := src.Float(i)
		levels[i], valid[i] = Categorize(ratio)
	}
	return in.With(frame.NewString(s.target, levels, valid))
}

// Categorize maps a delay ratio to its traffic level. NaN has no level.
func Categorize(ratio float64) (string, bool) {
	switch {
	case math.IsNaN(ratio):
		return "", false
	case ratio <= LowMaxRatio:
		return LevelLow, true
	case ratio <= MediumMaxRatio:
		return LevelMedium, true
	default:
		return LevelHigh, true
	}
}

// Layouts accepted for string timestamps. Layouts without an offset are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// TimestampDecomposer converts the timestamp to local civil time and replaces
// it with Day, Hour and minute columns.
type TimestampDecomposer struct {
	name   string
	column string
	zone   *time.Location
}

func NewTimestampDecomposer(name, column string, zone *time.Location) *TimestampDecomposer {
	return &TimestampDecomposer{name: name, column: column, zone: zone}
}

func (s *TimestampDecomposer) Name() string                    { return s.name }
func (s *TimestampDecomposer) Fit(*frame.Frame) (Stage, error) { return s, nil }

func (s *TimestampDecomposer) Apply(in *frame.Frame) (*frame.Frame, error) {
	col, ok := in.Column(s.column)
	if !ok {
		return nil, &SchemaError{Stage: s.name, Columns: []string{s.column}}
	}
	if col.Kind() != frame.Time && col.Kind() != frame.String {
		return nil, &SchemaError{Stage: s.name, Columns: []string{s.column},
			Detail: fmt.Sprintf("column %q is %s, want time or string", s.column, col.Kind())}
	}

	n := col.Len()
	day, hour, minute := make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		t, ok, err := s.instant(col, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			day[i], hour[i], minute[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		local := t.In(s.zone)
		day[i] = float64(local.Day())
		hour[i] = float64(local.Hour())
		minute[i] = float64(local.Minute())
	}

	out := in
	for _, c := range []*frame.Column{
		frame.NewNumeric(ColDay, frame.Int, day),
		frame.NewNumeric(ColHour, frame.Int, hour),
		frame.NewNumeric(ColMinute, frame.Int, minute),
	} {
		var err error
		if out, err = out.With(c); err != nil {
			return nil, err
		}
	}
	return out.Drop(s.column), nil
}

func (s *TimestampDecomposer) instant(col *frame.Column, i int) (time.Time, bool, error) {
	if col.Kind() == frame.Time {
		t, ok := col.Time(i)
		return t, ok, nil
	}
	raw, ok := col.Str(i)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, &ParseError{Stage: s.name, Column: s.column, Row: i, Value: raw, Reason: err.Error()}
	}
	return t, true, nil
}

// ParseTimestamp reads an ISO-8601 timestamp; one without an offset is taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}

// CoordinateSplitter replaces a "lat,lon" column with numeric latitude and longitude.
type CoordinateSplitter struct {
	name   string
	column string
}

func NewCoordinateSplitter(name, column string) *CoordinateSplitter {
	return &CoordinateSplitter{name: name, column: column}
}

func (s *CoordinateSplitter) Name() string                    { return s.name }
func (s *CoordinateSplitter) Fit(*frame.Frame) (Stage, error) { return s, nil }

func (s *CoordinateSplitter) Apply(in *frame.Frame) (*frame.Frame, error) {
	col, ok := in.Column(s.column)
	if !ok {
		return nil, &SchemaError{Stage: s.name, Columns: []string{s.column}}
	}
	if col.Kind() != frame.String {
		return nil, &SchemaError{Stage: s.name, Columns: []string{s.column},
			Detail: fmt.Sprintf("column %q is %s, want string", s.column, col.Kind())}
	}

	n := col.Len()
	lat, lon := make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		raw, ok := col.Str(i)
		if !ok {
			lat[i], lon[i] = math.NaN(), math.NaN()
			continue
		}
		la, lo, err := SplitPoint(raw)
		if err != nil {
			return nil, &ParseError{Stage: s.name, Column: s.column, Row: i, Value: raw, Reason: err.Error()}
		}
		lat[i], lon[i] = la, lo
	}

	out, err := in.With(frame.NewFloat(ColLatitude, lat))
	if err != nil {
		return nil, err
	}
	if out, err = out.With(frame.NewFloat(ColLongitude, lon)); err != nil {
		return nil, err
	}
	return out.Drop(s.column), nil
}

// SplitPoint parses "lat,lon".
func SplitPoint(raw string) (lat, lon float64, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want 2 comma-separated parts, got %d", len(parts))
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("latitude: %w", err)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("longitude: %w", err)
	}
	return lat, lon, nil
}

type projectorParams struct {
	Drop []string `json:"drop"`
}

type delayParams struct {
	Current  string `json:"current"`
	FreeFlow string `json:"free_flow"`
}

type levelParams struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type timestampParams struct {
	Column     string `json:"column"`
	ZoneName   string `json:"zone_name"`
	ZoneOffset int    `json:"zone_offset_seconds"`
}

type columnParams struct {
	Column string `json:"column"`
}

func newRecord(kind, name string, params any) (stageRecord, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return stageRecord{}, err
	}
	return stageRecord{Kind: kind, Name: name, Params: raw}, nil
}

func (s *ColumnProjector) record() (stageRecord, error) {
	return newRecord(kindProjector, s.name, projectorParams{Drop: s.drop})
}

func (s *DelayCalculator) record() (stageRecord, error) {
	return newRecord(kindDelay, s.name, delayParams{Current: s.current, FreeFlow: s.freeFlow})
}

func (s *TrafficLevelCategorizer) record() (stageRecord, error) {
	return newRecord(kindLevel, s.name, levelParams{Source: s.source, Target: s.target})
}

func (s *TimestampDecomposer) record() (stageRecord, error) {
	name, offset := time.Unix(0, 0).In(s.zone).Zone()
	return newRecord(kindTimestamp, s.name, timestampParams{Column: s.column, ZoneName: name, ZoneOffset: offset})
}

func (s *CoordinateSplitter) record() (stageRecord, error) {
	return newRecord(kindCoordinates, s.name, columnParams{Column: s.column})
}
