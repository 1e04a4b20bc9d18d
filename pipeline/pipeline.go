// Package pipeline turns raw flow records into classifier features.
//
// A Pipeline is an ordered list of stages run in one of two modes. FitApply
// fits each stage on the output of the previous one and returns a new,
// fitted Pipeline; Apply runs an already fitted Pipeline without refitting.
// A fitted Pipeline is never modified afterwards and may be shared by any
// number of goroutines.
package pipeline

import (
	"fmt"

	"cityflow/neurotraff/frame"
)

// Stage names of the default pipeline.
const (
	StageRemoveColumns = "remove_columns"
	StageDelay         = "delay"
	StageTrafficLevel  = "traffic_level"
	StageTimestamp     = "timestamp"
	StageEncodeRoad    = "ordinal_encode_road"
	StageEncodeFRC     = "ordinal_encode_frc"
	StageEncodeTraffic = "label_encode_traffic"
	StageCoordinates   = "coordinates"
)

type Pipeline struct {
	stages []Stage
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: append([]Stage(nil), stages...)}
}

// Default is the unfitted flow-record pipeline.
func Default() *Pipeline {
	return New(
		NewColumnProjector(StageRemoveColumns, ColID, ColRoadName, ColRoadClosure),
		NewDelayCalculator(StageDelay, ColCurrentTravelTime, ColFreeFlowTravelTime),
		NewTrafficLevelCategorizer(StageTrafficLevel, ColDelayRatio, ColTrafficLevel),
		NewTimestampDecomposer(StageTimestamp, ColTimestamp, LocalZone),
		NewOrdinalEncoder(StageEncodeRoad, ColRoad),
		NewOrdinalEncoder(StageEncodeFRC, ColFRC),
		NewLabelEncoder(StageEncodeTraffic, ColTrafficLevel),
		NewCoordinateSplitter(StageCoordinates, ColPoint),
	)
}

// FitApply fits every stage in order and returns the fitted pipeline with
// the transformed batch. The receiver is left unchanged.
func (p *Pipeline) FitApply(in *frame.Frame) (*Pipeline, *frame.Frame, error) {
	fitted := make([]Stage, 0, len(p.stages))
	cur := in
	for _, s := range p.stages {
		fs, err := s.Fit(cur)
		if err != nil {
			return nil, nil, fmt.Errorf("fit %s: %w", s.Name(), err)
		}
		if cur, err = fs.Apply(cur); err != nil {
			return nil, nil, fmt.Errorf("apply %s: %w", s.Name(), err)
		}
		fitted = append(fitted, fs)
	}
	return &Pipeline{stages: fitted}, cur, nil
}

// Apply runs every stage with its fitted state. A batch either transforms
// completely or the first stage error is returned.
func (p *Pipeline) Apply(in *frame.Frame) (*frame.Frame, error) {
	cur := in
	for _, s := range p.stages {
		var err error
		if cur, err = s.Apply(cur); err != nil {
			return nil, fmt.Errorf("apply %s: %w", s.Name(), err)
		}
	}
	return cur, nil
}

// OutputSchema is the schema Apply produces for a batch with the given input schema.
func (p *Pipeline) OutputSchema(in frame.Schema) (frame.Schema, error) {
	cols := make([]*frame.Column, len(in))
	for i, f := range in {
		switch f.Kind {
		case frame.String:
			cols[i] = frame.NewString(f.Name, nil, nil)
		case frame.Time:
			cols[i] = frame.NewTime(f.Name, nil, nil)
		default:
			cols[i] = frame.NewNumeric(f.Name, f.Kind, nil)
		}
	}
	empty, err := frame.New(cols...)
	if err != nil {
		return nil, err
	}
	out, err := p.Apply(empty)
	if err != nil {
		return nil, err
	}
	return out.Schema(), nil
}

// FeatureSchema is the output schema for raw records minus LabelColumns.
func (p *Pipeline) FeatureSchema() (frame.Schema, error) {
	out, err := p.OutputSchema(RawSchema())
	if err != nil {
		return nil, err
	}
	return out.Without(LabelColumns...), nil
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Stage finds a stage by name.
func (p *Pipeline) Stage(name string) (Stage, bool) {
	for _, s := range p.stages {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Labels returns the fitted target encoder.
func (p *Pipeline) Labels() (*LabelEncoder, error) {
	for _, s := range p.stages {
		if le, ok := s.(*LabelEncoder); ok {
			if !le.Fitted() {
				return nil, &NotFittedError{Stage: le.Name()}
			}
			return le, nil
		}
	}
	return nil, fmt.Errorf("pipeline has no label encoder stage")
}
