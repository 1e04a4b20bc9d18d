package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ArtifactVersion is bumped whenever the persisted layout changes.
const ArtifactVersion = 1

const (
	kindProjector   = "column_projector"
	kindDelay       = "delay_calculator"
	kindLevel       = "traffic_level_categorizer"
	kindTimestamp   = "timestamp_decomposer"
	kindOrdinal     = "ordinal_encoder"
	kindLabel       = "label_encoder"
	kindCoordinates = "coordinate_splitter"
)

type stageRecord struct {
	Kind   string          `json:"kind"`
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

type artifact struct {
	Version int           `json:"version"`
	Stages  []stageRecord `json:"stages"`
}

func (p *Pipeline) MarshalJSON() ([]byte, error) {
	a := artifact{Version: ArtifactVersion, Stages: make([]stageRecord, 0, len(p.stages))}
	for _, s := range p.stages {
		rec, err := s.record()
		if err != nil {
			return nil, fmt.Errorf("encode stage %s: %w", s.Name(), err)
		}
		a.Stages = append(a.Stages, rec)
	}
	return json.Marshal(a)
}

func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Version != ArtifactVersion {
		return fmt.Errorf("pipeline artifact version %d, want %d", a.Version, ArtifactVersion)
	}
	stages := make([]Stage, 0, len(a.Stages))
	for _, rec := range a.Stages {
		s, err := decodeStage(rec)
		if err != nil {
			return fmt.Errorf("decode stage %s: %w", rec.Name, err)
		}
		stages = append(stages, s)
	}
	p.stages = stages
	return nil
}

func decodeStage(rec stageRecord) (Stage, error) {
	switch rec.Kind {
	case kindProjector:
		var params projectorParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return NewColumnProjector(rec.Name, params.Drop...), nil
	case kindDelay:
		var params delayParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return NewDelayCalculator(rec.Name, params.Current, params.FreeFlow), nil
	case kindLevel:
		var params levelParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return NewTrafficLevelCategorizer(rec.Name, params.Source, params.Target), nil
	case kindTimestamp:
		var params timestampParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		zone := time.FixedZone(params.ZoneName, params.ZoneOffset)
		return NewTimestampDecomposer(rec.Name, params.Column, zone), nil
	case kindOrdinal:
		var params encoderParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return &OrdinalEncoder{name: rec.Name, column: params.Column, table: params.Table}, nil
	case kindLabel:
		var params encoderParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return &LabelEncoder{name: rec.Name, column: params.Column, table: params.Table}, nil
	case kindCoordinates:
		var params columnParams
		if err := json.Unmarshal(rec.Params, &params); err != nil {
			return nil, err
		}
		return NewCoordinateSplitter(rec.Name, params.Column), nil
	default:
		return nil, fmt.Errorf("unknown stage kind %q", rec.Kind)
	}
}

// Load reads a pipeline artifact.
func Load(r io.Reader) (*Pipeline, error) {
	var p Pipeline
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pipeline artifact: %w", err)
	}
	return &p, nil
}

func LoadFile(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Save writes the pipeline artifact as indented JSON.
func Save(w io.Writer, p *Pipeline) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func SaveFile(path string, p *Pipeline) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Save(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
