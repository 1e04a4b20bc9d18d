package classifier

import (
	"fmt"

	"cityflow/neurotraff/frame"
	"cityflow/neurotraff/pipeline"
)

// Bundle is a fitted pipeline and the model trained on its output. Both are
// read-only once built, so one Bundle can serve concurrent requests.
type Bundle struct {
	pipeline *pipeline.Pipeline
	model    Classifier
	labels   *pipeline.LabelEncoder
}

// Classification is the decoded prediction for one record.
type Classification struct {
	Level string
	Delay float64
}

// NewBundle pairs a fitted pipeline with a model and checks that the
// pipeline's feature schema is exactly what the model was trained on.
func NewBundle(p *pipeline.Pipeline, model Classifier) (*Bundle, error) {
	labels, err := p.Labels()
	if err != nil {
		return nil, err
	}
	features, err := p.FeatureSchema()
	if err != nil {
		return nil, fmt.Errorf("pipeline feature schema: %w", err)
	}
	if !features.Equal(model.Schema()) {
		return nil, &SchemaMismatchError{Want: model.Schema(), Got: features}
	}
	return &Bundle{pipeline: p, model: model, labels: labels}, nil
}

// LoadBundle loads both artifacts from disk and version-matches them.
func LoadBundle(pipelinePath, modelPath string) (*Bundle, error) {
	p, err := pipeline.LoadFile(pipelinePath)
	if err != nil {
		return nil, fmt.Errorf("load pipeline %s: %w", pipelinePath, err)
	}
	model, err := LoadCentroidFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}
	return NewBundle(p, model)
}

func (b *Bundle) Pipeline() *pipeline.Pipeline   { return b.pipeline }
func (b *Bundle) Labels() *pipeline.LabelEncoder { return b.labels }
func (b *Bundle) Fingerprint() string            { return b.model.Schema().Fingerprint() }

// Classify runs the raw records through the pipeline in apply-only mode,
// scores them and decodes the predicted levels, preserving row order.
func (b *Bundle) Classify(raw *frame.Frame) ([]Classification, error) {
	out, err := b.pipeline.Apply(raw)
	if err != nil {
		return nil, err
	}
	delay, ok := out.Column(pipeline.ColDelay)
	if !ok {
		return nil, fmt.Errorf("pipeline output has no %q column", pipeline.ColDelay)
	}
	codes, err := b.model.Predict(out.Drop(pipeline.LabelColumns...))
	if err != nil {
		return nil, err
	}
	result := make([]Classification, len(codes))
	for i, code := range codes {
		level, err := b.labels.Decode(code)
		if err != nil {
			return nil, err
		}
		d, _ := delay.Float(i)
		result[i] = Classification{Level: level, Delay: d}
	}
	return result, nil
}
