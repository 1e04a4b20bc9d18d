// Package classifier scores pipeline feature frames into traffic level codes.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cityflow/neurotraff/frame"
)

// ModelVersion is bumped whenever the persisted layout changes.
const ModelVersion = 1

// Classifier predicts one class code per feature row.
type Classifier interface {
	Predict(features *frame.Frame) ([]int, error)
	Schema() frame.Schema
}

// SchemaMismatchError is returned when features do not match what the model was trained on.
type SchemaMismatchError struct {
	Want frame.Schema
	Got  frame.Schema
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("feature schema mismatch: model expects %s (%s), got %s (%s)",
		e.Want, e.Want.Fingerprint(), e.Got, e.Got.Fingerprint())
}

// Centroid is a nearest-centroid classifier over standardized features.
// Missing feature values are imputed with the training mean.
type Centroid struct {
	Version     int          `json:"version"`
	Features    frame.Schema `json:"features"`
	Fingerprint string       `json:"fingerprint"`
	Means       []float64    `json:"means"`
	Scales      []float64    `json:"scales"`
	Classes     []int        `json:"classes"`
	Centroids   [][]float64  `json:"centroids"`
}

// Train fits one centroid per distinct label. labels[i] belongs to row i.
func Train(features *frame.Frame, labels []int) (*Centroid, error) {
	if features.Rows() == 0 {
		return nil, errors.New("no training rows")
	}
	if len(labels) != features.Rows() {
		return nil, fmt.Errorf("%d labels for %d rows", len(labels), features.Rows())
	}
	rows, err := features.Matrix()
	if err != nil {
		return nil, err
	}

	schema := features.Schema()
	nFeat := len(schema)
	if nFeat == 0 {
		return nil, errors.New("no feature columns")
	}
	data := mat.NewDense(len(rows), nFeat, nil)
	for i, r := range rows {
		data.SetRow(i, r)
	}

	means := make([]float64, nFeat)
	scales := make([]float64, nFeat)
	for j := 0; j < nFeat; j++ {
		col := present(mat.Col(nil, j, data))
		if len(col) == 0 {
			means[j], scales[j] = 0, 1
			continue
		}
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std == 0 {
			std = 1
		}
		means[j], scales[j] = mean, std
	}

	c := &Centroid{
		Version:     ModelVersion,
		Features:    schema,
		Fingerprint: schema.Fingerprint(),
		Means:       means,
		Scales:      scales,
	}

	sums := make(map[int][]float64)
	counts := make(map[int]float64)
	for i, r := range rows {
		z := c.standardize(r)
		if sums[labels[i]] == nil {
			sums[labels[i]] = make([]float64, nFeat)
		}
		floats.Add(sums[labels[i]], z)
		counts[labels[i]]++
	}
	for class := range sums {
		c.Classes = append(c.Classes, class)
	}
	sort.Ints(c.Classes)
	for _, class := range c.Classes {
		centroid := sums[class]
		floats.Scale(1/counts[class], centroid)
		c.Centroids = append(c.Centroids, centroid)
	}
	return c, nil
}

func present(values []float64) []float64 {
	out := values[:0:0]
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *Centroid) standardize(row []float64) []float64 {
	z := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) {
			continue
		}
		z[j] = (v - c.Means[j]) / c.Scales[j]
	}
	return z
}

func (c *Centroid) Schema() frame.Schema { return c.Features }

// Predict returns the class of the nearest centroid for every row. The lowest
// class code wins a distance tie.
func (c *Centroid) Predict(features *frame.Frame) ([]int, error) {
	if got := features.Schema(); !got.Equal(c.Features) {
		return nil, &SchemaMismatchError{Want: c.Features, Got: got}
	}
	if len(c.Classes) == 0 {
		return nil, errors.New("model has no classes")
	}
	rows, err := features.Matrix()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(rows))
	for i, r := range rows {
		z := c.standardize(r)
		best, bestDist := 0, math.Inf(1)
		for k, centroid := range c.Centroids {
			if d := floats.Distance(z, centroid, 2); d < bestDist {
				best, bestDist = k, d
			}
		}
		out[i] = c.Classes[best]
	}
	return out, nil
}

// Save writes the model as indented JSON.
func (c *Centroid) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// LoadCentroid reads a model written by Save.
func LoadCentroid(r io.Reader) (*Centroid, error) {
	var c Centroid
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if c.Version != ModelVersion {
		return nil, fmt.Errorf("model artifact version %d, want %d", c.Version, ModelVersion)
	}
	if c.Fingerprint != c.Features.Fingerprint() {
		return nil, fmt.Errorf("model artifact fingerprint %s does not match its feature list", c.Fingerprint)
	}
	n := len(c.Features)
	if len(c.Means) != n || len(c.Scales) != n || len(c.Classes) != len(c.Centroids) {
		return nil, errors.New("model artifact is inconsistent")
	}
	for _, centroid := range c.Centroids {
		if len(centroid) != n {
			return nil, errors.New("model artifact centroid has wrong width")
		}
	}
	return &c, nil
}

func LoadCentroidFile(path string) (*Centroid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCentroid(f)
}

func (c *Centroid) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
