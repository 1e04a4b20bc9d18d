package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(names ...string) []Sample {
	out := make([]Sample, len(names))
	for i, n := range names {
		out[i] = Sample{Level: n}
	}
	return out
}

func TestAggregateLevel(t *testing.T) {
	tests := []struct {
		name       string
		samples    []Sample
		wantLevel  string
		wantWinner int
	}{
		{"worst wins", levels("Low", "High", "Medium"), "High", 1},
		{"all low", levels("Low", "Low"), "Low", 0},
		{"unknown never wins", levels("Gridlock", "Low"), "Low", 1},
		{"case insensitive", levels("medium", "LOW"), "Medium", 0},
		{"first maximum kept", levels("Medium", "High", "high"), "High", 1},
		{"only unknown", levels("jammed"), "Jammed", 0},
		{"empty level is unknown", levels("", "Medium"), "Medium", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Aggregate(tt.samples)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, v.Level)
			assert.Equal(t, tt.wantWinner, v.Winner)
		})
	}
}

func TestAggregateClearTime(t *testing.T) {
	tests := []struct {
		name    string
		delays  []float64
		want    int
		delayed int
	}{
		{"mean of two", []float64{120, 240}, 3, 2},
		{"rounds to nearest", []float64{100}, 2, 1},
		{"half rounds to even", []float64{150}, 2, 1},
		{"negative delay", []float64{-130, 10}, -1, 2},
		{"undefined delays skipped", []float64{math.NaN(), 600}, 10, 1},
		{"no defined delays", []float64{math.NaN()}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]Sample, len(tt.delays))
			for i, d := range tt.delays {
				samples[i] = Sample{Level: "Low", Delay: d}
			}
			v, err := Aggregate(samples)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.ClearTimeMinutes)
			assert.Equal(t, tt.delayed, v.DelayedSamples)
		})
	}
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestRank(t *testing.T) {
	assert.Equal(t, 1, Rank("Low"))
	assert.Equal(t, 2, Rank(" medium "))
	assert.Equal(t, 3, Rank("HIGH"))
	assert.Equal(t, 0, Rank("severe"))
}
