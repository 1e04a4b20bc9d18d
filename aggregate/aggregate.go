// Package aggregate folds the per-point classifications of one road into a
// single road verdict and a clearance-time estimate.
package aggregate

import (
	"errors"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNoSamples is returned when there is nothing to aggregate.
var ErrNoSamples = errors.New("no samples to aggregate")

var severity = map[string]int{
	"low":    1,
	"medium": 2,
	"high":   3,
}

// Sample is one classified point: the predicted level name and its Delay in seconds.
type Sample struct {
	Level string
	Delay float64
}

// Verdict is the road-level outcome.
type Verdict struct {
	Level string
	// Winner is the index of the sample the level was taken from.
	Winner int
	// ClearTimeMinutes is the mean Delay in whole minutes, rounded half to even.
	ClearTimeMinutes int
	// DelayedSamples counts the samples whose Delay contributed to the mean.
	DelayedSamples int
}

// Rank is the severity of a level name, case-insensitive. Unknown names rank 0.
func Rank(level string) int {
	return severity[normalize(level)]
}

// Aggregate picks the most severe level, keeping the first sample on ties,
// so samples must be passed in the road's declared point order. Samples
// with an undefined (NaN) Delay are left out of the clearance estimate.
func Aggregate(samples []Sample) (Verdict, error) {
	if len(samples) == 0 {
		return Verdict{}, ErrNoSamples
	}

	winner, best := 0, Rank(samples[0].Level)
	for i := 1; i < len(samples); i++ {
		if r := Rank(samples[i].Level); r > best {
			winner, best = i, r
		}
	}

	var sum float64
	var n int
	for _, s := range samples {
		if math.IsNaN(s.Delay) {
			continue
		}
		sum += s.Delay
		n++
	}
	minutes := 0
	if n > 0 {
		minutes = int(math.RoundToEven(sum / float64(n) / 60))
	}

	return Verdict{
		Level:            capitalize(normalize(samples[winner].Level)),
		Winner:           winner,
		ClearTimeMinutes: minutes,
		DelayedSamples:   n,
	}, nil
}

func normalize(level string) string {
	return strings.ToLower(strings.TrimSpace(level))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
