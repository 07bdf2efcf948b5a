// Package similarity scores how alike two answer vectors are.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// Cosine returns the cosine of the angle between a and b. Mismatched lengths
// and zero norms yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return math.Max(-1, math.Min(1, dot/denom))
}

// Similarity is Cosine with the all-zero guard: a vector whose elements sum
// to zero carries no signal and scores 0 against anything.
func Similarity(a, b []float64) float64 {
	if sum(a) == 0 || sum(b) == 0 {
		return 0
	}
	return Cosine(a, b)
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

// Weights are the per-category contributions to the composite score.
type Weights struct {
	Psych     float64 `json:"psych"`
	Interest  float64 `json:"interest"`
	Situation float64 `json:"situation"`
}

// DefaultWeights matches the current schema, where situational answers are
// scored as part of psych.
var DefaultWeights = Weights{Psych: 0.7, Interest: 0.3, Situation: 0}

var ErrInvalidWeights = errors.New("invalid weights")

// Validate checks the weights are non-negative and sum to one.
func (w Weights) Validate() error {
	if w.Psych < 0 || w.Interest < 0 || w.Situation < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidWeights)
	}
	if total := w.Psych + w.Interest + w.Situation; math.Abs(total-1) > 1e-9 {
		return fmt.Errorf("%w: weights sum to %.4f, want 1", ErrInvalidWeights, total)
	}
	return nil
}

// Parts are the per-category similarities of one pair.
type Parts struct {
	Psych     float64 `json:"psych"`
	Interest  float64 `json:"interest"`
	Situation float64 `json:"situation"`
}

// Composite is the weighted sum of the per-category similarities.
func Composite(w Weights, p Parts) float64 {
	return w.Psych*p.Psych + w.Interest*p.Interest + w.Situation*p.Situation
}

// HasSignal reports whether v survives the all-zero rule.
func HasSignal(v []float64) bool {
	return sum(v) != 0
}

// Signal marks the categories in which both sides of a pair carry signal.
type Signal struct {
	Psych     bool `json:"psych"`
	Interest  bool `json:"interest"`
	Situation bool `json:"situation"`
}

// Blend is Composite over the categories in s only, with their weights
// rescaled to sum to one. A pair sharing no weighted category scores 0.
func Blend(w Weights, p Parts, s Signal) float64 {
	var kept Weights
	if s.Psych {
		kept.Psych = w.Psych
	}
	if s.Interest {
		kept.Interest = w.Interest
	}
	if s.Situation {
		kept.Situation = w.Situation
	}
	total := kept.Psych + kept.Interest + kept.Situation
	if total == 0 {
		return 0
	}
	return Composite(kept, p) / total
}

// Percent expresses score as a percentage rounded to decimals places.
func Percent(score float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(score*100*scale) / scale
}
