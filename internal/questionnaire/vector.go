package questionnaire

import (
	"fmt"
	"math"
)

// Vectors is the stored encoding of one submission.
type Vectors struct {
	SchemaVersion int
	Psych         []int
	Interest      []int
	Situation     []int
}

// Prepared holds vectors reconciled to the current schema and L2-normalized,
// ready for the similarity engine.
type Prepared struct {
	Psych     []float64
	Interest  []float64
	Situation []float64
}

// Validate checks that v has exactly the lengths of its schema version and
// that every element lies in its dimension's domain.
func Validate(v Vectors) error {
	s, err := Lookup(v.SchemaVersion)
	if err != nil {
		return err
	}
	if err := validateSection("psych", s.Psych, v.Psych); err != nil {
		return err
	}
	if err := validateSection("interest", s.Interest, v.Interest); err != nil {
		return err
	}
	return validateSection("situation", s.Situation, v.Situation)
}

func validateSection(name string, questions []Question, values []int) error {
	if len(values) != len(questions) {
		return fmt.Errorf("%w: %s has length %d, want %d", ErrMalformedVector, name, len(values), len(questions))
	}
	for i, q := range questions {
		if !q.Valid(values[i]) {
			return fmt.Errorf("%w: %s[%d]=%d out of range for %s", ErrMalformedVector, name, i, values[i], q.Key)
		}
	}
	return nil
}

// Reconcile pads values with each dimension's neutral fill, or truncates
// them, so the result has exactly len(dims) elements.
func Reconcile(values []int, dims []Question) []float64 {
	out := make([]float64, len(dims))
	for i, q := range dims {
		if i < len(values) {
			out[i] = float64(values[i])
		} else {
			out[i] = q.Neutral()
		}
	}
	return out
}

// Normalize divides v by its Euclidean norm. A zero vector is returned
// unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	out := make([]float64, len(v))
	copy(out, v)
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i := range out {
		out[i] /= norm
	}
	return out
}

// Prepare validates v against its own version and reconciles it to target.
func Prepare(v Vectors, target Schema) (Prepared, error) {
	if err := Validate(v); err != nil {
		return Prepared{}, err
	}
	psych := v.Psych
	situation := v.Situation
	if target.FoldsSituation && len(situation) > 0 {
		psych = append(append([]int(nil), psych...), situation...)
		situation = nil
	}
	return Prepared{
		Psych:     Normalize(Reconcile(psych, target.Psych)),
		Interest:  Normalize(Reconcile(v.Interest, target.Interest)),
		Situation: Normalize(Reconcile(situation, target.Situation)),
	}, nil
}
