package questionnaire

import "fmt"

// Answers holds raw form answers keyed by question key, valued by the label
// the participant picked.
type Answers map[string]string

// Encode turns raw answers into the vectors of schema s. Every question of the
// schema must be answered; unknown keys are rejected so a stale client cannot
// silently shift positions.
func Encode(s Schema, answers Answers) (Vectors, error) {
	seen := 0
	encode := func(questions []Question) ([]int, error) {
		if len(questions) == 0 {
			return nil, nil
		}
		out := make([]int, len(questions))
		for i, q := range questions {
			label, ok := answers[q.Key]
			if !ok {
				return nil, fmt.Errorf("%w: %s is required", ErrInvalidAnswer, q.Key)
			}
			v, err := q.Encode(label)
			if err != nil {
				return nil, err
			}
			out[i] = v
			seen++
		}
		return out, nil
	}

	psych, err := encode(s.Psych)
	if err != nil {
		return Vectors{}, err
	}
	interest, err := encode(s.Interest)
	if err != nil {
		return Vectors{}, err
	}
	situation, err := encode(s.Situation)
	if err != nil {
		return Vectors{}, err
	}
	if seen != len(answers) {
		for key := range answers {
			if _, ok := s.Question(key); !ok {
				return Vectors{}, fmt.Errorf("%w: unknown question %s", ErrInvalidAnswer, key)
			}
		}
	}

	return Vectors{
		SchemaVersion: s.Version,
		Psych:         psych,
		Interest:      interest,
		Situation:     situation,
	}, nil
}
