// Package matching ranks candidate profiles for a viewer.
package matching

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/similarity"
)

// ErrMalformedProfile is returned when the viewer's own vectors cannot be scored.
var ErrMalformedProfile = errors.New("viewer profile has malformed answers")

// Candidate is the scoring view of a profile.
type Candidate struct {
	ID      string
	Gender  Gender
	Vectors questionnaire.Vectors
}

// Result is one ranked match.
type Result struct {
	CandidateID string           `json:"candidate_id"`
	Score       float64          `json:"score"`
	Parts       similarity.Parts `json:"parts"`
}

// Percent returns the score as a two-decimal percentage.
func (r Result) Percent() float64 {
	return similarity.Percent(r.Score, 2)
}

// Selection is the outcome of one Select call.
type Selection struct {
	Results []Result
	// Skipped lists candidates whose stored answers could not be scored.
	Skipped []string
	// Considered counts eligible candidates that were scored.
	Considered int
}

// Select filters pool to opposite-gender candidates other than user, scores
// them, keeps those at or above the policy threshold, ranks them by score
// descending with ties broken by candidate ID, and truncates to the viewer's
// limit.
func Select(user Candidate, pool []Candidate, policy Policy) (Selection, error) {
	me, err := questionnaire.Prepare(user.Vectors, policy.Schema)
	if err != nil {
		return Selection{Results: []Result{}}, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}

	sel := Selection{Results: []Result{}}
	for _, c := range pool {
		if c.ID == user.ID || c.Gender == user.Gender {
			continue
		}
		other, err := questionnaire.Prepare(c.Vectors, policy.Schema)
		if err != nil {
			sel.Skipped = append(sel.Skipped, c.ID)
			continue
		}
		sel.Considered++

		parts := Score(me, other)
		score := similarity.Blend(policy.Weights, parts, Signals(me, other))
		if score < policy.Threshold {
			continue
		}
		sel.Results = append(sel.Results, Result{CandidateID: c.ID, Score: score, Parts: parts})
	}

	sort.Slice(sel.Results, func(i, j int) bool {
		a, b := sel.Results[i], sel.Results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.CandidateID < b.CandidateID
	})

	if limit := policy.LimitFor(user.Gender); len(sel.Results) > limit {
		sel.Results = sel.Results[:limit]
	}
	return sel, nil
}

// Signals reports the categories both prepared profiles answered with a
// non-zero vector. Only those contribute to the composite.
func Signals(a, b questionnaire.Prepared) similarity.Signal {
	return similarity.Signal{
		Psych:     similarity.HasSignal(a.Psych) && similarity.HasSignal(b.Psych),
		Interest:  similarity.HasSignal(a.Interest) && similarity.HasSignal(b.Interest),
		Situation: similarity.HasSignal(a.Situation) && similarity.HasSignal(b.Situation),
	}
}

// Score computes the per-category similarities of two prepared profiles.
func Score(a, b questionnaire.Prepared) similarity.Parts {
	return similarity.Parts{
		Psych:     similarity.Similarity(a.Psych, b.Psych),
		Interest:  similarity.Similarity(a.Interest, b.Interest),
		Situation: similarity.Similarity(a.Situation, b.Situation),
	}
}
