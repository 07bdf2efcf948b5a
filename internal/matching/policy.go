package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nitematch/nitematch/internal/questionnaire"
	"github.com/nitematch/nitematch/internal/similarity"
)

// Gender is the declared gender used only as an eligibility filter.
type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

var ErrInvalidGender = errors.New("invalid gender")

// ParseGender accepts the two declared values case-insensitively.
func ParseGender(s string) (Gender, error) {
	switch Gender(strings.ToLower(strings.TrimSpace(s))) {
	case Male:
		return Male, nil
	case Female:
		return Female, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
}

// Policy is the tunable part of match selection.
type Policy struct {
	// Threshold is inclusive and expressed on the [0,1] scale.
	Threshold float64
	// DefaultLimit caps the result size when no per-gender limit applies.
	DefaultLimit int
	// GenderLimits caps the result size by the viewer's declared gender.
	GenderLimits map[Gender]int
	Weights      similarity.Weights
	// Schema is the shape every profile is reconciled to before scoring.
	Schema questionnaire.Schema
}

// DefaultPolicy mirrors the launch configuration.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:    0.75,
		DefaultLimit: 10,
		GenderLimits: map[Gender]int{},
		Weights:      similarity.DefaultWeights,
		Schema:       questionnaire.Current,
	}
}

// LimitFor returns the result-size cap for a viewer of gender g.
func (p Policy) LimitFor(g Gender) int {
	if limit, ok := p.GenderLimits[g]; ok {
		return limit
	}
	return p.DefaultLimit
}

// Validate checks the policy is internally consistent.
func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold %.2f outside [0,1]", p.Threshold)
	}
	if p.DefaultLimit < 0 {
		return fmt.Errorf("default limit must not be negative")
	}
	for g, limit := range p.GenderLimits {
		if limit < 0 {
			return fmt.Errorf("limit for %s must not be negative", g)
		}
	}
	if err := p.Weights.Validate(); err != nil {
		return err
	}
	if p.Weights.Situation > 0 && len(p.Schema.Situation) == 0 {
		return fmt.Errorf("%w: schema v%d scores no separate situation section", similarity.ErrInvalidWeights, p.Schema.Version)
	}
	return nil
}
