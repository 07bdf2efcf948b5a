package questionnaire

import "fmt"

// DimensionKind describes how a single answer is encoded into a vector element.
type DimensionKind string

const (
	// Ordinal answers use the six point agreement Scale and encode to 1..6.
	Ordinal DimensionKind = "ordinal"
	// Binary answers are forced two-option choices and encode to 0 or 1.
	Binary DimensionKind = "binary"
	// Categorical answers encode to the tag of the chosen option.
	Categorical DimensionKind = "categorical"
)

// Option is one frozen choice of a question. Tag is the value stored in the
// answer vector and must never change once a schema version ships.
type Option struct {
	Tag   int    `json:"tag"`
	Label string `json:"label"`
}

// Question is a single questionnaire item.
type Question struct {
	Key     string        `json:"key"`
	Text    string        `json:"text"`
	Kind    DimensionKind `json:"kind"`
	Options []Option      `json:"options"`
}

// Neutral is the fill value used when a stored vector is shorter than the
// current schema.
func (q Question) Neutral() float64 {
	if q.Kind == Ordinal {
		return float64(ScaleMin+ScaleMax) / 2
	}
	return 0
}

// Valid reports whether v lies inside the question's encoded domain.
func (q Question) Valid(v int) bool {
	switch q.Kind {
	case Ordinal:
		return v >= ScaleMin && v <= ScaleMax
	case Binary:
		return v == 0 || v == 1
	case Categorical:
		for _, o := range q.Options {
			if o.Tag == v {
				return true
			}
		}
	}
	return false
}

// Encode maps a presented label to its stored value.
func (q Question) Encode(label string) (int, error) {
	if q.Kind == Ordinal {
		return ScaleValue(label)
	}
	for _, o := range q.Options {
		if o.Label == label {
			return o.Tag, nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidAnswer, label, q.Key)
}

// Labels returns the presentation labels in frozen order.
func (q Question) Labels() []string {
	if q.Kind == Ordinal {
		return append([]string(nil), scaleLabels[:]...)
	}
	labels := make([]string, len(q.Options))
	for i, o := range q.Options {
		labels[i] = o.Label
	}
	return labels
}

// Schema is one versioned shape of the questionnaire. Versions only ever
// append questions, which is what makes positional padding meaningful.
type Schema struct {
	Version   int        `json:"version"`
	Psych     []Question `json:"psych"`
	Interest  []Question `json:"interest"`
	Situation []Question `json:"situation,omitempty"`
	// FoldsSituation means a legacy situation vector is appended to the psych
	// vector instead of being scored on its own.
	FoldsSituation bool `json:"folds_situation"`
}

// Lengths returns the expected psych, interest and situation vector lengths.
func (s Schema) Lengths() (psych, interest, situation int) {
	return len(s.Psych), len(s.Interest), len(s.Situation)
}

// Question looks up a question by key across all sections.
func (s Schema) Question(key string) (Question, bool) {
	for _, section := range [][]Question{s.Psych, s.Interest, s.Situation} {
		for _, q := range section {
			if q.Key == key {
				return q, true
			}
		}
	}
	return Question{}, false
}

func binary(key, text, first, second string) Question {
	return Question{Key: key, Text: text, Kind: Binary, Options: []Option{{0, first}, {1, second}}}
}

func ordinal(key, text string) Question {
	return Question{Key: key, Text: text, Kind: Ordinal}
}

func categorical(key, text string, labels ...string) Question {
	opts := make([]Option, len(labels))
	for i, l := range labels {
		opts[i] = Option{Tag: i, Label: l}
	}
	return Question{Key: key, Text: text, Kind: Categorical, Options: opts}
}

var (
	corePsych = []Question{
		ordinal("overwhelmed_closeness", "When overwhelmed, I prefer emotional closeness"),
		ordinal("safe_opening_up", "I feel emotionally safe opening up"),
		ordinal("conflict_understanding", "During conflict, I try to understand before reacting"),
		ordinal("loyalty_over_attention", "Emotional loyalty matters more than attention"),
		ordinal("relationship_growth", "Relationships should help people grow"),
	}

	personality = []Question{
		binary("ideal_evening", "An ideal evening is", "A quiet night in", "A night out"),
		binary("upset_need", "When upset, I need", "Space", "Company"),
		ordinal("deep_conversations", "I value deep conversations over small talk"),
	}

	situational = []Question{
		binary("looking_for", "Right now I am looking for", "Something serious", "Seeing where it goes"),
		binary("long_distance", "Long distance after graduation", "Not for me", "Open to it"),
	}

	coreInterest = []Question{
		categorical("hangout_spot", "Favourite campus hangout",
			"Library", "Canteen", "Sports complex", "Hostel common room",
			"Campus cafe", "Auditorium", "Garden", "Off-campus market"),
		categorical("music", "Music on repeat",
			"Bollywood", "Indie", "Rock", "Hip-hop", "Classical", "Pop", "EDM"),
		categorical("weekend", "A typical weekend",
			"Sleeping in", "Exploring the city", "Playing sports", "Gaming", "Studying", "Hanging out with friends"),
		binary("beverage", "Pick one", "Tea", "Coffee"),
	}

	communication = binary("texting_style", "I would rather be", "Texting", "Calling")
)

func concat(parts ...[]Question) []Question {
	var out []Question
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// V1 is the launch form: five agreement questions only.
var V1 = Schema{
	Version: 1,
	Psych:   concat(corePsych),
}

// V2 added forced-choice personality items, interests and a separately scored
// situation section.
var V2 = Schema{
	Version:   2,
	Psych:     concat(corePsych, personality),
	Interest:  concat(coreInterest),
	Situation: concat(situational),
}

// V3 folds the situation section into psych and adds a communication item.
var V3 = Schema{
	Version:        3,
	Psych:          concat(corePsych, personality, situational),
	Interest:       concat(coreInterest, []Question{communication}),
	FoldsSituation: true,
}

// Current is the schema new submissions are encoded with and every stored
// profile is reconciled to before scoring.
var Current = V3

var versions = map[int]Schema{
	V1.Version: V1,
	V2.Version: V2,
	V3.Version: V3,
}

// Lookup returns a registered schema version.
func Lookup(version int) (Schema, error) {
	s, ok := versions[version]
	if !ok {
		return Schema{}, fmt.Errorf("%w: unknown schema version %d", ErrMalformedVector, version)
	}
	return s, nil
}
