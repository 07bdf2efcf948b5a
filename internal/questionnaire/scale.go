package questionnaire

import "fmt"

const (
	ScaleMin = 1
	ScaleMax = 6
)

// scaleLabels is positional: No encodes to 1, Strongly yes to 6.
var scaleLabels = [...]string{"No", "Slightly", "Maybe", "Mostly", "Yes", "Strongly yes"}

// ScaleValue encodes an agreement label.
func ScaleValue(label string) (int, error) {
	for i, l := range scaleLabels {
		if l == label {
			return i + ScaleMin, nil
		}
	}
	return 0, fmt.Errorf("%w: %q is not on the agreement scale", ErrInvalidAnswer, label)
}
