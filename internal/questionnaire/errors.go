package questionnaire

import "errors"

var (
	// ErrInvalidAnswer is returned when a submitted answer cannot be encoded.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrMalformedVector is returned when a stored vector does not fit its schema.
	ErrMalformedVector = errors.New("malformed answer vector")
)
