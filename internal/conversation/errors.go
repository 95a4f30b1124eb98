package conversation

import "errors"

var (
	// ErrInvalidInput marks requests missing required fields.
	ErrInvalidInput = errors.New("conversation: invalid input")
	// ErrUpstreamFailure marks reasoning provider errors and timeouts.
	ErrUpstreamFailure = errors.New("conversation: reasoning provider failure")
	// ErrTurnConflict is returned when a turn index could not be claimed.
	ErrTurnConflict = errors.New("conversation: turn index conflict")
)
