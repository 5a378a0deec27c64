package event

import "errors"

var (
	// ErrInvalidHandler is returned by Register for a nil handler or an
	// empty event name.
	ErrInvalidHandler = errors.New("event: invalid handler")

	// ErrHandlerPanic is reported in a Gather Result when the handler
	// panicked.
	ErrHandlerPanic = errors.New("event: handler panicked")
)
