package statemachine

import "errors"

var (
	// ErrInvalidTransition is returned by Fire and Transition when the event
	// is not accepted in the current state. The state is unchanged and
	// nothing is sent.
	ErrInvalidTransition = errors.New("statemachine: invalid transition")

	// ErrNotStarted is returned by Fire before Start or after Stop.
	ErrNotStarted = errors.New("statemachine: not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("statemachine: already started")

	// ErrNoSender is returned by New without a Sender.
	ErrNoSender = errors.New("statemachine: sender required")

	// ErrNoCipherSuite is returned when an event lacks the cipher suite it
	// needs.
	ErrNoCipherSuite = errors.New("statemachine: cipher suite required")
)
