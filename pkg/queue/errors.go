package queue

import "errors"

var (
	// ErrQueueFull is returned by Add when MaxPending commands are in flight.
	// It is transient: retry once a response or timeout frees a slot.
	ErrQueueFull = errors.New("queue: too many pending messages")

	// ErrSequenceExhausted is returned when the session sequence number space
	// is used up. The session must be re-established.
	ErrSequenceExhausted = errors.New("queue: sequence numbers exhausted, reset session")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("queue: already started")
)
