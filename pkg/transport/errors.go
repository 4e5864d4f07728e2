package transport

import "errors"

var (
	// ErrClosed is returned by operations on a stopped transport or pipe.
	ErrClosed = errors.New("transport: closed")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrNotStarted is returned by Manager.Send before Start.
	ErrNotStarted = errors.New("transport: not started")

	// ErrNoHandler is returned when a nil MessageHandler is supplied.
	ErrNoHandler = errors.New("transport: no message handler")

	// ErrHandlerNotFound is returned when removing an unknown handler id.
	ErrHandlerNotFound = errors.New("transport: handler not found")

	// ErrInvalidAddress is returned for a nil destination or an address
	// that does not name a BMC.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrMessageTooLarge is returned for datagrams over MaxDatagramSize.
	ErrMessageTooLarge = errors.New("transport: datagram too large")
)
