package connection

import "errors"

// Connection errors.
var (
	// ErrTimeout is returned when the awaited response did not arrive in
	// time. The state machine has been rewound by a Timeout event.
	ErrTimeout = errors.New("connection: timeout")

	// ErrInvalidState is returned when an operation is called in a state
	// that does not allow it. Nothing is sent.
	ErrInvalidState = errors.New("connection: illegal connection state")

	// ErrUnexpectedResponse is returned when the awaited response has the
	// wrong type.
	ErrUnexpectedResponse = errors.New("connection: response does not match request")

	// ErrNotConnected is returned before Connect.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrAlreadyConnected is returned when Connect is called twice.
	ErrAlreadyConnected = errors.New("connection: already connected")

	// ErrClosed is returned after Disconnect.
	ErrClosed = errors.New("connection: closed")

	// ErrNoTransport is returned by New without a transport.
	ErrNoTransport = errors.New("connection: no transport")

	// ErrNoRemote is returned by New without a remote address.
	ErrNoRemote = errors.New("connection: no remote address")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("connection: invalid config")
)
