package client

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when using a closed client.
	ErrClosed = errors.New("client: closed")

	// ErrNoCipherSuite is returned when the BMC offers no cipher suite
	// this client can run.
	ErrNoCipherSuite = errors.New("client: no usable cipher suite offered")

	// ErrUnexpectedResponse is returned when a command's response has an
	// unexpected type.
	ErrUnexpectedResponse = errors.New("client: unexpected response type")
)
