package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed component.
	ErrClosed = errors.New("discovery: closed")

	// ErrInvalidServiceType is returned for invalid or unknown service types.
	ErrInvalidServiceType = errors.New("discovery: invalid service type")

	// ErrInvalidTarget is returned for a scan target that is neither a
	// host, a host:port pair nor a CIDR range.
	ErrInvalidTarget = errors.New("discovery: invalid scan target")

	// ErrRangeTooLarge is returned for a CIDR range with more hosts than
	// MaxRangeHosts.
	ErrRangeTooLarge = errors.New("discovery: address range too large")

	// ErrServiceNotFound is returned when a requested service is not found.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("discovery: operation timed out")
)
