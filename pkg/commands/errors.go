package commands

import "errors"

// Command coding errors.
var (
	ErrInvalidAuthType  = errors.New("commands: IPMI v2.0 requires the RMCP+ auth type")
	ErrNotResponse      = errors.New("commands: message is not a response to this command")
	ErrInvalidLength    = errors.New("commands: response data has invalid length")
	ErrSessionIDNotZero = errors.New("commands: session ID must be 0 for a session-less request")
	ErrInvalidPrivilege = errors.New("commands: invalid privilege level")
)
