package bmcsim

import "errors"

// Simulator errors.
var (
	ErrUnknownSession = errors.New("bmcsim: unknown session")
	ErrClosed         = errors.New("bmcsim: closed")
	ErrAlreadyStarted = errors.New("bmcsim: already serving")
)
