package statemachine

import "fmt"

// Transition returns the state that event leads to from s. It has no side
// effects; pairs outside the table return ErrInvalidTransition.
func Transition(s State, event Event) (State, error) {
	switch s {
	case Uninitialized:
		if _, ok := event.(GetChannelCipherSuitesPending); ok {
			return CiphersWaiting, nil
		}

	case CiphersWaiting:
		switch event.(type) {
		case GetChannelCipherSuitesPending:
			return CiphersWaiting, nil
		case DefaultAck:
			return Ciphers, nil
		case Timeout:
			return Uninitialized, nil
		}

	case Ciphers:
		if _, ok := event.(Default); ok {
			return AuthcapWaiting, nil
		}

	case AuthcapWaiting:
		switch event.(type) {
		case AuthCapabilitiesReceived:
			return Authcap, nil
		case Timeout:
			return Ciphers, nil
		}

	case Authcap:
		if _, ok := event.(Authorize); ok {
			return OpenSessionWaiting, nil
		}

	case OpenSessionWaiting:
		switch event.(type) {
		case DefaultAck:
			return OpenSessionComplete, nil
		case Timeout:
			return Authcap, nil
		}

	case OpenSessionComplete:
		if _, ok := event.(OpenSessionAck); ok {
			return Rakp1Waiting, nil
		}

	case Rakp1Waiting:
		switch event.(type) {
		case DefaultAck:
			return Rakp1Complete, nil
		case Timeout:
			return Authcap, nil
		}

	case Rakp1Complete:
		if _, ok := event.(Rakp2Ack); ok {
			return Rakp3Waiting, nil
		}

	case Rakp3Waiting:
		switch event.(type) {
		case DefaultAck:
			return Rakp3Complete, nil
		case Timeout:
			return Authcap, nil
		}

	case Rakp3Complete:
		if _, ok := event.(StartSession); ok {
			return SessionValid, nil
		}

	case SessionValid:
		switch event.(type) {
		case SendMessage, SessionUpkeep:
			return SessionValid, nil
		case Timeout, CloseSession:
			return Authcap, nil
		}
	}

	return s, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, s)
}
