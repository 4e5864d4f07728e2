package statemachine

// State is the session establishment state of a connection.
//
// The happy path runs Uninitialized, CiphersWaiting, Ciphers, AuthcapWaiting,
// Authcap, OpenSessionWaiting, OpenSessionComplete, Rakp1Waiting,
// Rakp1Complete, Rakp3Waiting, Rakp3Complete and SessionValid. Timeouts and
// session close fall back to Authcap, from which a new session can be
// opened.
type State int

const (
	Uninitialized State = iota
	CiphersWaiting
	Ciphers
	AuthcapWaiting
	Authcap
	OpenSessionWaiting
	OpenSessionComplete
	Rakp1Waiting
	Rakp1Complete
	Rakp3Waiting
	Rakp3Complete
	SessionValid
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case CiphersWaiting:
		return "CiphersWaiting"
	case Ciphers:
		return "Ciphers"
	case AuthcapWaiting:
		return "AuthcapWaiting"
	case Authcap:
		return "Authcap"
	case OpenSessionWaiting:
		return "OpenSessionWaiting"
	case OpenSessionComplete:
		return "OpenSessionComplete"
	case Rakp1Waiting:
		return "Rakp1Waiting"
	case Rakp1Complete:
		return "Rakp1Complete"
	case Rakp3Waiting:
		return "Rakp3Waiting"
	case Rakp3Complete:
		return "Rakp3Complete"
	case SessionValid:
		return "SessionValid"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the state is a defined value.
func (s State) IsValid() bool {
	return s >= Uninitialized && s <= SessionValid
}

// Waiting reports whether the state awaits a response to a request it sent.
func (s State) Waiting() bool {
	switch s {
	case CiphersWaiting, AuthcapWaiting, OpenSessionWaiting, Rakp1Waiting, Rakp3Waiting:
		return true
	}
	return false
}
