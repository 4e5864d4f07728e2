package statemachine

import (
	"fmt"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
)

// Event drives the state machine. The set of events is closed.
type Event interface {
	isEvent()
	fmt.Stringer
}

// GetChannelCipherSuitesPending requests cipher suite page Index with LAN
// tag Tag.
type GetChannelCipherSuitesPending struct {
	Tag   uint8
	Index uint8
}

// DefaultAck acknowledges the response awaited in a waiting state.
type DefaultAck struct{}

// Default requests the channel authentication capabilities.
type Default struct {
	Suite     security.CipherSuiteInfo
	Tag       uint8
	Privilege commands.PrivilegeLevel
}

// AuthCapabilitiesReceived records the console session ID chosen after the
// capabilities arrived.
type AuthCapabilitiesReceived struct {
	SessionID uint32
	Privilege commands.PrivilegeLevel
}

// Authorize opens a session with console session ID SessionID.
type Authorize struct {
	Suite     security.CipherSuiteInfo
	Tag       uint8
	Privilege commands.PrivilegeLevel
	SessionID uint32
}

// OpenSessionAck starts the RAKP exchange with the credentials.
type OpenSessionAck struct {
	Suite            security.CipherSuiteInfo
	Privilege        commands.PrivilegeLevel
	Tag              uint8
	ManagedSessionID uint32
	Username         string
	Password         []byte
	// KG is the BMC key; empty selects Password.
	KG []byte
}

// Rakp2Ack continues the RAKP exchange after a verified RAKP message 2. A
// non-zero Status abandons the exchange instead: RAKP message 3 carries only
// the status and no session integrity key is derived.
type Rakp2Ack struct {
	Suite            security.CipherSuiteInfo
	Tag              uint8
	Status           rakp.StatusCode
	ManagedSessionID uint32
	RAKP2            *rakp.RAKP2
}

// StartSession activates the session. Suite must be keyed with the session
// integrity key; SessionID is the console session ID inbound messages carry.
type StartSession struct {
	Suite     *security.CipherSuite
	SessionID uint32
}

// SendMessage sends Command inside the session. SessionID is the managed
// system session ID.
type SendMessage struct {
	Command   commands.Coder
	SessionID uint32
	Seq       uint32
}

// SessionUpkeep sends a keepalive inside the session.
type SessionUpkeep struct {
	SessionID uint32
	Seq       uint32
}

// CloseSession closes the session.
type CloseSession struct {
	SessionID uint32
	Seq       uint32
}

// Timeout reports that the awaited response did not arrive.
type Timeout struct{}

func (GetChannelCipherSuitesPending) isEvent() {}
func (DefaultAck) isEvent()                    {}
func (Default) isEvent()                       {}
func (AuthCapabilitiesReceived) isEvent()      {}
func (Authorize) isEvent()                     {}
func (OpenSessionAck) isEvent()                {}
func (Rakp2Ack) isEvent()                      {}
func (StartSession) isEvent()                  {}
func (SendMessage) isEvent()                   {}
func (SessionUpkeep) isEvent()                 {}
func (CloseSession) isEvent()                  {}
func (Timeout) isEvent()                       {}

func (GetChannelCipherSuitesPending) String() string { return "GetChannelCipherSuitesPending" }
func (DefaultAck) String() string                    { return "DefaultAck" }
func (Default) String() string                       { return "Default" }
func (AuthCapabilitiesReceived) String() string      { return "AuthCapabilitiesReceived" }
func (Authorize) String() string                     { return "Authorize" }
func (OpenSessionAck) String() string                { return "OpenSessionAck" }
func (Rakp2Ack) String() string                      { return "Rakp2Ack" }
func (StartSession) String() string                  { return "StartSession" }
func (SendMessage) String() string                   { return "SendMessage" }
func (SessionUpkeep) String() string                 { return "SessionUpkeep" }
func (CloseSession) String() string                  { return "CloseSession" }
func (Timeout) String() string                       { return "Timeout" }
