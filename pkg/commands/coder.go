// Package commands implements the IPMI command coder contract and the
// commands the session layer needs for itself: cipher suite discovery,
// authentication capabilities (also used as keepalive), session privilege
// and close, plus Get Chassis Status as a minimal in-session command.
//
// A Coder turns a sequence number and session ID into a session message
// and turns the matching response back into a typed value. Upper layers
// implement further commands against the same interface.
package commands

import (
	"fmt"

	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/security"
)

// Coder encodes one IPMI request and decodes its response.
type Coder interface {
	// CommandCode returns the IPMI command number.
	CommandCode() uint8

	// NetworkFunction returns the request network function.
	NetworkFunction() message.NetworkFunction

	// EncodeCommand builds the session message for the request. The low 6
	// bits of seq become the LAN requester sequence (the tag).
	EncodeCommand(seq, sessionID uint32) (*message.Message, error)

	// IsCommandResponse reports whether m carries the response to this
	// command.
	IsCommandResponse(m *message.Message) bool

	// DecodeResponse extracts the typed response from m. A completion code
	// other than OK is returned as *message.CompletionError.
	DecodeResponse(m *message.Message) (any, error)
}

// Params are the session parameters a command is encoded with.
type Params struct {
	// Version selects the session format.
	Version message.Version

	// AuthType is the session auth type; RMCP+ for V20.
	AuthType message.AuthType

	// Suite decides whether v2.0 payloads are marked encrypted and
	// authenticated. Encryption itself is done by the session's codec.
	Suite security.CipherSuiteInfo
}

// V20Params returns parameters for an RMCP+ session using suite.
func V20Params(suite security.CipherSuiteInfo) Params {
	return Params{
		Version:  message.V20,
		AuthType: message.AuthTypeRMCPPlus,
		Suite:    suite,
	}
}

// V15Params returns parameters for session-less IPMI v1.5 requests.
func V15Params() Params {
	return Params{Version: message.V15, AuthType: message.AuthTypeNone}
}

// Validate checks that the auth type fits the version.
func (p Params) Validate() error {
	if p.Version == message.V20 && p.AuthType != message.AuthTypeRMCPPlus {
		return ErrInvalidAuthType
	}
	return nil
}

// encodeRequest wraps a LAN request for netFn/cmd into a session message.
func encodeRequest(p Params, netFn message.NetworkFunction, cmd uint8, seq, sessionID uint32, data []byte) (*message.Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	payload := message.NewLANRequest(netFn, cmd, seq, data).Encode()

	if p.Version == message.V15 {
		return &message.Message{
			Version:   message.V15,
			AuthType:  p.AuthType,
			SessionID: sessionID,
			Sequence:  seq,
			Payload:   payload,
		}, nil
	}

	return &message.Message{
		Version:       message.V20,
		AuthType:      message.AuthTypeRMCPPlus,
		PayloadType:   message.PayloadTypeIPMI,
		Authenticated: p.Suite.Integrity != security.IntegrityNone,
		Encrypted:     p.Suite.Confidentiality != security.ConfidentialityNone,
		SessionID:     sessionID,
		Sequence:      seq,
		Payload:       payload,
	}, nil
}

// isResponse reports whether m carries a LAN response for netFn/cmd.
func isResponse(m *message.Message, netFn message.NetworkFunction, cmd uint8) bool {
	if m.PayloadType != message.PayloadTypeIPMI {
		return false
	}
	resp, err := message.DecodeLANResponse(m.Payload)
	if err != nil {
		return false
	}
	return resp.Command == cmd && resp.NetFn == netFn.Response()
}

// decodeResponse parses the LAN response in m and checks that it answers
// netFn/cmd with completion code OK.
func decodeResponse(m *message.Message, netFn message.NetworkFunction, cmd uint8) (*message.LANResponse, error) {
	if m.PayloadType != message.PayloadTypeIPMI {
		return nil, fmt.Errorf("%w: payload type %s", ErrNotResponse, m.PayloadType)
	}
	resp, err := message.DecodeLANResponse(m.Payload)
	if err != nil {
		return nil, err
	}
	if resp.Command != cmd || resp.NetFn != netFn.Response() {
		return nil, fmt.Errorf("%w: got %s command 0x%02x", ErrNotResponse, resp.NetFn, resp.Command)
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}
