package message

import "fmt"

// Message is an IPMI session message in either v1.5 or v2.0 format.
// Payload always holds plaintext; encryption happens inside the Codec.
type Message struct {
	// Version selects the session header format.
	Version Version

	// AuthType is the session auth type. It must be AuthTypeRMCPPlus for V20.
	AuthType AuthType

	// PayloadType is the v2.0 payload type. Ignored for V15 (always IPMI).
	PayloadType PayloadType

	// Encrypted marks a v2.0 payload encrypted with the session's
	// confidentiality algorithm.
	Encrypted bool

	// Authenticated marks a v2.0 message carrying an integrity trailer.
	// The trailer is only present when SessionID is non-zero.
	Authenticated bool

	// OEMIANA and OEMPayloadID are present for PayloadTypeOEM only.
	OEMIANA      uint32
	OEMPayloadID uint16

	// SessionID is the receiver's session ID; 0 outside a session.
	SessionID uint32

	// Sequence is the session sequence number.
	Sequence uint32

	// AuthCode is the v1.5 16-byte auth code or the v2.0 integrity MAC.
	// It is set on decode; on encode it is only used for v1.5.
	AuthCode []byte

	// Payload is the plaintext session payload.
	Payload []byte

	// IntegrityFailed is set on decode when the v2.0 integrity trailer did
	// not match the expected MAC.
	IntegrityFailed bool
}

// Tag returns the low 6 bits of the session sequence number, which
// correlate a request with its response.
func (m *Message) Tag() uint8 {
	return uint8(m.Sequence % 64)
}

// String returns a short description for logging.
func (m *Message) String() string {
	if m.Version == V15 {
		return fmt.Sprintf("v1.5 auth=%s sid=0x%08x seq=%d len=%d",
			m.AuthType, m.SessionID, m.Sequence, len(m.Payload))
	}
	return fmt.Sprintf("v2.0 type=%s enc=%t auth=%t sid=0x%08x seq=%d len=%d",
		m.PayloadType, m.Encrypted, m.Authenticated, m.SessionID, m.Sequence, len(m.Payload))
}

// payloadTypeByte returns the v2.0 payload type byte with its flags.
func (m *Message) payloadTypeByte() uint8 {
	b := uint8(m.PayloadType) & payloadTypeMask
	if m.Encrypted {
		b |= payloadFlagEncrypted
	}
	if m.Authenticated {
		b |= payloadFlagAuthenticated
	}
	return b
}

// hasTrailer reports whether a v2.0 message carries an integrity trailer.
func (m *Message) hasTrailer() bool {
	return m.Authenticated && m.SessionID != 0
}
