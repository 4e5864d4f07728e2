package message

import "errors"

// Message layer errors.
var (
	// Framing errors
	ErrMalformed          = errors.New("message: malformed packet")
	ErrMessageTooShort    = errors.New("message: data too short")
	ErrNotIPMI            = errors.New("message: not an IPMI class RMCP message")
	ErrInvalidRMCP        = errors.New("message: invalid RMCP header")
	ErrInvalidAuthType    = errors.New("message: invalid authentication type")
	ErrInvalidAuthCode    = errors.New("message: auth code must be 16 bytes")
	ErrPayloadTooLong     = errors.New("message: payload too long")
	ErrInvalidVersion     = errors.New("message: invalid IPMI version")
	ErrInvalidPad         = errors.New("message: invalid integrity pad")
	ErrMissingCipherSuite = errors.New("message: no cipher suite bound")

	// IPMI LAN errors
	ErrChecksum = errors.New("message: checksum mismatch")

	// Security errors
	ErrIntegrityCheck = errors.New("message: integrity check failed")
	ErrDecryptFailed  = errors.New("message: payload decryption failed")

	// ASF errors
	ErrNotPresencePong = errors.New("message: not an ASF presence pong")
)

// Wire format constants.
const (
	// RMCPHeaderSize is the size of the RMCP header (ASF 2.0 Section 3.2.2.1).
	RMCPHeaderSize = 4

	// AuthCodeSize is the size of the IPMI v1.5 session auth code.
	AuthCodeSize = 16

	// MinV15HeaderSize is auth type (1) + sequence (4) + session ID (4) + length (1).
	MinV15HeaderSize = 10

	// MinV20HeaderSize is auth type (1) + payload type (1) + session ID (4) +
	// sequence (4) + length (2).
	MinV20HeaderSize = 12

	// OEMHeaderSize is OEM IANA (4) + OEM payload ID (2).
	OEMHeaderSize = 6

	// MaxV15PayloadSize is the largest payload a one-byte length can carry.
	MaxV15PayloadSize = 0xFF

	// MaxV20PayloadSize is the largest payload a two-byte length can carry.
	MaxV20PayloadSize = 0xFFFF

	// integrityNextHeader is the reserved "next header" byte of the v2.0
	// session trailer.
	integrityNextHeader = 0x07

	// integrityPadByte fills the session trailer to a 4-byte boundary.
	integrityPadByte = 0xFF
)
