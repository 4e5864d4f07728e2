package message

// RMCP header fields (ASF 2.0 Section 3.2.2.1).
const (
	// RMCPVersion is RMCP version 1.0.
	RMCPVersion uint8 = 0x06

	// RMCPSequenceNoAck disables RMCP-level acknowledgements, as IPMI
	// messages always do.
	RMCPSequenceNoAck uint8 = 0xFF
)

// RMCPHeader is the 4-byte envelope in front of every IPMI and ASF message.
type RMCPHeader struct {
	// Sequence is the RMCP sequence number; 0xFF for IPMI.
	Sequence uint8
	// Class is the message class.
	Class RMCPClass
}

// EncodeRMCP prepends an RMCP header with the given class to data.
func EncodeRMCP(class RMCPClass, data []byte) []byte {
	buf := make([]byte, RMCPHeaderSize+len(data))
	buf[0] = RMCPVersion
	buf[1] = 0x00 // reserved
	buf[2] = RMCPSequenceNoAck
	buf[3] = uint8(class)
	copy(buf[RMCPHeaderSize:], data)
	return buf
}

// DecodeRMCP splits a datagram into its RMCP header and the class-specific
// data that follows. The returned data aliases raw.
func DecodeRMCP(raw []byte) (RMCPHeader, []byte, error) {
	if len(raw) < RMCPHeaderSize {
		return RMCPHeader{}, nil, ErrMessageTooShort
	}
	if raw[0] != RMCPVersion {
		return RMCPHeader{}, nil, ErrInvalidRMCP
	}

	h := RMCPHeader{
		Sequence: raw[2],
		Class:    RMCPClass(raw[3] &^ uint8(rmcpClassAck)),
	}
	if raw[3]&uint8(rmcpClassAck) != 0 || !h.Class.IsValid() {
		return h, nil, ErrInvalidRMCP
	}
	return h, raw[RMCPHeaderSize:], nil
}
