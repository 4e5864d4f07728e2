package message

import "fmt"

// Well-known IPMB addresses used on the LAN channel.
const (
	// BMCAddress is the responder slave address of the BMC.
	BMCAddress uint8 = 0x20

	// RemoteConsoleAddress is the software ID of a remote console.
	RemoteConsoleAddress uint8 = 0x81
)

// IPMI LAN frame sizes, checksums and data excluded.
const (
	lanRequestHeaderSize  = 6
	lanResponseHeaderSize = 7

	// MinLANRequestSize is a request without data.
	MinLANRequestSize = lanRequestHeaderSize + 1
	// MinLANResponseSize is a response carrying only a completion code.
	MinLANResponseSize = lanResponseHeaderSize + 1
)

// Checksum returns the two's complement checksum of b: the byte that makes
// the sum of b plus the checksum zero modulo 256.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, v := range b {
		sum += v
	}
	return -sum
}

// LANRequest is an IPMI request message as carried in a session payload
// (IPMI v2.0 Section 13.8).
type LANRequest struct {
	RsAddr  uint8
	NetFn   NetworkFunction
	RsLUN   uint8
	RqAddr  uint8
	RqSeq   uint8
	RqLUN   uint8
	Command uint8
	Data    []byte
}

// NewLANRequest returns a request from the remote console to the BMC. The
// requester sequence is the low 6 bits of seq.
func NewLANRequest(netFn NetworkFunction, command uint8, seq uint32, data []byte) *LANRequest {
	return &LANRequest{
		RsAddr:  BMCAddress,
		NetFn:   netFn,
		RqAddr:  RemoteConsoleAddress,
		RqSeq:   uint8(seq % 64),
		Command: command,
		Data:    data,
	}
}

// Encode serializes the request with both checksums.
func (r *LANRequest) Encode() []byte {
	buf := make([]byte, MinLANRequestSize+len(r.Data))
	buf[0] = r.RsAddr
	buf[1] = uint8(r.NetFn)<<2 | r.RsLUN&0x03
	buf[2] = Checksum(buf[0:2])
	buf[3] = r.RqAddr
	buf[4] = r.RqSeq<<2 | r.RqLUN&0x03
	buf[5] = r.Command
	copy(buf[lanRequestHeaderSize:], r.Data)
	buf[len(buf)-1] = Checksum(buf[3 : len(buf)-1])
	return buf
}

// DecodeLANRequest parses a request frame and verifies both checksums.
func DecodeLANRequest(b []byte) (*LANRequest, error) {
	if len(b) < MinLANRequestSize {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
	}
	if err := verifyChecksums(b); err != nil {
		return nil, err
	}
	return &LANRequest{
		RsAddr:  b[0],
		NetFn:   NetworkFunction(b[1] >> 2),
		RsLUN:   b[1] & 0x03,
		RqAddr:  b[3],
		RqSeq:   b[4] >> 2,
		RqLUN:   b[4] & 0x03,
		Command: b[5],
		Data:    append([]byte(nil), b[lanRequestHeaderSize:len(b)-1]...),
	}, nil
}

// LANResponse is an IPMI response message as carried in a session payload.
type LANResponse struct {
	RqAddr         uint8
	NetFn          NetworkFunction
	RqLUN          uint8
	RsAddr         uint8
	RqSeq          uint8
	RsLUN          uint8
	Command        uint8
	CompletionCode CompletionCode
	Data           []byte
}

// Encode serializes the response with both checksums.
func (r *LANResponse) Encode() []byte {
	buf := make([]byte, MinLANResponseSize+len(r.Data))
	buf[0] = r.RqAddr
	buf[1] = uint8(r.NetFn)<<2 | r.RqLUN&0x03
	buf[2] = Checksum(buf[0:2])
	buf[3] = r.RsAddr
	buf[4] = r.RqSeq<<2 | r.RsLUN&0x03
	buf[5] = r.Command
	buf[6] = uint8(r.CompletionCode)
	copy(buf[lanResponseHeaderSize:], r.Data)
	buf[len(buf)-1] = Checksum(buf[3 : len(buf)-1])
	return buf
}

// Err returns a *CompletionError when the completion code is not OK.
func (r *LANResponse) Err() error {
	if r.CompletionCode == CompletionOK {
		return nil
	}
	return &CompletionError{Code: r.CompletionCode, NetFn: r.NetFn, Command: r.Command}
}

// DecodeLANResponse parses a response frame. Either checksum failing is a
// hard error.
func DecodeLANResponse(b []byte) (*LANResponse, error) {
	if len(b) < MinLANResponseSize {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
	}
	if err := verifyChecksums(b); err != nil {
		return nil, err
	}
	return &LANResponse{
		RqAddr:         b[0],
		NetFn:          NetworkFunction(b[1] >> 2),
		RqLUN:          b[1] & 0x03,
		RsAddr:         b[3],
		RqSeq:          b[4] >> 2,
		RsLUN:          b[4] & 0x03,
		Command:        b[5],
		CompletionCode: CompletionCode(b[6]),
		Data:           append([]byte(nil), b[lanResponseHeaderSize:len(b)-1]...),
	}, nil
}

// verifyChecksums checks checksum 1 over bytes 0..1 and checksum 2 over
// bytes 3..n-2 of a LAN frame.
func verifyChecksums(b []byte) error {
	if Checksum(b[0:2]) != b[2] {
		return fmt.Errorf("%w: checksum 1", ErrChecksum)
	}
	if Checksum(b[3:len(b)-1]) != b[len(b)-1] {
		return fmt.Errorf("%w: checksum 2", ErrChecksum)
	}
	return nil
}
