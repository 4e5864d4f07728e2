package message

import (
	"encoding/binary"
	"fmt"

	"github.com/backkem/ipmi/pkg/security"
	"github.com/pion/logging"
)

// CodecConfig configures a Codec.
type CodecConfig struct {
	// StrictIntegrity rejects v2.0 messages whose integrity trailer does not
	// verify. When false a mismatch is logged and reported through
	// Message.IntegrityFailed.
	StrictIntegrity bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Codec encodes and decodes IPMI session messages for one cipher suite.
// The suite supplies the confidentiality and integrity algorithms; it must
// already be keyed for messages inside an established session.
type Codec struct {
	suite  *security.CipherSuite
	strict bool
	log    logging.LeveledLogger
}

// NewCodec creates a codec bound to suite. A nil suite is allowed for
// messages that are neither encrypted nor authenticated.
func NewCodec(suite *security.CipherSuite, config CodecConfig) *Codec {
	c := &Codec{
		suite:  suite,
		strict: config.StrictIntegrity,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("ipmi-codec")
	}
	return c
}

// Suite returns the cipher suite the codec is bound to.
func (c *Codec) Suite() *security.CipherSuite {
	return c.suite
}

// Encode serializes m into a complete RMCP datagram.
func (c *Codec) Encode(m *Message) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch m.Version {
	case V15:
		data, err = encodeV15(m)
	case V20:
		data, err = c.encodeV20(m)
	default:
		return nil, ErrInvalidVersion
	}
	if err != nil {
		return nil, err
	}
	return EncodeRMCP(RMCPClassIPMI, data), nil
}

// Decode parses a complete RMCP datagram. The session format is selected by
// the auth type byte: RMCP+ means v2.0, anything else v1.5.
func (c *Codec) Decode(raw []byte) (*Message, error) {
	h, data, err := DecodeRMCP(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if h.Class != RMCPClassIPMI {
		return nil, ErrNotIPMI
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
	}

	if AuthType(data[0]&0x0F) == AuthTypeRMCPPlus {
		return c.decodeV20(data)
	}
	return decodeV15(data)
}

func encodeV15(m *Message) ([]byte, error) {
	if !m.AuthType.IsValid() || m.AuthType == AuthTypeRMCPPlus {
		return nil, ErrInvalidAuthType
	}
	if len(m.Payload) > MaxV15PayloadSize {
		return nil, ErrPayloadTooLong
	}

	size := MinV15HeaderSize + len(m.Payload)
	if m.AuthType != AuthTypeNone {
		if len(m.AuthCode) != AuthCodeSize {
			return nil, ErrInvalidAuthCode
		}
		size += AuthCodeSize
	}

	buf := make([]byte, size)
	buf[0] = uint8(m.AuthType)
	binary.LittleEndian.PutUint32(buf[1:], m.Sequence)
	binary.LittleEndian.PutUint32(buf[5:], m.SessionID)
	offset := 9

	if m.AuthType != AuthTypeNone {
		copy(buf[offset:], m.AuthCode)
		offset += AuthCodeSize
	}

	buf[offset] = uint8(len(m.Payload))
	offset++
	copy(buf[offset:], m.Payload)

	return buf, nil
}

func decodeV15(data []byte) (*Message, error) {
	if len(data) < MinV15HeaderSize {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
	}

	m := &Message{
		Version:     V15,
		AuthType:    AuthType(data[0] & 0x0F),
		PayloadType: PayloadTypeIPMI,
		Sequence:    binary.LittleEndian.Uint32(data[1:]),
		SessionID:   binary.LittleEndian.Uint32(data[5:]),
	}
	if !m.AuthType.IsValid() {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrInvalidAuthType)
	}
	offset := 9

	if m.AuthType != AuthTypeNone {
		if len(data) < offset+AuthCodeSize+1 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
		}
		m.AuthCode = append([]byte(nil), data[offset:offset+AuthCodeSize]...)
		offset += AuthCodeSize
	}

	length := int(data[offset])
	offset++
	if offset+length > len(data) {
		return nil, fmt.Errorf("%w: payload length %d exceeds packet", ErrMalformed, length)
	}
	m.Payload = append([]byte(nil), data[offset:offset+length]...)

	return m, nil
}

// trailerPadLength returns the number of 0xFF bytes needed so that the
// integrity trailer, including pad length, next header and MAC, ends on a
// 4-byte boundary.
func trailerPadLength(offset, authCodeLen int) int {
	if r := (offset + authCodeLen + 2) % 4; r != 0 {
		return 4 - r
	}
	return 0
}

func (c *Codec) encodeV20(m *Message) ([]byte, error) {
	if m.AuthType != AuthTypeRMCPPlus {
		return nil, fmt.Errorf("%w: v2.0 requires RMCP+", ErrInvalidAuthType)
	}

	payload := m.Payload
	if m.Encrypted {
		if c.suite == nil {
			return nil, ErrMissingCipherSuite
		}
		enc, err := c.suite.Confidentiality().Encrypt(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encrypt payload: %w", err)
		}
		payload = enc
	}
	if len(payload) > MaxV20PayloadSize {
		return nil, ErrPayloadTooLong
	}

	size := MinV20HeaderSize + len(payload)
	if m.PayloadType == PayloadTypeOEM {
		size += OEMHeaderSize
	}

	authLen, pad := 0, 0
	if m.hasTrailer() {
		if c.suite == nil {
			return nil, ErrMissingCipherSuite
		}
		authLen = c.suite.Integrity().AuthCodeLength()
		pad = trailerPadLength(size, authLen)
		size += pad + 2 + authLen
	}

	buf := make([]byte, size)
	buf[0] = uint8(AuthTypeRMCPPlus)
	buf[1] = m.payloadTypeByte()
	offset := 2

	if m.PayloadType == PayloadTypeOEM {
		binary.LittleEndian.PutUint32(buf[offset:], m.OEMIANA)
		binary.LittleEndian.PutUint16(buf[offset+4:], m.OEMPayloadID)
		offset += OEMHeaderSize
	}

	binary.LittleEndian.PutUint32(buf[offset:], m.SessionID)
	binary.LittleEndian.PutUint32(buf[offset+4:], m.Sequence)
	binary.LittleEndian.PutUint16(buf[offset+8:], uint16(len(payload)))
	offset += 10

	copy(buf[offset:], payload)
	offset += len(payload)

	if m.hasTrailer() {
		for i := 0; i < pad; i++ {
			buf[offset] = integrityPadByte
			offset++
		}
		buf[offset] = uint8(pad)
		buf[offset+1] = integrityNextHeader
		offset += 2

		mac, err := c.suite.Integrity().GenerateAuthCode(buf[:offset])
		if err != nil {
			return nil, fmt.Errorf("integrity: %w", err)
		}
		if len(mac) != authLen {
			return nil, fmt.Errorf("integrity: auth code length %d, want %d", len(mac), authLen)
		}
		copy(buf[offset:], mac)
	}

	return buf, nil
}

func (c *Codec) decodeV20(data []byte) (*Message, error) {
	if len(data) < MinV20HeaderSize {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
	}

	m := &Message{
		Version:       V20,
		AuthType:      AuthType(data[0] & 0x0F),
		PayloadType:   PayloadType(data[1] & payloadTypeMask),
		Encrypted:     data[1]&payloadFlagEncrypted != 0,
		Authenticated: data[1]&payloadFlagAuthenticated != 0,
	}
	offset := 2

	if m.PayloadType == PayloadTypeOEM {
		if len(data) < MinV20HeaderSize+OEMHeaderSize {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrMessageTooShort)
		}
		m.OEMIANA = binary.LittleEndian.Uint32(data[offset:])
		m.OEMPayloadID = binary.LittleEndian.Uint16(data[offset+4:])
		offset += OEMHeaderSize
	}

	m.SessionID = binary.LittleEndian.Uint32(data[offset:])
	m.Sequence = binary.LittleEndian.Uint32(data[offset+4:])
	length := int(binary.LittleEndian.Uint16(data[offset+8:]))
	offset += 10

	if offset+length > len(data) {
		return nil, fmt.Errorf("%w: payload length %d exceeds packet", ErrMalformed, length)
	}
	payload := data[offset : offset+length]
	offset += length

	if m.Encrypted && length > 0 {
		if c.suite == nil {
			return nil, ErrMissingCipherSuite
		}
		plain, err := c.suite.Confidentiality().Decrypt(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecryptFailed, err)
		}
		m.Payload = plain
	} else {
		m.Payload = append([]byte(nil), payload...)
	}

	if m.hasTrailer() {
		macOffset, err := skipIntegrityPad(data, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		m.AuthCode = append([]byte(nil), data[macOffset:]...)
		if err := c.checkIntegrity(m, data[:macOffset]); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// skipIntegrityPad walks the 0xFF pad of a session trailer starting at
// offset and returns the offset of the MAC. The pad length byte must equal
// the number of pad bytes.
func skipIntegrityPad(data []byte, offset int) (int, error) {
	skip := 0
	for offset+skip < len(data) && data[offset+skip] == integrityPadByte {
		skip++
	}
	if offset+skip+2 > len(data) {
		return 0, ErrInvalidPad
	}
	if int(data[offset+skip]) != skip {
		return 0, ErrInvalidPad
	}
	return offset + skip + 2, nil
}

func (c *Codec) checkIntegrity(m *Message, base []byte) error {
	ok := false
	if c.suite != nil {
		valid, err := c.suite.Integrity().ValidateAuthCode(base, m.AuthCode)
		if err != nil && c.log != nil {
			c.log.Debugf("integrity validation error: %v", err)
		}
		ok = err == nil && valid
	}
	if ok {
		return nil
	}

	m.IntegrityFailed = true
	if c.log != nil {
		c.log.Warnf("integrity check failed for session 0x%08x seq %d", m.SessionID, m.Sequence)
	}
	if c.strict {
		return ErrIntegrityCheck
	}
	return nil
}

// Header is the part of a session message that can be read without any
// session keys. It lets receivers filter packets cheaply before decoding.
type Header struct {
	Version       Version
	AuthType      AuthType
	PayloadType   PayloadType
	Encrypted     bool
	Authenticated bool
	SessionID     uint32
	Sequence      uint32
}

// PeekHeader reads the session header of an IPMI RMCP datagram.
func PeekHeader(raw []byte) (Header, error) {
	h, data, err := DecodeRMCP(raw)
	if err != nil {
		return Header{}, err
	}
	if h.Class != RMCPClassIPMI {
		return Header{}, ErrNotIPMI
	}
	if len(data) == 0 {
		return Header{}, ErrMessageTooShort
	}

	at := AuthType(data[0] & 0x0F)
	if at != AuthTypeRMCPPlus {
		if len(data) < MinV15HeaderSize {
			return Header{}, ErrMessageTooShort
		}
		return Header{
			Version:     V15,
			AuthType:    at,
			PayloadType: PayloadTypeIPMI,
			Sequence:    binary.LittleEndian.Uint32(data[1:]),
			SessionID:   binary.LittleEndian.Uint32(data[5:]),
		}, nil
	}

	if len(data) < MinV20HeaderSize {
		return Header{}, ErrMessageTooShort
	}
	hdr := Header{
		Version:       V20,
		AuthType:      at,
		PayloadType:   PayloadType(data[1] & payloadTypeMask),
		Encrypted:     data[1]&payloadFlagEncrypted != 0,
		Authenticated: data[1]&payloadFlagAuthenticated != 0,
	}
	offset := 2
	if hdr.PayloadType == PayloadTypeOEM {
		if len(data) < MinV20HeaderSize+OEMHeaderSize {
			return Header{}, ErrMessageTooShort
		}
		offset += OEMHeaderSize
	}
	hdr.SessionID = binary.LittleEndian.Uint32(data[offset:])
	hdr.Sequence = binary.LittleEndian.Uint32(data[offset+4:])
	return hdr, nil
}
