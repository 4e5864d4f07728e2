package message

import "encoding/binary"

// ASF presence messages (ASF 2.0 Section 3.2.4.3) let a console find out
// whether a host answers RMCP and supports IPMI without opening a session.
const (
	// ASFIANA is the IANA enterprise number of the ASF message set.
	ASFIANA uint32 = 4542

	asfTypePresencePong = 0x40
	asfTypePresencePing = 0x80

	asfHeaderSize       = 8
	asfPongDataSize     = 16
	asfEntitiesIPMI     = 0x80
	asfEntitiesVersion1 = 0x01
)

// EncodePresencePing builds an ASF Presence Ping datagram with tag.
func EncodePresencePing(tag uint8) []byte {
	b := make([]byte, asfHeaderSize)
	binary.BigEndian.PutUint32(b, ASFIANA)
	b[4] = asfTypePresencePing
	b[5] = tag
	return EncodeRMCP(RMCPClassASF, b)
}

// IsPresencePing reports whether raw is an ASF Presence Ping and returns its
// tag.
func IsPresencePing(raw []byte) (uint8, bool) {
	h, data, err := DecodeRMCP(raw)
	if err != nil || h.Class != RMCPClassASF || len(data) < asfHeaderSize {
		return 0, false
	}
	if binary.BigEndian.Uint32(data) != ASFIANA || data[4] != asfTypePresencePing {
		return 0, false
	}
	return data[5], true
}

// PresencePong is the answer to a Presence Ping.
type PresencePong struct {
	Tag uint8
	// OEMIANA and OEMData identify OEM extensions; ASFIANA and 0 without.
	OEMIANA uint32
	OEMData uint32
	// IPMI is set when the host supports IPMI over RMCP.
	IPMI bool
	// Interactions is the supported interactions byte.
	Interactions uint8
}

// Encode serializes the pong into an RMCP datagram.
func (p *PresencePong) Encode() []byte {
	b := make([]byte, asfHeaderSize+asfPongDataSize)
	binary.BigEndian.PutUint32(b, ASFIANA)
	b[4] = asfTypePresencePong
	b[5] = p.Tag
	b[7] = asfPongDataSize
	binary.BigEndian.PutUint32(b[8:], p.OEMIANA)
	binary.BigEndian.PutUint32(b[12:], p.OEMData)
	b[16] = asfEntitiesVersion1
	if p.IPMI {
		b[16] |= asfEntitiesIPMI
	}
	b[17] = p.Interactions
	return EncodeRMCP(RMCPClassASF, b)
}

// DecodePresencePong parses an ASF Presence Pong datagram.
func DecodePresencePong(raw []byte) (*PresencePong, error) {
	h, data, err := DecodeRMCP(raw)
	if err != nil {
		return nil, err
	}
	if h.Class != RMCPClassASF || len(data) < asfHeaderSize {
		return nil, ErrNotPresencePong
	}
	if binary.BigEndian.Uint32(data) != ASFIANA || data[4] != asfTypePresencePong {
		return nil, ErrNotPresencePong
	}
	if len(data) < asfHeaderSize+asfPongDataSize {
		return nil, ErrMessageTooShort
	}
	return &PresencePong{
		Tag:          data[5],
		OEMIANA:      binary.BigEndian.Uint32(data[8:]),
		OEMData:      binary.BigEndian.Uint32(data[12:]),
		IPMI:         data[16]&asfEntitiesIPMI != 0,
		Interactions: data[17],
	}, nil
}
