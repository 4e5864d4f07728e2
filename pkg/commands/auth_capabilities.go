package commands

import (
	"github.com/backkem/ipmi/pkg/message"
)

// GetChannelAuthCapabilities queries the authentication capabilities of a
// channel (IPMI v2.0 Section 22.13). Before a session exists it is sent as a
// session-less v1.5 message; inside a session it doubles as the keepalive.
type GetChannelAuthCapabilities struct {
	Params

	// RequestV20 asks for the IPMI v2.0 extended capabilities.
	RequestV20 bool
	// Channel is the channel number, or ChannelCurrent.
	Channel uint8
	// Privilege is the requested maximum privilege level.
	Privilege PrivilegeLevel
}

// ChannelAuthCapabilities is the decoded capability response.
type ChannelAuthCapabilities struct {
	Channel uint8

	// IPMIv20 is set when the channel supports RMCP+ sessions.
	IPMIv20 bool
	// AuthTypes lists the enabled IPMI v1.5 auth types.
	AuthTypes []message.AuthType

	KGEnabled        bool
	PerMessageAuth   bool
	UserLevelAuth    bool
	NonNullUsernames bool
	NullUsernames    bool
	AnonymousLogin   bool

	// OEMID is the IANA enterprise number of the OEM auth type.
	OEMID uint32
	// OEMAux is OEM auxiliary data.
	OEMAux uint8
}

// authCapabilitiesLength is the fixed response data length.
const authCapabilitiesLength = 8

func (c *GetChannelAuthCapabilities) CommandCode() uint8 {
	return CmdGetChannelAuthenticationCapabilities
}

func (c *GetChannelAuthCapabilities) NetworkFunction() message.NetworkFunction {
	return message.NetFnAppRequest
}

// EncodeCommand builds the request. The v1.5 form is session-less and
// rejects a non-zero sessionID.
func (c *GetChannelAuthCapabilities) EncodeCommand(seq, sessionID uint32) (*message.Message, error) {
	data := []byte{c.Channel & 0x0F, uint8(c.Privilege) & 0x0F}
	if c.RequestV20 {
		data[0] |= 0x80
	}

	if c.Version == message.V15 {
		if sessionID != 0 {
			return nil, ErrSessionIDNotZero
		}
		m, err := encodeRequest(c.Params, c.NetworkFunction(), c.CommandCode(), seq, 0, data)
		if err != nil {
			return nil, err
		}
		m.Sequence = 0
		return m, nil
	}

	p := c.Params
	p.AuthType = message.AuthTypeRMCPPlus
	return encodeRequest(p, c.NetworkFunction(), c.CommandCode(), seq, sessionID, data)
}

func (c *GetChannelAuthCapabilities) IsCommandResponse(m *message.Message) bool {
	return isResponse(m, c.NetworkFunction(), c.CommandCode())
}

// DecodeResponse returns a *ChannelAuthCapabilities.
func (c *GetChannelAuthCapabilities) DecodeResponse(m *message.Message) (any, error) {
	resp, err := decodeResponse(m, c.NetworkFunction(), c.CommandCode())
	if err != nil {
		return nil, err
	}
	return ParseChannelAuthCapabilities(resp.Data)
}

// ParseChannelAuthCapabilities decodes the 8-byte capability response data.
func ParseChannelAuthCapabilities(raw []byte) (*ChannelAuthCapabilities, error) {
	if len(raw) != authCapabilitiesLength {
		return nil, ErrInvalidLength
	}

	caps := &ChannelAuthCapabilities{
		Channel: raw[0],
		IPMIv20: raw[1]&0x80 != 0,

		KGEnabled:        raw[2]&0x20 != 0,
		PerMessageAuth:   raw[2]&0x10 == 0,
		UserLevelAuth:    raw[2]&0x08 == 0,
		NonNullUsernames: raw[2]&0x04 != 0,
		NullUsernames:    raw[2]&0x02 != 0,
		AnonymousLogin:   raw[2]&0x01 != 0,

		OEMID:  uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16,
		OEMAux: raw[7],
	}

	authBits := []struct {
		mask uint8
		auth message.AuthType
	}{
		{0x20, message.AuthTypeOEM},
		{0x10, message.AuthTypeStraight},
		{0x04, message.AuthTypeMD5},
		{0x02, message.AuthTypeMD2},
		{0x01, message.AuthTypeNone},
	}
	for _, b := range authBits {
		if raw[1]&b.mask != 0 {
			caps.AuthTypes = append(caps.AuthTypes, b.auth)
		}
	}

	return caps, nil
}

// Encode serializes the capabilities into response data.
func (c *ChannelAuthCapabilities) Encode() []byte {
	raw := make([]byte, authCapabilitiesLength)
	raw[0] = c.Channel
	if c.IPMIv20 {
		raw[1] |= 0x80
	}
	for _, a := range c.AuthTypes {
		switch a {
		case message.AuthTypeOEM:
			raw[1] |= 0x20
		case message.AuthTypeStraight:
			raw[1] |= 0x10
		case message.AuthTypeMD5:
			raw[1] |= 0x04
		case message.AuthTypeMD2:
			raw[1] |= 0x02
		case message.AuthTypeNone:
			raw[1] |= 0x01
		}
	}

	flags := []struct {
		set  bool
		mask uint8
	}{
		{c.KGEnabled, 0x20},
		{!c.PerMessageAuth, 0x10},
		{!c.UserLevelAuth, 0x08},
		{c.NonNullUsernames, 0x04},
		{c.NullUsernames, 0x02},
		{c.AnonymousLogin, 0x01},
	}
	for _, f := range flags {
		if f.set {
			raw[2] |= f.mask
		}
	}
	if c.IPMIv20 {
		raw[3] = 0x02 // supports IPMI v2.0 connections
	}

	raw[4] = uint8(c.OEMID)
	raw[5] = uint8(c.OEMID >> 8)
	raw[6] = uint8(c.OEMID >> 16)
	raw[7] = c.OEMAux
	return raw
}
