package commands

import (
	"github.com/backkem/ipmi/pkg/message"
)

// CipherSuitePageSize is the amount of record data a BMC returns per Get
// Channel Cipher Suites request. A shorter page is the last one.
const CipherSuitePageSize = 16

// ChannelCurrent addresses the channel the request is received on.
const ChannelCurrent uint8 = 0x0E

// GetChannelCipherSuites requests one page of the cipher suite records of a
// channel (IPMI v2.0 Section 22.15). It is always sent as a session-less
// IPMI v2.0 message.
type GetChannelCipherSuites struct {
	// Channel is the channel number, or ChannelCurrent.
	Channel uint8
	// Index is the page index, starting at 0.
	Index uint8
}

// ChannelCipherSuites is one page of cipher suite record data.
type ChannelCipherSuites struct {
	Channel uint8
	// Data is the raw record data; concatenate all pages and pass the result
	// to security.ParseCipherSuites.
	Data []byte
}

func (c *GetChannelCipherSuites) CommandCode() uint8 { return CmdGetChannelCipherSuites }

func (c *GetChannelCipherSuites) NetworkFunction() message.NetworkFunction {
	return message.NetFnAppRequest
}

// EncodeCommand ignores sessionID: the request is always sent outside a
// session with sequence number 0; seq only sets the LAN tag.
func (c *GetChannelCipherSuites) EncodeCommand(seq, sessionID uint32) (*message.Message, error) {
	data := []byte{
		c.Channel,
		uint8(message.PayloadTypeIPMI),
		0x80 | c.Index&0x3F, // list algorithms by cipher suite
	}
	return &message.Message{
		Version:     message.V20,
		AuthType:    message.AuthTypeRMCPPlus,
		PayloadType: message.PayloadTypeIPMI,
		Payload:     message.NewLANRequest(c.NetworkFunction(), c.CommandCode(), seq, data).Encode(),
	}, nil
}

func (c *GetChannelCipherSuites) IsCommandResponse(m *message.Message) bool {
	return isResponse(m, c.NetworkFunction(), c.CommandCode())
}

// DecodeResponse returns a *ChannelCipherSuites.
func (c *GetChannelCipherSuites) DecodeResponse(m *message.Message) (any, error) {
	resp, err := decodeResponse(m, c.NetworkFunction(), c.CommandCode())
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 1 {
		return nil, ErrInvalidLength
	}
	return &ChannelCipherSuites{
		Channel: resp.Data[0],
		Data:    resp.Data[1:],
	}, nil
}
