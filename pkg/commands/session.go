package commands

import (
	"encoding/binary"

	"github.com/backkem/ipmi/pkg/message"
)

// CloseSession terminates a session (IPMI v2.0 Section 22.19).
type CloseSession struct {
	Params

	// SessionID is the managed system session ID to close.
	SessionID uint32
}

func (c *CloseSession) CommandCode() uint8 { return CmdCloseSession }

func (c *CloseSession) NetworkFunction() message.NetworkFunction {
	return message.NetFnAppRequest
}

func (c *CloseSession) EncodeCommand(seq, sessionID uint32) (*message.Message, error) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, c.SessionID)
	return encodeRequest(c.Params, c.NetworkFunction(), c.CommandCode(), seq, sessionID, data)
}

func (c *CloseSession) IsCommandResponse(m *message.Message) bool {
	return isResponse(m, c.NetworkFunction(), c.CommandCode())
}

// DecodeResponse returns nil on success; the response carries no data.
func (c *CloseSession) DecodeResponse(m *message.Message) (any, error) {
	if _, err := decodeResponse(m, c.NetworkFunction(), c.CommandCode()); err != nil {
		return nil, err
	}
	return nil, nil
}

// SetSessionPrivilegeLevel raises or lowers the privilege of the current
// session (IPMI v2.0 Section 22.18).
type SetSessionPrivilegeLevel struct {
	Params

	// Privilege is the requested level. PrivilegeMaximumAvailable only
	// queries the current level.
	Privilege PrivilegeLevel
}

func (c *SetSessionPrivilegeLevel) CommandCode() uint8 { return CmdSetSessionPrivilegeLevel }

func (c *SetSessionPrivilegeLevel) NetworkFunction() message.NetworkFunction {
	return message.NetFnAppRequest
}

func (c *SetSessionPrivilegeLevel) EncodeCommand(seq, sessionID uint32) (*message.Message, error) {
	if !c.Privilege.IsValid() {
		return nil, ErrInvalidPrivilege
	}
	data := []byte{uint8(c.Privilege)}
	return encodeRequest(c.Params, c.NetworkFunction(), c.CommandCode(), seq, sessionID, data)
}

func (c *SetSessionPrivilegeLevel) IsCommandResponse(m *message.Message) bool {
	return isResponse(m, c.NetworkFunction(), c.CommandCode())
}

// DecodeResponse returns the new PrivilegeLevel.
func (c *SetSessionPrivilegeLevel) DecodeResponse(m *message.Message) (any, error) {
	resp, err := decodeResponse(m, c.NetworkFunction(), c.CommandCode())
	if err != nil {
		return nil, err
	}
	if len(resp.Data) < 1 {
		return nil, ErrInvalidLength
	}
	return PrivilegeLevel(resp.Data[0] & 0x0F), nil
}
