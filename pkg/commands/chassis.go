package commands

import (
	"fmt"

	"github.com/backkem/ipmi/pkg/message"
)

// GetChassisStatus reads the chassis power and fault state
// (IPMI v2.0 Section 28.2).
type GetChassisStatus struct {
	Params
}

// PowerRestorePolicy is the chassis behavior after AC power returns.
type PowerRestorePolicy uint8

const (
	PowerRestoreStayOff  PowerRestorePolicy = 0
	PowerRestorePrevious PowerRestorePolicy = 1
	PowerRestoreAlwaysOn PowerRestorePolicy = 2
	PowerRestoreUnknown  PowerRestorePolicy = 3
)

// String returns a human-readable name for the policy.
func (p PowerRestorePolicy) String() string {
	switch p {
	case PowerRestoreStayOff:
		return "always-off"
	case PowerRestorePrevious:
		return "previous"
	case PowerRestoreAlwaysOn:
		return "always-on"
	default:
		return "unknown"
	}
}

// IdentifyState is the chassis identify indicator state.
type IdentifyState uint8

const (
	IdentifyOff        IdentifyState = 0
	IdentifyTimedOn    IdentifyState = 1
	IdentifyIndefinite IdentifyState = 2
)

// ChassisStatus is the decoded Get Chassis Status response.
type ChassisStatus struct {
	// Current power state.
	PowerOn            bool
	PowerOverload      bool
	Interlock          bool
	PowerFault         bool
	PowerControlFault  bool
	PowerRestorePolicy PowerRestorePolicy

	// Last power event.
	LastACFailed      bool
	LastPowerOverload bool
	LastInterlock     bool
	LastPowerFault    bool
	LastPowerOnByIPMI bool

	// Misc chassis state.
	ChassisIntrusion  bool
	FrontPanelLockout bool
	DriveFault        bool
	CoolingFault      bool
	IdentifySupported bool
	Identify          IdentifyState

	// FrontPanelButtons is the optional front panel button byte.
	FrontPanelButtons    uint8
	HasFrontPanelButtons bool
}

// chassisStatusMinLength is the response length without the optional byte.
const chassisStatusMinLength = 3

func (c *GetChassisStatus) CommandCode() uint8 { return CmdGetChassisStatus }

func (c *GetChassisStatus) NetworkFunction() message.NetworkFunction {
	return message.NetFnChassisRequest
}

func (c *GetChassisStatus) EncodeCommand(seq, sessionID uint32) (*message.Message, error) {
	return encodeRequest(c.Params, c.NetworkFunction(), c.CommandCode(), seq, sessionID, nil)
}

func (c *GetChassisStatus) IsCommandResponse(m *message.Message) bool {
	return isResponse(m, c.NetworkFunction(), c.CommandCode())
}

// DecodeResponse returns a *ChassisStatus.
func (c *GetChassisStatus) DecodeResponse(m *message.Message) (any, error) {
	resp, err := decodeResponse(m, c.NetworkFunction(), c.CommandCode())
	if err != nil {
		return nil, err
	}
	return ParseChassisStatus(resp.Data)
}

// ParseChassisStatus decodes Get Chassis Status response data.
func ParseChassisStatus(raw []byte) (*ChassisStatus, error) {
	if len(raw) < chassisStatusMinLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(raw))
	}

	s := &ChassisStatus{
		PowerOn:            raw[0]&0x01 != 0,
		PowerOverload:      raw[0]&0x02 != 0,
		Interlock:          raw[0]&0x04 != 0,
		PowerFault:         raw[0]&0x08 != 0,
		PowerControlFault:  raw[0]&0x10 != 0,
		PowerRestorePolicy: PowerRestorePolicy((raw[0]>>5)&0x03),

		LastACFailed:      raw[1]&0x01 != 0,
		LastPowerOverload: raw[1]&0x02 != 0,
		LastInterlock:     raw[1]&0x04 != 0,
		LastPowerFault:    raw[1]&0x08 != 0,
		LastPowerOnByIPMI: raw[1]&0x10 != 0,

		ChassisIntrusion:  raw[2]&0x01 != 0,
		FrontPanelLockout: raw[2]&0x02 != 0,
		DriveFault:        raw[2]&0x04 != 0,
		CoolingFault:      raw[2]&0x08 != 0,
		Identify:          IdentifyState((raw[2]>>4)&0x03),
		IdentifySupported: raw[2]&0x40 != 0,
	}
	if len(raw) > chassisStatusMinLength {
		s.FrontPanelButtons = raw[3]
		s.HasFrontPanelButtons = true
	}
	return s, nil
}

// Encode serializes the status into response data.
func (s *ChassisStatus) Encode() []byte {
	raw := make([]byte, chassisStatusMinLength, chassisStatusMinLength+1)
	raw[0] = packBits(s.PowerOn, s.PowerOverload, s.Interlock, s.PowerFault, s.PowerControlFault) |
		uint8(s.PowerRestorePolicy&0x03)<<5
	raw[1] = packBits(s.LastACFailed, s.LastPowerOverload, s.LastInterlock, s.LastPowerFault, s.LastPowerOnByIPMI)
	raw[2] = packBits(s.ChassisIntrusion, s.FrontPanelLockout, s.DriveFault, s.CoolingFault) |
		uint8(s.Identify&0x03)<<4
	if s.IdentifySupported {
		raw[2] |= 0x40
	}
	if s.HasFrontPanelButtons {
		raw = append(raw, s.FrontPanelButtons)
	}
	return raw
}

// packBits sets bit i for every true bits[i].
func packBits(bits ...bool) uint8 {
	var b uint8
	for i, set := range bits {
		if set {
			b |= 1 << i
		}
	}
	return b
}
