// Package message implements the IPMI-over-LAN wire format: the RMCP
// envelope, the IPMI v1.5 and v2.0 (RMCP+) session headers, the v2.0
// integrity trailer, and the IPMI LAN request/response frames carried as
// session payload.
//
// The package provides:
//   - RMCP header encoding/decoding (ASF 2.0 Section 3.2.2)
//   - IPMI v1.5 and v2.0 session framing (IPMI v2.0 Section 13.6, 13.8)
//   - Payload encryption and integrity trailers via pkg/security
//   - IPMI LAN message framing with checksums (IPMI v2.0 Section 13.8)
//   - Completion codes and the inbound sequence number window
package message

import "fmt"

// Version is the IPMI session format of a message.
type Version uint8

const (
	// V15 is the IPMI v1.5 session format.
	V15 Version = iota
	// V20 is the IPMI v2.0 (RMCP+) session format.
	V20
)

// String returns "1.5" or "2.0".
func (v Version) String() string {
	switch v {
	case V15:
		return "1.5"
	case V20:
		return "2.0"
	default:
		return fmt.Sprintf("Version(%d)", uint8(v))
	}
}

// RMCPClass is the class of an RMCP message (ASF 2.0 Table 13).
type RMCPClass uint8

const (
	// RMCPClassASF carries ASF messages such as Presence Ping.
	RMCPClassASF RMCPClass = 0x06
	// RMCPClassIPMI carries IPMI session messages.
	RMCPClassIPMI RMCPClass = 0x07
	// RMCPClassOEM carries OEM-defined messages.
	RMCPClassOEM RMCPClass = 0x08

	// rmcpClassAck marks an RMCP ACK; it is never sent by this package.
	rmcpClassAck RMCPClass = 0x80
)

// String returns a human-readable name for the class.
func (c RMCPClass) String() string {
	switch c {
	case RMCPClassASF:
		return "ASF"
	case RMCPClassIPMI:
		return "IPMI"
	case RMCPClassOEM:
		return "OEM"
	default:
		return fmt.Sprintf("RMCPClass(0x%02x)", uint8(c))
	}
}

// IsValid returns true if the class is one of the defined values.
func (c RMCPClass) IsValid() bool {
	return c == RMCPClassASF || c == RMCPClassIPMI || c == RMCPClassOEM
}

// AuthType is the session authentication type (IPMI v2.0 Section 13.6).
type AuthType uint8

const (
	AuthTypeNone     AuthType = 0x00
	AuthTypeMD2      AuthType = 0x01
	AuthTypeMD5      AuthType = 0x02
	AuthTypeStraight AuthType = 0x04
	AuthTypeOEM      AuthType = 0x05
	// AuthTypeRMCPPlus selects the IPMI v2.0 session format.
	AuthTypeRMCPPlus AuthType = 0x06
)

// String returns a human-readable name for the auth type.
func (a AuthType) String() string {
	switch a {
	case AuthTypeNone:
		return "None"
	case AuthTypeMD2:
		return "MD2"
	case AuthTypeMD5:
		return "MD5"
	case AuthTypeStraight:
		return "Straight"
	case AuthTypeOEM:
		return "OEM"
	case AuthTypeRMCPPlus:
		return "RMCP+"
	default:
		return fmt.Sprintf("AuthType(0x%02x)", uint8(a))
	}
}

// IsValid returns true if the auth type is a defined value.
func (a AuthType) IsValid() bool {
	switch a {
	case AuthTypeNone, AuthTypeMD2, AuthTypeMD5, AuthTypeStraight, AuthTypeOEM, AuthTypeRMCPPlus:
		return true
	}
	return false
}

// PayloadType identifies the payload of an IPMI v2.0 message
// (IPMI v2.0 Table 13-16). Only the low 6 bits are the type; the encrypted
// and authenticated flags are kept separately on Message.
type PayloadType uint8

const (
	PayloadTypeIPMI                PayloadType = 0x00
	PayloadTypeSOL                 PayloadType = 0x01
	PayloadTypeOEM                 PayloadType = 0x02
	PayloadTypeOpenSessionRequest  PayloadType = 0x10
	PayloadTypeOpenSessionResponse PayloadType = 0x11
	PayloadTypeRAKP1               PayloadType = 0x12
	PayloadTypeRAKP2               PayloadType = 0x13
	PayloadTypeRAKP3               PayloadType = 0x14
	PayloadTypeRAKP4               PayloadType = 0x15
)

// Payload type byte flags.
const (
	payloadTypeMask          uint8 = 0x3F
	payloadFlagEncrypted     uint8 = 0x80
	payloadFlagAuthenticated uint8 = 0x40
)

// String returns a human-readable name for the payload type.
func (p PayloadType) String() string {
	switch p {
	case PayloadTypeIPMI:
		return "IPMI"
	case PayloadTypeSOL:
		return "SOL"
	case PayloadTypeOEM:
		return "OEM"
	case PayloadTypeOpenSessionRequest:
		return "OpenSessionRequest"
	case PayloadTypeOpenSessionResponse:
		return "OpenSessionResponse"
	case PayloadTypeRAKP1:
		return "RAKP1"
	case PayloadTypeRAKP2:
		return "RAKP2"
	case PayloadTypeRAKP3:
		return "RAKP3"
	case PayloadTypeRAKP4:
		return "RAKP4"
	default:
		return fmt.Sprintf("PayloadType(0x%02x)", uint8(p))
	}
}

// NetworkFunction is the IPMI network function code (IPMI v2.0 Table 5-1).
// Even values are requests; the matching response is the next odd value.
type NetworkFunction uint8

const (
	NetFnChassisRequest        NetworkFunction = 0x00
	NetFnChassisResponse       NetworkFunction = 0x01
	NetFnBridgeRequest         NetworkFunction = 0x02
	NetFnBridgeResponse        NetworkFunction = 0x03
	NetFnSensorRequest         NetworkFunction = 0x04
	NetFnSensorResponse        NetworkFunction = 0x05
	NetFnAppRequest            NetworkFunction = 0x06
	NetFnAppResponse           NetworkFunction = 0x07
	NetFnFirmwareRequest       NetworkFunction = 0x08
	NetFnFirmwareResponse      NetworkFunction = 0x09
	NetFnStorageRequest        NetworkFunction = 0x0A
	NetFnStorageResponse       NetworkFunction = 0x0B
	NetFnTransportRequest      NetworkFunction = 0x0C
	NetFnTransportResponse     NetworkFunction = 0x0D
	NetFnGroupExtensionRequest NetworkFunction = 0x2C
	NetFnOEMGroupRequest       NetworkFunction = 0x2E
)

// IsResponse reports whether n is a response network function.
func (n NetworkFunction) IsResponse() bool {
	return n&0x01 != 0
}

// Response returns the response network function matching request n.
func (n NetworkFunction) Response() NetworkFunction {
	return n | 0x01
}

// String returns a human-readable name for the network function.
func (n NetworkFunction) String() string {
	names := map[NetworkFunction]string{
		NetFnChassisRequest:        "Chassis",
		NetFnBridgeRequest:         "Bridge",
		NetFnSensorRequest:         "Sensor/Event",
		NetFnAppRequest:            "App",
		NetFnFirmwareRequest:       "Firmware",
		NetFnStorageRequest:        "Storage",
		NetFnTransportRequest:      "Transport",
		NetFnGroupExtensionRequest: "Group Extension",
		NetFnOEMGroupRequest:       "OEM/Group",
	}
	name, ok := names[n&^0x01]
	if !ok {
		return fmt.Sprintf("NetworkFunction(0x%02x)", uint8(n))
	}
	if n.IsResponse() {
		return name + " Response"
	}
	return name + " Request"
}
