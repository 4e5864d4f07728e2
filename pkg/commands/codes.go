package commands

import "fmt"

// IPMI command codes used by this package and the common upper-layer
// commands, for naming in logs.
const (
	CmdGetChassisStatus                     uint8 = 0x01
	CmdChassisControl                       uint8 = 0x02
	CmdGetFRUInventoryAreaInfo              uint8 = 0x10
	CmdReadFRUData                          uint8 = 0x11
	CmdGetSDRRepositoryInfo                 uint8 = 0x20
	CmdGetDeviceSDRInfo                     uint8 = 0x21
	CmdReserveSDRRepository                 uint8 = 0x22
	CmdGetSDR                               uint8 = 0x23
	CmdGetChannelAuthenticationCapabilities uint8 = 0x38
	CmdSetSessionPrivilegeLevel             uint8 = 0x3B
	CmdCloseSession                         uint8 = 0x3C
	CmdGetSELInfo                           uint8 = 0x40
	CmdReserveSEL                           uint8 = 0x42
	CmdGetSELEntry                          uint8 = 0x43
	CmdGetChannelCipherSuites               uint8 = 0x54
)

var commandNames = map[uint8]string{
	CmdGetChassisStatus:                     "Get Chassis Status",
	CmdChassisControl:                       "Chassis Control",
	CmdGetFRUInventoryAreaInfo:              "Get FRU Inventory Area Info",
	CmdReadFRUData:                          "Read FRU Data",
	CmdGetSDRRepositoryInfo:                 "Get SDR Repository Info",
	CmdGetDeviceSDRInfo:                     "Get Device SDR Info",
	CmdReserveSDRRepository:                 "Reserve SDR Repository",
	CmdGetSDR:                               "Get SDR",
	CmdGetChannelAuthenticationCapabilities: "Get Channel Authentication Capabilities",
	CmdSetSessionPrivilegeLevel:             "Set Session Privilege Level",
	CmdCloseSession:                         "Close Session",
	CmdGetSELInfo:                           "Get SEL Info",
	CmdReserveSEL:                           "Reserve SEL",
	CmdGetSELEntry:                          "Get SEL Entry",
	CmdGetChannelCipherSuites:               "Get Channel Cipher Suites",
}

// CommandName returns the name of an IPMI command code. Codes are only
// unique per network function; the table covers the codes used here.
func CommandName(code uint8) string {
	if name, ok := commandNames[code]; ok {
		return name
	}
	return fmt.Sprintf("command 0x%02x", code)
}
