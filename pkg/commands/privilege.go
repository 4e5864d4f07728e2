package commands

import (
	"fmt"
	"strings"
)

// PrivilegeLevel is an IPMI channel privilege level (IPMI v2.0 Section 6.8).
type PrivilegeLevel uint8

const (
	// PrivilegeMaximumAvailable requests the highest level the user is
	// allowed. It is only valid in session activation requests.
	PrivilegeMaximumAvailable PrivilegeLevel = 0x00
	PrivilegeCallback         PrivilegeLevel = 0x01
	PrivilegeUser             PrivilegeLevel = 0x02
	PrivilegeOperator         PrivilegeLevel = 0x03
	PrivilegeAdministrator    PrivilegeLevel = 0x04
	PrivilegeOEM              PrivilegeLevel = 0x05
)

// String returns a human-readable name for the privilege level.
func (p PrivilegeLevel) String() string {
	switch p {
	case PrivilegeMaximumAvailable:
		return "MaximumAvailable"
	case PrivilegeCallback:
		return "Callback"
	case PrivilegeUser:
		return "User"
	case PrivilegeOperator:
		return "Operator"
	case PrivilegeAdministrator:
		return "Administrator"
	case PrivilegeOEM:
		return "OEM"
	default:
		return fmt.Sprintf("PrivilegeLevel(%d)", uint8(p))
	}
}

// IsValid returns true if the privilege level is a defined value.
func (p PrivilegeLevel) IsValid() bool {
	return p <= PrivilegeOEM
}

// ParsePrivilegeLevel parses a case-insensitive privilege name such as
// "administrator", "admin" or "user".
func ParsePrivilegeLevel(s string) (PrivilegeLevel, error) {
	if strings.EqualFold(s, "admin") {
		return PrivilegeAdministrator, nil
	}
	for p := PrivilegeMaximumAvailable; p <= PrivilegeOEM; p++ {
		if strings.EqualFold(p.String(), s) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPrivilege, s)
}
