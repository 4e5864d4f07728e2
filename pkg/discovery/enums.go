// Package discovery finds BMCs on the network.
//
// This package provides:
//   - DNS-SD browsing for BMCs announcing _asf-rmcp._udp or _ipmi._udp
//   - RMCP/ASF Presence Ping to check that a host answers RMCP and supports IPMI
//   - A concurrent scanner that pings hosts, host:port pairs and CIDR ranges
package discovery

// ServiceType identifies the type of DNS-SD service.
type ServiceType int

// ServiceType constants.
const (
	// ServiceTypeUnknown represents an unknown or invalid service type.
	ServiceTypeUnknown ServiceType = iota

	// ServiceTypeASFRMCP is announced by management controllers speaking
	// RMCP. Service type: _asf-rmcp._udp
	ServiceTypeASFRMCP

	// ServiceTypeIPMI is announced by some BMCs for IPMI over LAN.
	// Service type: _ipmi._udp
	ServiceTypeIPMI
)

// DNS-SD service type strings.
const (
	// ServiceASFRMCP is the DNS-SD service type for RMCP responders.
	ServiceASFRMCP = "_asf-rmcp._udp"

	// ServiceIPMI is the DNS-SD service type for IPMI over LAN.
	ServiceIPMI = "_ipmi._udp"

	// DefaultDomain is the default mDNS domain.
	DefaultDomain = "local."
)

// ServiceTypes lists every browsable service type.
var ServiceTypes = []ServiceType{ServiceTypeASFRMCP, ServiceTypeIPMI}

// String returns a human-readable string for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceTypeASFRMCP:
		return "ASF-RMCP"
	case ServiceTypeIPMI:
		return "IPMI"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the service type is valid.
func (s ServiceType) IsValid() bool {
	return s == ServiceTypeASFRMCP || s == ServiceTypeIPMI
}

// ServiceString returns the DNS-SD service type string.
func (s ServiceType) ServiceString() string {
	switch s {
	case ServiceTypeASFRMCP:
		return ServiceASFRMCP
	case ServiceTypeIPMI:
		return ServiceIPMI
	default:
		return ""
	}
}
