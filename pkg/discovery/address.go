package discovery

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
)

// MaxRangeHosts bounds the number of hosts a single CIDR target expands to.
const MaxRangeHosts = 4096

// ExpandTargets turns scan targets into host or host:port strings. A target
// is a host name, an IP address, a host:port pair or a CIDR range. A range
// expands to every host address in it; for IPv4 ranges wider than /31 the
// network and broadcast addresses are left out.
func ExpandTargets(targets []string) ([]string, error) {
	var hosts []string
	for _, target := range targets {
		target = strings.TrimSpace(target)
		if target == "" {
			return nil, ErrInvalidTarget
		}
		if !strings.Contains(target, "/") {
			hosts = append(hosts, target)
			continue
		}

		prefix, err := netip.ParsePrefix(target)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, target)
		}
		expanded, err := expandPrefix(prefix.Masked())
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, target)
		}
		hosts = append(hosts, expanded...)
	}
	return hosts, nil
}

func expandPrefix(prefix netip.Prefix) ([]string, error) {
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits > 12 {
		return nil, ErrRangeTooLarge
	}

	addr := prefix.Addr()
	skipEdges := addr.Is4() && hostBits > 1
	if skipEdges {
		addr = addr.Next()
	}

	hosts := make([]string, 0, 1<<hostBits)
	for ; addr.IsValid() && prefix.Contains(addr); addr = addr.Next() {
		if skipEdges && !prefix.Contains(addr.Next()) {
			break
		}
		hosts = append(hosts, addr.String())
	}
	if len(hosts) > MaxRangeHosts {
		return nil, ErrRangeTooLarge
	}
	return hosts, nil
}

// SortIPsByPreference sorts IP addresses by how likely a console reaches a
// BMC on them. Management networks are mostly IPv4, so at the same scope
// IPv4 comes first. Priority order (highest to lowest):
//  1. Global or private unicast addresses
//  2. IPv6 Unique Local Addresses (fc00::/7)
//  3. Link-Local Addresses
//  4. Loopback and others
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}

	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)

	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})

	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	ip = ip.To16()
	if ip == nil {
		return 99
	}

	v6 := 0
	if ip.To4() == nil {
		v6 = 1
	}

	switch {
	case ip.IsLoopback():
		return 80 + v6
	case ip.IsMulticast():
		return 90 + v6
	case isUniqueLocal(ip):
		return 10
	case ip.IsGlobalUnicast():
		return v6
	case ip.IsLinkLocalUnicast():
		return 20 + v6
	}
	return 50 + v6
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address (ULA).
// ULA range: fc00::/7 (fc00:: to fdff::)
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	if ip == nil {
		return false
	}
	return ip[0] == 0xfc || ip[0] == 0xfd
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
