package transport

import (
	"net"
	"strconv"
	"strings"
)

// ResolveBMCAddr resolves host to a UDP address. A host without a port gets
// DefaultPort.
func ResolveBMCAddr(host string) (*net.UDPAddr, error) {
	if host == "" {
		return nil, ErrInvalidAddress
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(DefaultPort))
	}
	addr, err := net.ResolveUDPAddr("udp", host)
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// SameAddr reports whether from is remote. A nil remote matches every
// sender; a nil from matches nothing else.
func SameAddr(remote, from net.Addr) bool {
	if remote == nil {
		return true
	}
	if from == nil {
		return false
	}
	if r, ok := remote.(*net.UDPAddr); ok {
		if f, ok := from.(*net.UDPAddr); ok {
			return r.Port == f.Port && r.IP.Equal(f.IP)
		}
	}
	return remote.Network() == from.Network() && remote.String() == from.String()
}
