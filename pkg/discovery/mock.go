package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
)

// MockMDNSResolver answers Browse and Lookup from announcements made in
// the test instead of the network. An instance announced twice is
// reported twice, as a BMC answering on two interfaces would be.
type MockMDNSResolver struct {
	mu      sync.Mutex
	entries []*zeroconf.ServiceEntry
}

// NewMockMDNSResolver returns a resolver with nothing announced.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{}
}

// Announce publishes instance of service at ip and port with the given TXT
// strings.
func (m *MockMDNSResolver) Announce(service, instance string, ip net.IP, port int, txt ...string) {
	entry := zeroconf.NewServiceEntry(instance, service, DefaultDomain)
	entry.HostName = instance + ".local."
	entry.Port = port
	entry.Text = txt
	if ip.To4() != nil {
		entry.AddrIPv4 = []net.IP{ip}
	} else {
		entry.AddrIPv6 = []net.IP{ip}
	}

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

func (m *MockMDNSResolver) matching(service, instance string) []*zeroconf.ServiceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*zeroconf.ServiceEntry
	for _, e := range m.entries {
		if e.Service == service && (instance == "" || e.Instance == instance) {
			out = append(out, e)
		}
	}
	return out
}

func send(ctx context.Context, entries []*zeroconf.ServiceEntry, ch chan<- *zeroconf.ServiceEntry) error {
	for _, e := range entries {
		select {
		case ch <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Browse implements MDNSResolver. It returns once every matching entry
// has been sent.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	return send(ctx, m.matching(service, ""), entries)
}

// Lookup implements MDNSResolver.
func (m *MockMDNSResolver) Lookup(ctx context.Context, instance, service, _ string, entries chan<- *zeroconf.ServiceEntry) error {
	found := m.matching(service, instance)
	if len(found) > 1 {
		found = found[:1]
	}
	return send(ctx, found, entries)
}
