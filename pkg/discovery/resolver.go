package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/transport"
)

const (
	// DefaultBrowseTimeout bounds a Browse whose context has no deadline.
	DefaultBrowseTimeout = 5 * time.Second

	// DefaultLookupTimeout bounds a Lookup whose context has no deadline.
	DefaultLookupTimeout = 3 * time.Second
)

// ResolvedService is a BMC found through DNS-SD.
type ResolvedService struct {
	ServiceType  ServiceType
	InstanceName string
	HostName     string
	// Port is the advertised RMCP port; zero means DefaultPort.
	Port int
	// IPs are sorted by preference, see SortIPsByPreference.
	IPs  []net.IP
	Text map[string]string
}

// PreferredIP returns the first address, or nil without addresses.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) == 0 {
		return nil
	}
	return r.IPs[0]
}

// Target returns the host:port to dial. It falls back to the host name
// without addresses and to transport.DefaultPort without a port.
func (r *ResolvedService) Target() string {
	port := r.Port
	if port == 0 {
		port = transport.DefaultPort
	}
	host := r.HostName
	if ip := r.PreferredIP(); ip != nil {
		host = ip.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// MDNSResolver is the DNS-SD query surface of zeroconf.Resolver. Both
// methods close nothing; the Resolver owns the entries channel.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// MDNSResolver answers the queries. Default: a zeroconf.Resolver on
	// all multicast interfaces.
	MDNSResolver MDNSResolver

	BrowseTimeout time.Duration
	LookupTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver finds BMCs announcing _ipmi._udp or _asf-rmcp._udp.
type Resolver struct {
	mdns          MDNSResolver
	browseTimeout time.Duration
	lookupTimeout time.Duration
	log           logging.LeveledLogger
}

// NewResolver creates a Resolver.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	r := &Resolver{
		mdns:          config.MDNSResolver,
		browseTimeout: config.BrowseTimeout,
		lookupTimeout: config.LookupTimeout,
	}
	if r.mdns == nil {
		zr, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		r.mdns = zr
	}
	if r.browseTimeout <= 0 {
		r.browseTimeout = DefaultBrowseTimeout
	}
	if r.lookupTimeout <= 0 {
		r.lookupTimeout = DefaultLookupTimeout
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("ipmi-discovery")
	}
	return r, nil
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Browse streams the BMCs announcing serviceType until ctx ends or the
// browse timeout expires, then closes the channel. Each instance is
// reported once even when it answers on several interfaces.
func (r *Resolver) Browse(ctx context.Context, serviceType ServiceType) (<-chan ResolvedService, error) {
	service := serviceType.ServiceString()
	if service == "" {
		return nil, ErrInvalidServiceType
	}

	ctx, cancel := withDefaultTimeout(ctx, r.browseTimeout)
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan ResolvedService)

	go func() {
		defer close(entries)
		if err := r.mdns.Browse(ctx, service, DefaultDomain, entries); err != nil && r.log != nil {
			r.log.Debugf("browsing %s: %v", service, err)
		}
	}()

	go func() {
		defer close(results)
		defer cancel()
		seen := make(map[string]bool)
		for entry := range entries {
			if entry == nil || seen[entry.Instance] {
				continue
			}
			seen[entry.Instance] = true
			select {
			case results <- resolved(entry, serviceType):
			case <-ctx.Done():
				// The browser returns once ctx is done; drain until it does.
				for range entries {
				}
				return
			}
		}
	}()
	return results, nil
}

// Lookup resolves one instance of serviceType by name.
func (r *Resolver) Lookup(ctx context.Context, serviceType ServiceType, instanceName string) (*ResolvedService, error) {
	service := serviceType.ServiceString()
	if service == "" {
		return nil, ErrInvalidServiceType
	}

	ctx, cancel := withDefaultTimeout(ctx, r.lookupTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 1)
	go func() {
		defer close(entries)
		if err := r.mdns.Lookup(ctx, instanceName, service, DefaultDomain, entries); err != nil && r.log != nil {
			r.log.Debugf("looking up %s.%s: %v", instanceName, service, err)
		}
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc := resolved(entry, serviceType)
		return &svc, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func resolved(entry *zeroconf.ServiceEntry, serviceType ServiceType) ResolvedService {
	ips := make([]net.IP, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	return ResolvedService{
		ServiceType:  serviceType,
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(ips),
		Text:         ParseTXT(entry.Text),
	}
}
