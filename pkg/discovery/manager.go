package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// ManagerConfig holds configuration for the discovery Manager.
type ManagerConfig struct {
	// BrowseTimeout is the default timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the default timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// MDNSResolver is the mDNS resolver implementation (for testing).
	MDNSResolver MDNSResolver

	// Scanner configures the Presence Ping scanner.
	Scanner ScannerConfig

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager coordinates DNS-SD resolution and Presence Ping scans.
type Manager struct {
	config   ManagerConfig
	resolver *Resolver
	scanner  *Scanner
	log      logging.LeveledLogger

	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new discovery Manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.Scanner.LoggerFactory == nil {
		config.Scanner.LoggerFactory = config.LoggerFactory
	}

	resolver, err := NewResolver(ResolverConfig{
		MDNSResolver:  config.MDNSResolver,
		BrowseTimeout: config.BrowseTimeout,
		LookupTimeout: config.LookupTimeout,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:   config,
		resolver: resolver,
		scanner:  NewScanner(config.Scanner),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("ipmi-discovery")
	}
	return m, nil
}

// Close marks the manager closed. Further operations return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

func (m *Manager) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Browse discovers services of serviceType on the network.
func (m *Manager) Browse(ctx context.Context, serviceType ServiceType) (<-chan ResolvedService, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.resolver.Browse(ctx, serviceType)
}

// Lookup looks up a specific service instance.
func (m *Manager) Lookup(ctx context.Context, serviceType ServiceType, instanceName string) (*ResolvedService, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.resolver.Lookup(ctx, serviceType, instanceName)
}

// Scan pings targets; see Scanner.Scan.
func (m *Manager) Scan(ctx context.Context, targets []string) ([]Host, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.scanner.Scan(ctx, targets)
}

// Discover browses every BMC service type, then pings each announced
// address so only hosts that answer RMCP are returned. A host announcing
// several services is returned once, with the first announcement seen.
func (m *Manager) Discover(ctx context.Context) ([]Host, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		targets  []string
		services = make(map[string]*ResolvedService)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, serviceType := range ServiceTypes {
		g.Go(func() error {
			found, err := m.resolver.Browse(gctx, serviceType)
			if err != nil {
				return err
			}
			for svc := range found {
				target := svc.Target()
				mu.Lock()
				if _, dup := services[target]; !dup {
					services[target] = &svc
					targets = append(targets, target)
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if m.log != nil {
		m.log.Debugf("%d BMC services announced", len(targets))
	}
	if len(targets) == 0 {
		return nil, nil
	}

	hosts, err := m.scanner.Scan(ctx, targets)
	if err != nil {
		return nil, err
	}
	for i := range hosts {
		hosts[i].Service = services[hosts[i].Addr.String()]
	}
	return hosts, nil
}

// Resolver returns the underlying Resolver for advanced usage.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Scanner returns the underlying Scanner for advanced usage.
func (m *Manager) Scanner() *Scanner {
	return m.scanner
}
