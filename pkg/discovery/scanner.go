package discovery

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"

	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/transport"
)

// DefaultConcurrency is the default number of hosts pinged at once.
const DefaultConcurrency = 32

// Host is a host that answered a Presence Ping.
type Host struct {
	// Addr is the pinged address.
	Addr *net.UDPAddr

	// Pong is the answer.
	Pong *message.PresencePong

	// RTT is the time between ping and pong.
	RTT time.Duration

	// Service is the DNS-SD announcement the host was found through, nil
	// for scanned targets.
	Service *ResolvedService
}

// SupportsIPMI reports whether the host announced IPMI support.
func (h *Host) SupportsIPMI() bool {
	return h.Pong != nil && h.Pong.IPMI
}

// ScannerConfig holds configuration for the Scanner.
type ScannerConfig struct {
	// Timeout bounds the wait for each host's pong.
	// If zero, DefaultPingTimeout is used.
	Timeout time.Duration

	// Concurrency is the number of hosts pinged at once.
	// If zero, DefaultConcurrency is used.
	Concurrency int

	// ListenPacket opens the socket for one ping.
	// If nil, an ephemeral UDP socket is opened.
	ListenPacket func() (net.PacketConn, error)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Scanner pings many hosts concurrently.
type Scanner struct {
	config ScannerConfig
	log    logging.LeveledLogger
}

// NewScanner creates a new Scanner with the given configuration.
func NewScanner(config ScannerConfig) *Scanner {
	if config.Timeout == 0 {
		config.Timeout = DefaultPingTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.ListenPacket == nil {
		config.ListenPacket = func() (net.PacketConn, error) {
			return net.ListenPacket("udp", ":0")
		}
	}

	s := &Scanner{config: config}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("ipmi-discovery")
	}
	return s
}

// Scan pings every target and returns the hosts that answered, ordered by
// address. Targets are expanded by ExpandTargets; hosts without a port are
// pinged on transport.DefaultPort. Unresolvable targets fail the scan before
// anything is sent. Hosts that do not answer are left out.
func (s *Scanner) Scan(ctx context.Context, targets []string) ([]Host, error) {
	names, err := ExpandTargets(targets)
	if err != nil {
		return nil, err
	}
	addrs := make([]*net.UDPAddr, 0, len(names))
	for _, name := range names {
		addr, err := transport.ResolveBMCAddr(name)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	var (
		mu    sync.Mutex
		hosts []Host
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i, addr := range addrs {
		tag := uint8(i)
		g.Go(func() error {
			host, err := s.probe(ctx, addr, tag)
			switch {
			case err == nil:
				mu.Lock()
				hosts = append(hosts, *host)
				mu.Unlock()
				return nil
			case errors.Is(err, ErrTimeout):
				if s.log != nil {
					s.log.Tracef("no answer from %v", addr)
				}
				return nil
			case ctx.Err() != nil:
				return ctx.Err()
			}
			if s.log != nil {
				s.log.Debugf("pinging %v: %v", addr, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(hosts, func(a, b Host) int {
		if c := bytes.Compare(a.Addr.IP.To16(), b.Addr.IP.To16()); c != 0 {
			return c
		}
		return cmp.Compare(a.Addr.Port, b.Addr.Port)
	})
	return hosts, nil
}

func (s *Scanner) probe(ctx context.Context, addr *net.UDPAddr, tag uint8) (*Host, error) {
	conn, err := s.config.ListenPacket()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	pong, err := Ping(ctx, conn, addr, tag)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return &Host{Addr: addr, Pong: pong, RTT: time.Since(start)}, nil
}
