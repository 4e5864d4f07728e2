package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/pion/logging"
)

// Manager shares one UDP socket between several consumers. Every received
// datagram is offered to every registered handler; each handler filters by
// sender and session itself. This lets many connections to different BMCs
// use a single local port.
type Manager struct {
	udp *UDP
	log logging.LeveledLogger

	handlersMu sync.RWMutex
	handlers   map[uint64]MessageHandler
	nextID     uint64

	mu      sync.RWMutex
	started bool
	closed  bool
}

// ManagerConfig configures the transport manager.
type ManagerConfig struct {
	// ListenAddr is the local address to bind (default ":0").
	ListenAddr string

	// Conn is an optional pre-existing PacketConn, e.g. a pipe in tests.
	Conn net.PacketConn

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewManager creates a new transport manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	m := &Manager{
		handlers: make(map[uint64]MessageHandler),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("ipmi-transport")
	}

	udp, err := NewUDP(UDPConfig{
		Conn:           config.Conn,
		ListenAddr:     config.ListenAddr,
		MessageHandler: m.dispatch,
		LoggerFactory:  config.LoggerFactory,
	})
	if err != nil {
		return nil, fmt.Errorf("creating UDP transport: %w", err)
	}
	m.udp = udp

	return m, nil
}

// AddHandler registers h and returns an id for RemoveHandler.
func (m *Manager) AddHandler(h MessageHandler) (uint64, error) {
	if h == nil {
		return 0, ErrNoHandler
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.nextID++
	m.handlers[m.nextID] = h
	return m.nextID, nil
}

// RemoveHandler unregisters the handler with the given id.
func (m *Manager) RemoveHandler(id uint64) error {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	if _, ok := m.handlers[id]; !ok {
		return ErrHandlerNotFound
	}
	delete(m.handlers, id)
	return nil
}

// Handlers returns the number of registered handlers.
func (m *Manager) Handlers() int {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()
	return len(m.handlers)
}

// Start begins reading from the socket.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if err := m.udp.Start(); err != nil {
		return fmt.Errorf("starting UDP transport: %w", err)
	}
	return nil
}

// Stop closes the socket. Registered handlers are dropped.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.mu.Unlock()

	err := m.udp.Stop()

	m.handlersMu.Lock()
	clear(m.handlers)
	m.handlersMu.Unlock()

	if err != nil && err != ErrClosed {
		return fmt.Errorf("stopping UDP: %w", err)
	}
	return nil
}

// Send writes one datagram to addr.
func (m *Manager) Send(data []byte, addr net.Addr) error {
	m.mu.RLock()
	started, closed := m.started, m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return ErrNotStarted
	}
	return m.udp.Send(data, addr)
}

// LocalAddr returns the bound local address.
func (m *Manager) LocalAddr() net.Addr {
	return m.udp.LocalAddr()
}

// UDP returns the underlying UDP transport.
func (m *Manager) UDP() *UDP {
	return m.udp
}

func (m *Manager) dispatch(msg *ReceivedMessage) {
	m.handlersMu.RLock()
	snapshot := make([]MessageHandler, 0, len(m.handlers))
	for _, h := range m.handlers {
		snapshot = append(snapshot, h)
	}
	m.handlersMu.RUnlock()

	if len(snapshot) == 0 {
		if m.log != nil {
			m.log.Debugf("no handler for %d bytes from %v", len(msg.Data), msg.PeerAddr)
		}
		return
	}
	for _, h := range snapshot {
		h(msg)
	}
}
