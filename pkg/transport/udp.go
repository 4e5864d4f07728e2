package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
)

// DefaultPort is the RMCP port a BMC listens on.
const DefaultPort = 623

// MaxDatagramSize bounds a single RMCP datagram. IPMI LAN messages stay
// well below one Ethernet MTU.
const MaxDatagramSize = 1500

// UDPConfig configures the UDP transport.
type UDPConfig struct {
	// Conn is an optional pre-existing PacketConn, e.g. one end of a Pipe.
	// If nil, a socket is bound to ListenAddr.
	Conn net.PacketConn

	// ListenAddr is the local address to bind. Default: ":0".
	ListenAddr string

	// ReadBuffer sets the socket receive buffer in bytes when Conn is a
	// *net.UDPConn. Zero keeps the system default. Raise it when many BMCs
	// answer at once, as during a scan.
	ReadBuffer int

	// MessageHandler receives every RMCP datagram. Required.
	MessageHandler MessageHandler

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// UDPStats counts datagrams of a UDP transport.
type UDPStats struct {
	Sent      uint64
	Received  uint64
	Discarded uint64
}

type udpState int

const (
	udpIdle udpState = iota
	udpRunning
	udpStopped
)

// UDP reads RMCP datagrams from a net.PacketConn on its own goroutine and
// hands them to a MessageHandler. Datagrams that do not start with an RMCP
// header are counted and discarded.
type UDP struct {
	conn    net.PacketConn
	handler MessageHandler
	log     logging.LeveledLogger

	mu    sync.Mutex
	state udpState
	done  chan struct{}

	sent, received, discarded atomic.Uint64
}

// NewUDP binds or adopts the socket. The read loop starts with Start.
func NewUDP(config UDPConfig) (*UDP, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}

	conn := config.Conn
	if conn == nil {
		addr := config.ListenAddr
		if addr == "" {
			addr = ":0"
		}
		c, err := net.ListenPacket("udp", addr)
		if err != nil {
			return nil, err
		}
		conn = c
	}

	u := &UDP{
		conn:    conn,
		handler: config.MessageHandler,
		done:    make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("ipmi-udp")
	}

	if uc, ok := conn.(*net.UDPConn); ok && config.ReadBuffer > 0 {
		if err := uc.SetReadBuffer(config.ReadBuffer); err != nil && u.log != nil {
			u.log.Warnf("setting read buffer to %d: %v", config.ReadBuffer, err)
		}
	}
	return u, nil
}

// Start launches the read loop.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch u.state {
	case udpRunning:
		return ErrAlreadyStarted
	case udpStopped:
		return ErrClosed
	}
	u.state = udpRunning

	if u.log != nil {
		u.log.Debugf("reading RMCP on %s", u.conn.LocalAddr())
	}
	go u.readLoop()
	return nil
}

// Stop closes the socket and waits for the read loop to exit. A transport
// that never started is closed as well.
func (u *UDP) Stop() error {
	u.mu.Lock()
	prev := u.state
	if prev == udpStopped {
		u.mu.Unlock()
		return ErrClosed
	}
	u.state = udpStopped
	u.mu.Unlock()

	// Unblock a pending ReadFrom before closing.
	u.conn.SetReadDeadline(time.Now())
	err := u.conn.Close()
	if prev == udpRunning {
		<-u.done
	}
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

// Send writes one datagram to addr.
func (u *UDP) Send(data []byte, addr net.Addr) error {
	switch {
	case u.stopped():
		return ErrClosed
	case addr == nil:
		return ErrInvalidAddress
	case len(data) > MaxDatagramSize:
		return ErrMessageTooLarge
	}

	if _, err := u.conn.WriteTo(data, addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		if u.log != nil {
			u.log.Warnf("send to %v: %v", addr, err)
		}
		return err
	}
	u.sent.Add(1)
	if u.log != nil {
		u.log.Tracef("sent %d bytes to %v", len(data), addr)
	}
	return nil
}

// LocalAddr returns the bound local address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Stats returns the datagram counters.
func (u *UDP) Stats() UDPStats {
	return UDPStats{
		Sent:      u.sent.Load(),
		Received:  u.received.Load(),
		Discarded: u.discarded.Load(),
	}
}

func (u *UDP) stopped() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state == udpStopped
}

func (u *UDP) readLoop() {
	defer close(u.done)

	buf := make([]byte, MaxDatagramSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if u.stopped() {
				return
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				if u.log != nil {
					u.log.Warnf("socket closed underneath: %v", err)
				}
				return
			}
			if u.log != nil {
				u.log.Debugf("read: %v", err)
			}
			continue
		}

		if !isRMCP(buf[:n]) {
			u.discarded.Add(1)
			if u.log != nil {
				u.log.Tracef("discarding %d non-RMCP bytes from %v", n, addr)
			}
			continue
		}
		u.received.Add(1)

		data := make([]byte, n)
		copy(data, buf[:n])
		u.handler(&ReceivedMessage{Data: data, PeerAddr: addr})
	}
}
