package transport

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/transport/v3/test"
)

// Direction names the way a datagram travels through a Pipe.
type Direction int

const (
	// ToBMC is console to BMC.
	ToBMC Direction = iota
	// ToConsole is BMC to console.
	ToConsole
)

func (d Direction) String() string {
	if d == ToBMC {
		return "to-bmc"
	}
	return "to-console"
}

// Filter decides whether a datagram written to a Pipe is delivered. It runs
// on the writer's goroutine before any NetworkCondition is applied.
type Filter func(dir Direction, datagram []byte) bool

// NetworkCondition adds random loss, delay and duplication to a Pipe. It
// applies to both directions and is evaluated per datagram on write.
type NetworkCondition struct {
	// DropRate is the probability of dropping a datagram (0.0 - 1.0).
	DropRate float64

	// DelayMin and DelayMax bound a uniform delivery delay. Zero DelayMax
	// delivers immediately.
	DelayMin time.Duration
	DelayMax time.Duration

	// DuplicateRate is the probability of delivering a datagram twice.
	DuplicateRate float64
}

// PipeConfig configures a Pipe. The zero value delivers datagrams from a
// background goroutine every millisecond with a time-based seed.
type PipeConfig struct {
	// Manual disables background delivery. Datagrams then move only on
	// Tick or Process.
	Manual bool

	// Interval is the background delivery period. Default: 1ms.
	Interval time.Duration

	// Seed seeds the NetworkCondition RNG. Zero seeds from the clock.
	Seed int64

	// Condition is the initial network condition.
	Condition NetworkCondition

	// Filter, if set, is consulted for every datagram.
	Filter Filter
}

// PipeStats counts datagrams written to a Pipe.
type PipeStats struct {
	Written    uint64
	Filtered   uint64
	Dropped    uint64
	Delayed    uint64
	Duplicated uint64
}

// Pipe is an in-memory datagram link between a console and a BMC built on
// pion's test.Bridge. It lets tests run the full RMCP+ stack without
// sockets and inject loss at exact points of a handshake.
type Pipe struct {
	bridge *test.Bridge

	mu        sync.RWMutex
	condition NetworkCondition
	filter    Filter
	closed    bool

	rngMu sync.Mutex
	rng   *rand.Rand

	stop chan struct{}
	done chan struct{}

	written, filtered, dropped, delayed, duplicated atomic.Uint64
}

// NewPipe creates a pipe.
func NewPipe(config PipeConfig) *Pipe {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Pipe{
		bridge:    test.NewBridge(),
		condition: config.Condition,
		filter:    config.Filter,
		rng:       rand.New(rand.NewSource(seed)),
	}
	if !config.Manual {
		interval := config.Interval
		if interval <= 0 {
			interval = time.Millisecond
		}
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.deliver(interval)
	}
	return p
}

func (p *Pipe) deliver(interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			for p.bridge.Tick() > 0 {
			}
		}
	}
}

// SetCondition replaces the network condition.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	p.condition = cond
	p.mu.Unlock()
}

// Condition returns the current network condition.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// SetFilter replaces the filter. A nil filter delivers everything.
func (p *Pipe) SetFilter(f Filter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

// Stats returns the datagram counters.
func (p *Pipe) Stats() PipeStats {
	return PipeStats{
		Written:    p.written.Load(),
		Filtered:   p.filtered.Load(),
		Dropped:    p.dropped.Load(),
		Delayed:    p.delayed.Load(),
		Duplicated: p.duplicated.Load(),
	}
}

// Tick delivers at most one queued datagram in each direction and returns
// how many were delivered.
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers every queued datagram.
func (p *Pipe) Process() int {
	total := 0
	for n := p.Tick(); n > 0; n = p.Tick() {
		total += n
	}
	return total
}

// Close stops delivery and closes both ends. Readers blocked on either end
// return io.EOF. Queued and delayed datagrams are lost.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.stop != nil {
		close(p.stop)
		<-p.done
	}

	// The only error is an end its user closed already.
	p.bridge.GetConn0().Close()
	p.bridge.GetConn1().Close()
	p.release()
	return nil
}

// release lets the bridge close the read channel of every closing end. A
// bridge conn only marks itself closing; Tick closes its read channel once
// nothing is queued towards it, so the queues are dropped first.
func (p *Pipe) release() {
	p.bridge.Drop(0, 0, p.bridge.Len(0))
	p.bridge.Drop(1, 0, p.bridge.Len(1))
	p.bridge.Tick()
}

// PipeAddr is the address of one end of a Pipe.
type PipeAddr struct {
	ID   int
	Port int
}

// Network returns "pipe".
func (a PipeAddr) Network() string { return "pipe" }

func (a PipeAddr) String() string { return fmt.Sprintf("pipe:%d:%d", a.ID, a.Port) }

// PacketConns returns the console end and the BMC end of the pipe as
// packet connections reporting port as their logical port.
func (p *Pipe) PacketConns(port int) (console, bmc *PipePacketConn) {
	console = &PipePacketConn{
		pipe:  p,
		conn:  p.bridge.GetConn0(),
		dir:   ToBMC,
		local: PipeAddr{ID: 0, Port: port},
		peer:  PipeAddr{ID: 1, Port: port},
	}
	bmc = &PipePacketConn{
		pipe:  p,
		conn:  p.bridge.GetConn1(),
		dir:   ToConsole,
		local: PipeAddr{ID: 1, Port: port},
		peer:  PipeAddr{ID: 0, Port: port},
	}
	return console, bmc
}

// PipePacketConn adapts one end of a Pipe to net.PacketConn so the UDP
// transport and the BMC simulator run over it unchanged.
type PipePacketConn struct {
	pipe  *Pipe
	conn  net.Conn
	dir   Direction
	local PipeAddr
	peer  PipeAddr
}

var _ net.PacketConn = (*PipePacketConn)(nil)

// ReadFrom reads one datagram. The address returned is always the peer.
func (c *PipePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := c.conn.Read(b)
	return n, c.peer, err
}

// WriteTo sends b to the peer, subject to the pipe's filter and network
// condition. addr is ignored. A datagram lost on the way is still
// reported as written.
func (c *PipePacketConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	p := c.pipe
	p.mu.RLock()
	cond, filter := p.condition, p.filter
	p.mu.RUnlock()

	p.written.Add(1)
	if filter != nil && !filter(c.dir, b) {
		p.filtered.Add(1)
		return len(b), nil
	}
	if cond.DropRate > 0 && p.float64() < cond.DropRate {
		p.dropped.Add(1)
		return len(b), nil
	}

	copies := 1
	if cond.DuplicateRate > 0 && p.float64() < cond.DuplicateRate {
		p.duplicated.Add(1)
		copies = 2
	}

	delay := cond.DelayMin
	if cond.DelayMax > cond.DelayMin {
		delay += time.Duration(p.int63n(int64(cond.DelayMax - cond.DelayMin)))
	}
	if cond.DelayMax <= 0 || delay <= 0 {
		for i := 0; i < copies; i++ {
			if _, err := c.conn.Write(b); err != nil {
				return 0, err
			}
		}
		return len(b), nil
	}

	// The caller may reuse b once WriteTo returns.
	data := append([]byte(nil), b...)
	p.delayed.Add(1)
	time.AfterFunc(delay, func() {
		for i := 0; i < copies; i++ {
			c.conn.Write(data)
		}
	})
	return len(b), nil
}

// Close closes this end of the pipe. A reader blocked on it returns
// io.EOF. Datagrams still queued in either direction are lost.
func (c *PipePacketConn) Close() error {
	if err := c.conn.Close(); err != nil {
		return err
	}
	c.pipe.release()
	return nil
}

// LocalAddr returns this end's address.
func (c *PipePacketConn) LocalAddr() net.Addr { return c.local }

// PeerAddr returns the address ReadFrom reports.
func (c *PipePacketConn) PeerAddr() net.Addr { return c.peer }

// SetDeadline sets the read and write deadlines.
func (c *PipePacketConn) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

// SetReadDeadline sets the read deadline.
func (c *PipePacketConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }

// SetWriteDeadline sets the write deadline.
func (c *PipePacketConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }

func (p *Pipe) float64() float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64()
}

func (p *Pipe) int63n(n int64) int64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Int63n(n)
}
