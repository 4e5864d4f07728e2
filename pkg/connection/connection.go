// Package connection drives one RMCP+ session with one BMC. It sequences the
// state machine through cipher suite discovery, authentication capabilities
// and the RAKP handshake, then sends commands inside the session and routes
// their responses by tag to registered listeners.
//
// Handshake steps block until the BMC answered or Config.Timeout expired.
// A step that times out or is rejected fires a Timeout event, which rewinds
// the state machine to the last stable state so the step can be redriven.
package connection

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/queue"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
	"github.com/backkem/ipmi/pkg/statemachine"
	"github.com/backkem/ipmi/pkg/transport"
)

// maxCipherSuitePages bounds cipher suite discovery; the list index has
// six bits.
const maxCipherSuitePages = 64

// Transport sends datagrams and delivers received ones to registered
// handlers. *transport.Manager implements it.
type Transport interface {
	Send(data []byte, addr net.Addr) error
	AddHandler(h transport.MessageHandler) (uint64, error)
	RemoveHandler(id uint64) error
}

// Connection is a client connection to one BMC.
//
// Thread-safe for concurrent access. Handshake steps are serialized.
type Connection struct {
	config    Config
	transport Transport
	remote    net.Addr
	log       logging.LeveledLogger

	machine *statemachine.Machine
	queue   *queue.Queue
	window  *message.ReceptionWindow
	pending *rendezvous

	// opMu serializes blocking steps.
	opMu sync.Mutex

	mu               sync.Mutex
	tag              uint8
	consoleSessionID uint32
	managedSessionID uint32
	sik              []byte
	suite            *security.CipherSuite
	keepalive        *commands.GetChannelAuthCapabilities

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64

	lifeMu    sync.Mutex
	handlerID uint64
	closeCh   chan struct{}
	wg        sync.WaitGroup
	connected bool
	closed    bool
}

// New creates a connection to remote over t. Call Connect before use.
func New(t Transport, remote net.Addr, config Config) (*Connection, error) {
	if t == nil {
		return nil, ErrNoTransport
	}
	if remote == nil {
		return nil, ErrNoRemote
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if udp, ok := remote.(*net.UDPAddr); ok && udp.Port == 0 {
		withPort := *udp
		withPort.Port = config.Port
		remote = &withPort
	}

	c := &Connection{
		config:    config,
		transport: t,
		remote:    remote,
		window:    message.NewReceptionWindow(),
		pending:   newRendezvous(config.NotificationTimeout),
		listeners: make(map[uint64]Listener),
		closeCh:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("ipmi-conn")
	}

	machine, err := statemachine.New(statemachine.Config{
		Sender:          c,
		Observer:        c.observe,
		StrictIntegrity: config.StrictIntegrity,
		Rand:            config.Rand,
		LoggerFactory:   config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	c.machine = machine

	c.queue = queue.New(queue.Config{
		Timeout:       config.Timeout,
		SweepInterval: config.SweepInterval,
		OnTimeout:     c.commandTimedOut,
		LoggerFactory: config.LoggerFactory,
	})
	return c, nil
}

// Remote returns the BMC address.
func (c *Connection) Remote() net.Addr {
	return c.remote
}

// Connect registers with the transport and starts the queue sweep and the
// keepalive timer. With Config.SkipCiphers the connection starts in state
// Ciphers instead of Uninitialized.
func (c *Connection) Connect() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.connected {
		return ErrAlreadyConnected
	}

	if c.config.SkipCiphers {
		if err := c.machine.StartAt(statemachine.Ciphers); err != nil {
			return err
		}
	}
	if err := c.machine.Start(c.remote); err != nil {
		return err
	}
	if err := c.queue.Start(); err != nil {
		c.machine.Stop()
		return err
	}
	id, err := c.transport.AddHandler(c.HandleMessage)
	if err != nil {
		c.machine.Stop()
		c.queue.Close()
		return fmt.Errorf("connection: registering with transport: %w", err)
	}
	c.handlerID = id

	if c.config.KeepAlivePeriod > 0 {
		c.wg.Add(1)
		go c.keepaliveLoop()
	}
	c.connected = true

	if c.log != nil {
		c.log.Infof("connected to %v", c.remote)
	}
	return nil
}

// Disconnect stops the timers and detaches from the transport. The session
// is not closed on the BMC; call CloseSession first for that. A connection
// cannot be reconnected.
func (c *Connection) Disconnect() error {
	c.lifeMu.Lock()
	if c.closed {
		c.lifeMu.Unlock()
		return ErrClosed
	}
	c.closed = true
	connected := c.connected
	c.lifeMu.Unlock()

	close(c.closeCh)
	c.wg.Wait()

	c.machine.Stop()
	c.queue.Close()
	if connected {
		c.transport.RemoveHandler(c.handlerID)
	}
	c.resetSession()

	if c.log != nil {
		c.log.Infof("disconnected from %v", c.remote)
	}
	return nil
}

// State returns the state machine state.
func (c *Connection) State() statemachine.State {
	return c.machine.State()
}

// IsSessionValid reports whether a session is established.
func (c *Connection) IsSessionValid() bool {
	return c.machine.State() == statemachine.SessionValid
}

// ConsoleSessionID returns the session ID chosen by this console, 0 before
// the authentication capabilities step.
func (c *Connection) ConsoleSessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consoleSessionID
}

// ManagedSessionID returns the session ID assigned by the BMC.
func (c *Connection) ManagedSessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.managedSessionID
}

// SIK returns the session integrity key, nil without a session.
func (c *Connection) SIK() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sik
}

// Send implements statemachine.Sender.
func (c *Connection) Send(data []byte, addr net.Addr) error {
	if err := c.transport.Send(data, addr); err != nil {
		return err
	}
	c.config.Metrics.sent()
	return nil
}

// GetAvailableCipherSuites reads the cipher suite records of the current
// channel page by page and parses them. It is valid in state Uninitialized
// and leaves the connection in Ciphers.
func (c *Connection) GetAvailableCipherSuites(ctx context.Context) ([]security.CipherSuiteInfo, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expectState(statemachine.Uninitialized); err != nil {
		return nil, err
	}

	var records []byte
	for index := uint8(0); index < maxCipherSuitePages; index++ {
		v, err := c.step(ctx, statemachine.GetChannelCipherSuitesPending{Tag: c.nextTag(), Index: index})
		if err != nil {
			return nil, err
		}
		page, ok := v.(*commands.ChannelCipherSuites)
		if !ok {
			return nil, c.unexpected(v)
		}
		records = append(records, page.Data...)
		if len(page.Data) < commands.CipherSuitePageSize {
			break
		}
	}

	if err := c.machine.Fire(statemachine.DefaultAck{}); err != nil {
		return nil, err
	}
	return security.ParseCipherSuites(records)
}

// GetChannelAuthenticationCapabilities asks for the authentication
// capabilities at privilege and picks the console session ID for the
// session to come. It is valid in state Ciphers and leaves the connection
// in Authcap.
func (c *Connection) GetChannelAuthenticationCapabilities(ctx context.Context, suite security.CipherSuiteInfo, privilege commands.PrivilegeLevel) (*commands.ChannelAuthCapabilities, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expectState(statemachine.Ciphers); err != nil {
		return nil, err
	}

	v, err := c.step(ctx, statemachine.Default{Suite: suite, Tag: c.nextTag(), Privilege: privilege})
	if err != nil {
		return nil, err
	}
	caps, ok := v.(*commands.ChannelAuthCapabilities)
	if !ok {
		return nil, c.unexpected(v)
	}

	id, err := c.newSessionID()
	if err != nil {
		c.fireTimeout()
		return nil, err
	}
	c.mu.Lock()
	c.consoleSessionID = id
	c.mu.Unlock()

	if err := c.machine.Fire(statemachine.AuthCapabilitiesReceived{SessionID: id, Privilege: privilege}); err != nil {
		return nil, err
	}
	return caps, nil
}

// StartSession opens a session with suite at privilege and runs the RAKP
// handshake. kg is the BMC key; nil uses the password. It is valid in state
// Authcap and leaves the connection in SessionValid on success, or in
// Authcap on failure.
func (c *Connection) StartSession(ctx context.Context, suite security.CipherSuiteInfo, privilege commands.PrivilegeLevel, username string, password, kg []byte) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expectState(statemachine.Authcap); err != nil {
		return err
	}
	err := c.startSession(ctx, suite, privilege, username, password, kg)
	c.config.Metrics.handshake(err)
	if err != nil {
		c.resetSession()
		if c.log != nil {
			c.log.Warnf("session with %v failed: %v", c.remote, err)
		}
		return err
	}
	if c.log != nil {
		c.log.Infof("session 0x%08x with %v established using %s", c.ManagedSessionID(), c.remote, suite)
	}
	return nil
}

func (c *Connection) startSession(ctx context.Context, suite security.CipherSuiteInfo, privilege commands.PrivilegeLevel, username string, password, kg []byte) error {
	// Key the session's own algorithm instances early so an unsupported
	// suite fails before anything is sent.
	keyed, err := security.NewCipherSuite(suite)
	if err != nil {
		return err
	}

	c.mu.Lock()
	consoleID := c.consoleSessionID
	c.mu.Unlock()

	v, err := c.step(ctx, statemachine.Authorize{
		Suite:     suite,
		Tag:       c.nextTag(),
		Privilege: privilege,
		SessionID: consoleID,
	})
	if err != nil {
		return err
	}
	osr, ok := v.(*rakp.OpenSessionResponse)
	if !ok {
		return c.unexpected(v)
	}
	c.mu.Lock()
	c.managedSessionID = osr.ManagedSessionID
	c.mu.Unlock()
	if err := c.machine.Fire(statemachine.DefaultAck{}); err != nil {
		return err
	}

	// RAKP 1 and 2.
	ch := c.pending.arm()
	err = c.machine.Fire(statemachine.OpenSessionAck{
		Suite:            suite,
		Privilege:        privilege,
		Tag:              c.nextTag(),
		ManagedSessionID: osr.ManagedSessionID,
		Username:         username,
		Password:         password,
		KG:               kg,
	})
	if err != nil {
		c.pending.disarm(ch)
		return err
	}
	action, err := c.await(ctx, ch)
	if err != nil {
		return err
	}
	rakp2, ok := action.Response.(*rakp.RAKP2)
	if action.Err != nil {
		if ok && errors.Is(action.Err, rakp.ErrInvalidAuthCode) {
			c.abandon(suite, osr.ManagedSessionID, rakp.StatusInvalidIntegrityCheckValue)
		} else {
			c.fireTimeout()
		}
		return action.Err
	}
	if !ok {
		return c.unexpected(action.Response)
	}
	if err := c.machine.Fire(statemachine.DefaultAck{}); err != nil {
		return err
	}

	// RAKP 3 and 4. The session integrity key arrives from Fire.
	v, err = c.step(ctx, statemachine.Rakp2Ack{
		Suite:            suite,
		Tag:              c.nextTag(),
		ManagedSessionID: osr.ManagedSessionID,
		RAKP2:            rakp2,
	})
	if err != nil {
		return err
	}
	if _, ok := v.(*rakp.RAKP4); !ok {
		return c.unexpected(v)
	}

	// RAKP-none derives no SIK; every other algorithm must have produced one.
	sik := c.SIK()
	if sik == nil && keyed.Authentication().Code() != security.AuthRAKPNone {
		c.fireTimeout()
		return rakp.ErrInvalidICV
	}
	if err := keyed.InitializeAlgorithms(sik); err != nil {
		c.fireTimeout()
		return err
	}

	if err := c.machine.Fire(statemachine.DefaultAck{}); err != nil {
		return err
	}
	c.window.Reset(0)
	c.queue.Clear()
	if err := c.machine.Fire(statemachine.StartSession{Suite: keyed, SessionID: consoleID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.suite = keyed
	c.mu.Unlock()
	return nil
}

// abandon tells the BMC the RAKP exchange is over and rewinds to Authcap.
func (c *Connection) abandon(suite security.CipherSuiteInfo, managedID uint32, status rakp.StatusCode) {
	if err := c.machine.Fire(statemachine.DefaultAck{}); err != nil {
		c.fireTimeout()
		return
	}
	err := c.machine.Fire(statemachine.Rakp2Ack{
		Suite:            suite,
		Tag:              c.nextTag(),
		Status:           status,
		ManagedSessionID: managedID,
	})
	if err != nil && c.log != nil {
		c.log.Debugf("abandoning RAKP exchange: %v", err)
	}
	c.fireTimeout()
}

// SendIpmiCommand queues cmd and sends it inside the session. It returns
// the tag under which listeners will see the outcome. queue.ErrQueueFull
// means too many commands are pending; retry later.
func (c *Connection) SendIpmiCommand(cmd commands.Coder) (uint8, error) {
	if err := c.expectState(statemachine.SessionValid); err != nil {
		return 0, err
	}
	seq, err := c.queue.Add(cmd)
	if err != nil {
		return 0, err
	}
	tag := queue.TagOf(seq)

	err = c.machine.Fire(statemachine.SendMessage{Command: cmd, SessionID: c.ManagedSessionID(), Seq: seq})
	if err != nil {
		c.queue.Remove(tag)
		return 0, err
	}
	c.config.Metrics.commandSent()
	return tag, nil
}

// CloseSession asks the BMC to close the session and returns to Authcap
// without waiting for the answer. Pending commands are dropped.
func (c *Connection) CloseSession() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.expectState(statemachine.SessionValid); err != nil {
		return err
	}
	seq, err := c.queue.NextSequence()
	if err != nil {
		return err
	}
	managedID := c.ManagedSessionID()
	if err := c.machine.Fire(statemachine.CloseSession{SessionID: managedID, Seq: seq}); err != nil {
		return err
	}
	c.queue.Clear()
	c.resetSession()

	if c.log != nil {
		c.log.Infof("session 0x%08x with %v closed", managedID, c.remote)
	}
	return nil
}

// RegisterListener adds l and returns an id for UnregisterListener.
func (c *Connection) RegisterListener(l Listener) uint64 {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.nextListener++
	c.listeners[c.nextListener] = l
	return c.nextListener
}

// UnregisterListener removes the listener with id.
func (c *Connection) UnregisterListener(id uint64) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, id)
}

// HandleMessage is the transport callback.
func (c *Connection) HandleMessage(msg *transport.ReceivedMessage) {
	if !transport.SameAddr(c.remote, msg.PeerAddr) {
		return
	}
	c.config.Metrics.received()
	c.machine.HandlePacket(msg.Data, msg.PeerAddr)
}

// step fires event and waits for the response belonging to it. A rejected
// response rewinds the state machine and returns the rejection.
func (c *Connection) step(ctx context.Context, event statemachine.Event) (any, error) {
	ch := c.pending.arm()
	if err := c.machine.Fire(event); err != nil {
		c.pending.disarm(ch)
		return nil, err
	}
	action, err := c.await(ctx, ch)
	if err != nil {
		return nil, err
	}
	if action.Err != nil {
		c.fireTimeout()
		return nil, action.Err
	}
	return action.Response, nil
}

// await waits for the response on ch. On timeout or cancellation it fires
// Timeout before returning.
func (c *Connection) await(ctx context.Context, ch chan statemachine.ResponseAction) (statemachine.ResponseAction, error) {
	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	var err error
	select {
	case a := <-ch:
		return a, nil
	case <-timer.C:
		err = ErrTimeout
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}

	c.pending.disarm(ch)
	if c.log != nil {
		c.log.Debugf("no response from %v in state %s", c.remote, c.machine.State())
	}
	c.fireTimeout()
	return statemachine.ResponseAction{}, err
}

func (c *Connection) fireTimeout() {
	if err := c.machine.Fire(statemachine.Timeout{}); err != nil && c.log != nil {
		c.log.Debugf("timeout event: %v", err)
	}
}

// unexpected rewinds after a response of the wrong type.
func (c *Connection) unexpected(v any) error {
	c.fireTimeout()
	return fmt.Errorf("%w: got %T", ErrUnexpectedResponse, v)
}

func (c *Connection) expectState(want statemachine.State) error {
	c.lifeMu.Lock()
	connected, closed := c.connected, c.closed
	c.lifeMu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case !connected:
		return ErrNotConnected
	}
	if s := c.machine.State(); s != want {
		return fmt.Errorf("%w: %s", ErrInvalidState, s)
	}
	return nil
}

// nextTag returns the tag for the next handshake request.
func (c *Connection) nextTag() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tag = (c.tag + 1) % queue.TagModulus
	return c.tag
}

// newSessionID draws a non-zero console session ID.
func (c *Connection) newSessionID() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(c.config.Rand, buf[:]); err != nil {
			return 0, fmt.Errorf("connection: session ID: %w", err)
		}
		if id := binary.LittleEndian.Uint32(buf[:]); id != 0 {
			return id, nil
		}
	}
}

func (c *Connection) resetSession() {
	c.mu.Lock()
	c.sik = nil
	c.suite = nil
	c.keepalive = nil
	c.managedSessionID = 0
	c.mu.Unlock()
}

// observe receives the state machine's actions.
func (c *Connection) observe(a statemachine.Action) {
	switch a := a.(type) {
	case statemachine.SIKAction:
		c.mu.Lock()
		c.sik = a.SIK
		c.mu.Unlock()
	case statemachine.ResponseAction:
		if !c.pending.offer(a) {
			c.config.Metrics.dropped(dropUnclaimed)
			if c.log != nil {
				c.log.Debugf("nobody waiting for %T from %v", a.Response, c.remote)
			}
		}
	case statemachine.MessageAction:
		c.handleSessionMessage(a.Message)
	}
}

// handleSessionMessage routes an in-session response to the command that
// carries its tag.
func (c *Connection) handleSessionMessage(msg *message.Message) {
	if !c.window.Accept(msg.Sequence) {
		c.config.Metrics.dropped(dropOutsideWindow)
		if c.log != nil {
			c.log.Debugf("dropping message %d outside window around %d", msg.Sequence, c.window.Last())
		}
		return
	}
	if msg.IntegrityFailed {
		c.config.Metrics.integrityFailed()
		if c.log != nil {
			c.log.Warnf("message %d from %v failed the integrity check", msg.Sequence, c.remote)
		}
	}

	resp, err := message.DecodeLANResponse(msg.Payload)
	if err != nil {
		if c.log != nil {
			c.log.Debugf("dropping session message: %v", err)
		}
		return
	}
	tag := resp.RqSeq
	cmd, ok := c.queue.Get(tag)
	if !ok {
		c.config.Metrics.dropped(dropOrphan)
		if c.log != nil {
			c.log.Debugf("no message tagged %d in queue, dropping orphan", tag)
		}
		return
	}
	c.queue.Remove(tag)

	if cmd == commands.Coder(c.keepaliveCommand()) {
		if c.log != nil {
			c.log.Trace("keepalive answered")
		}
		return
	}

	value, err := cmd.DecodeResponse(msg)
	if err != nil {
		c.config.Metrics.commandDone("error")
	} else {
		c.config.Metrics.commandDone("ok")
	}
	c.notify(tag, cmd, value, err)
}

func (c *Connection) commandTimedOut(tag uint8, cmd commands.Coder) {
	if cmd == commands.Coder(c.keepaliveCommand()) {
		if c.log != nil {
			c.log.Warnf("keepalive to %v timed out", c.remote)
		}
		return
	}
	c.config.Metrics.commandDone("timeout")
	c.notify(tag, cmd, nil, ErrTimeout)
}

func (c *Connection) notify(tag uint8, cmd commands.Coder, response any, err error) {
	c.listenersMu.RLock()
	snapshot := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		snapshot = append(snapshot, l)
	}
	c.listenersMu.RUnlock()

	for _, l := range snapshot {
		l.Notify(tag, cmd, response, err)
	}
}

// keepaliveCommand returns the coder of the current session's keepalive.
func (c *Connection) keepaliveCommand() *commands.GetChannelAuthCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepalive
}

func (c *Connection) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.KeepAlivePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.KeepAlive(); err != nil && !errors.Is(err, ErrInvalidState) && c.log != nil {
				c.log.Warnf("keepalive to %v: %v", c.remote, err)
			}
		}
	}
}

// KeepAlive sends a Get Channel Authentication Capabilities request inside
// the session so the BMC does not expire it. It runs periodically on its
// own; calling it directly is only needed with a disabled timer.
func (c *Connection) KeepAlive() error {
	if err := c.expectState(statemachine.SessionValid); err != nil {
		return err
	}

	c.mu.Lock()
	if c.keepalive == nil && c.suite != nil {
		c.keepalive = &commands.GetChannelAuthCapabilities{
			Params:     commands.V20Params(c.suite.Info()),
			RequestV20: true,
			Channel:    commands.ChannelCurrent,
			Privilege:  commands.PrivilegeCallback,
		}
	}
	cmd, managedID := c.keepalive, c.managedSessionID
	c.mu.Unlock()
	if cmd == nil {
		return fmt.Errorf("%w: no session suite", ErrInvalidState)
	}

	seq, err := c.queue.Add(cmd)
	if err != nil {
		return err
	}
	if err := c.machine.Fire(statemachine.SessionUpkeep{SessionID: managedID, Seq: seq}); err != nil {
		c.queue.Remove(queue.TagOf(seq))
		return err
	}
	return nil
}
