// Package statemachine implements the RMCP+ session establishment state
// machine: cipher suite discovery, authentication capabilities, Open Session
// and the RAKP exchange, then in-session messaging until close.
//
// Fire applies an event: it validates the transition, builds and sends the
// request belonging to it and moves to the next state. HandlePacket feeds
// received datagrams to the current state, which filters out everything
// that is not the awaited response and reports matches to the Observer.
// Timers live with the owner; it reports expired waits with a Timeout event.
package statemachine

import (
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
	"github.com/backkem/ipmi/pkg/transport"
)

// Sender transmits a datagram. *transport.UDP implements it.
type Sender interface {
	Send(data []byte, addr net.Addr) error
}

// Config configures a Machine.
type Config struct {
	// Sender transmits requests. Required.
	Sender Sender

	// Observer receives responses, session messages and the session
	// integrity key. Optional.
	Observer Observer

	// StrictIntegrity drops in-session messages whose integrity check fails
	// instead of delivering them flagged.
	StrictIntegrity bool

	// Rand supplies the RAKP console random number. Defaults to crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Machine is the session state machine of one connection.
//
// Thread-safe for concurrent access.
type Machine struct {
	config Config
	log    logging.LeveledLogger

	mu      sync.Mutex
	state   State
	started bool
	remote  net.Addr

	// Context of the current state.
	tag              uint8
	consoleSessionID uint32
	proposed         security.CipherSuiteInfo
	handshake        *rakp.Handshake
	rakp2Verified    bool

	plain   *message.Codec
	session *message.Codec
}

// New creates a state machine in state Uninitialized.
func New(config Config) (*Machine, error) {
	if config.Sender == nil {
		return nil, ErrNoSender
	}

	m := &Machine{
		config: config,
		state:  Uninitialized,
		plain: message.NewCodec(nil, message.CodecConfig{
			LoggerFactory: config.LoggerFactory,
		}),
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("ipmi-sm")
	}
	return m, nil
}

// Start binds the machine to the BMC at remote. Datagrams from other
// addresses are ignored.
func (m *Machine) Start(remote net.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.remote = remote
	return nil
}

// Stop detaches the machine. Later events fail with ErrNotStarted and
// packets are ignored. An established session is dropped, leaving the
// machine in Authcap; any other state is kept.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.started = false
	m.session = nil
	if m.state == SessionValid {
		m.state = Authcap
	}
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartAt forces the machine into s and clears the state context. It is
// used to skip cipher suite discovery by starting in Ciphers.
func (m *Machine) StartAt(s State) error {
	if !s.IsValid() || s == SessionValid {
		return fmt.Errorf("%w: cannot start in %s", ErrInvalidTransition, s)
	}
	m.mu.Lock()
	m.state = s
	m.tag = 0
	m.handshake = nil
	m.rakp2Verified = false
	m.session = nil
	m.mu.Unlock()
	return nil
}

// Fire applies event. Events not accepted in the current state return
// ErrInvalidTransition without sending anything. If the request belonging
// to the transition cannot be sent, the previous state is restored and the
// send error returned.
func (m *Machine) Fire(event Event) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}

	prev := m.state
	next, err := Transition(prev, event)
	if err != nil {
		m.mu.Unlock()
		if m.log != nil {
			m.log.Debugf("%v", err)
		}
		return err
	}

	out, actions, err := m.apply(event)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("statemachine: %s: %w", event, err)
	}

	m.state = next
	if out != nil {
		if err := m.config.Sender.Send(out, m.remote); err != nil {
			m.state = prev
			m.mu.Unlock()
			if m.log != nil {
				m.log.Warnf("send %s failed, staying in %s: %v", event, prev, err)
			}
			return fmt.Errorf("statemachine: send %s: %w", event, err)
		}
	}
	if next != SessionValid {
		m.session = nil
	}
	m.mu.Unlock()

	if m.log != nil && prev != next {
		m.log.Debugf("%s --%s--> %s", prev, event, next)
	}
	m.notify(actions...)
	return nil
}

// apply builds the datagram for event and updates the state context.
// It is called with m.mu held, after the transition has been validated.
func (m *Machine) apply(event Event) ([]byte, []Action, error) {
	switch e := event.(type) {
	case GetChannelCipherSuitesPending:
		cmd := &commands.GetChannelCipherSuites{Channel: commands.ChannelCurrent, Index: e.Index}
		out, err := m.encodePlain(cmd, e.Tag)
		if err != nil {
			return nil, nil, err
		}
		m.tag = e.Tag
		return out, nil, nil

	case Default:
		cmd := &commands.GetChannelAuthCapabilities{
			Params:     commands.V15Params(),
			RequestV20: true,
			Channel:    commands.ChannelCurrent,
			Privilege:  e.Privilege,
		}
		out, err := m.encodePlain(cmd, e.Tag)
		if err != nil {
			return nil, nil, err
		}
		m.tag = e.Tag
		return out, nil, nil

	case AuthCapabilitiesReceived:
		m.consoleSessionID = e.SessionID
		return nil, nil, nil

	case Authorize:
		req := &rakp.OpenSessionRequest{
			Tag:              e.Tag,
			Privilege:        e.Privilege,
			ConsoleSessionID: e.SessionID,
			Suite:            e.Suite,
		}
		out, err := m.encodeRAKP(message.PayloadTypeOpenSessionRequest, req.Encode())
		if err != nil {
			return nil, nil, err
		}
		m.tag = e.Tag
		m.consoleSessionID = e.SessionID
		m.proposed = e.Suite
		return out, nil, nil

	case OpenSessionAck:
		auth, err := security.NewAuthentication(e.Suite.Authentication)
		if err != nil {
			return nil, nil, err
		}
		h, err := rakp.NewHandshake(rakp.Config{
			Authentication:   auth,
			ConsoleSessionID: m.consoleSessionID,
			ManagedSessionID: e.ManagedSessionID,
			Privilege:        e.Privilege,
			Username:         e.Username,
			Password:         e.Password,
			KG:               e.KG,
			Rand:             m.config.Rand,
		})
		if err != nil {
			return nil, nil, err
		}
		payload, err := h.RAKP1(e.Tag).Encode()
		if err != nil {
			return nil, nil, err
		}
		out, err := m.encodeRAKP(message.PayloadTypeRAKP1, payload)
		if err != nil {
			return nil, nil, err
		}
		m.tag = e.Tag
		m.handshake = h
		m.rakp2Verified = false
		return out, nil, nil

	case Rakp2Ack:
		if m.handshake == nil {
			return nil, nil, fmt.Errorf("%w: no RAKP exchange in progress", ErrInvalidTransition)
		}
		if e.Status != rakp.StatusNoErrors {
			// Tell the BMC why the exchange is abandoned; no key is derived.
			abort := &rakp.RAKP3{Tag: e.Tag, Status: e.Status, ManagedSessionID: e.ManagedSessionID}
			out, err := m.encodeRAKP(message.PayloadTypeRAKP3, abort.Encode())
			if err != nil {
				return nil, nil, err
			}
			m.tag = e.Tag
			return out, nil, nil
		}
		if !m.rakp2Verified {
			if e.RAKP2 == nil {
				return nil, nil, rakp.ErrInvalidAuthCode
			}
			if err := m.handshake.VerifyRAKP2(e.RAKP2); err != nil {
				return nil, nil, err
			}
			m.rakp2Verified = true
		}
		rakp3 := m.handshake.RAKP3(e.Tag)
		out, err := m.encodeRAKP(message.PayloadTypeRAKP3, rakp3.Encode())
		if err != nil {
			return nil, nil, err
		}
		m.tag = e.Tag
		return out, []Action{SIKAction{SIK: m.handshake.SIK()}}, nil

	case StartSession:
		if e.Suite == nil {
			return nil, nil, ErrNoCipherSuite
		}
		m.session = message.NewCodec(e.Suite, message.CodecConfig{
			StrictIntegrity: m.config.StrictIntegrity,
			LoggerFactory:   m.config.LoggerFactory,
		})
		m.consoleSessionID = e.SessionID
		return nil, nil, nil

	case SendMessage:
		out, err := m.encodeSession(e.Command, e.Seq, e.SessionID)
		return out, nil, err

	case SessionUpkeep:
		if m.session == nil {
			return nil, nil, ErrNoCipherSuite
		}
		cmd := &commands.GetChannelAuthCapabilities{
			Params:     commands.V20Params(m.session.Suite().Info()),
			RequestV20: true,
			Channel:    commands.ChannelCurrent,
			Privilege:  commands.PrivilegeCallback,
		}
		out, err := m.encodeSession(cmd, e.Seq, e.SessionID)
		return out, nil, err

	case CloseSession:
		if m.session == nil {
			return nil, nil, ErrNoCipherSuite
		}
		cmd := &commands.CloseSession{
			Params:    commands.V20Params(m.session.Suite().Info()),
			SessionID: e.SessionID,
		}
		out, err := m.encodeSession(cmd, e.Seq, e.SessionID)
		return out, nil, err

	case DefaultAck, Timeout:
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, event)
}

// encodePlain encodes a session-less command.
func (m *Machine) encodePlain(cmd commands.Coder, tag uint8) ([]byte, error) {
	msg, err := cmd.EncodeCommand(uint32(tag), 0)
	if err != nil {
		return nil, err
	}
	return m.plain.Encode(msg)
}

// encodeRAKP encodes a session setup payload.
func (m *Machine) encodeRAKP(payloadType message.PayloadType, payload []byte) ([]byte, error) {
	return m.plain.Encode(&message.Message{
		Version:     message.V20,
		AuthType:    message.AuthTypeRMCPPlus,
		PayloadType: payloadType,
		Payload:     payload,
	})
}

// encodeSession encodes cmd inside the session. Payload protection always
// follows the negotiated suite, whatever the command's own parameters say.
func (m *Machine) encodeSession(cmd commands.Coder, seq, sessionID uint32) ([]byte, error) {
	if m.session == nil {
		return nil, ErrNoCipherSuite
	}
	msg, err := cmd.EncodeCommand(seq, sessionID)
	if err != nil {
		return nil, err
	}
	if msg.Version == message.V20 {
		info := m.session.Suite().Info()
		msg.Authenticated = info.Integrity != security.IntegrityNone
		msg.Encrypted = info.Confidentiality != security.ConfidentialityNone
	}
	return m.session.Encode(msg)
}

// HandlePacket offers a received datagram to the current state.
func (m *Machine) HandlePacket(data []byte, from net.Addr) {
	action, ok := m.handle(data, from)
	if ok {
		m.notify(action)
	}
}

func (m *Machine) handle(data []byte, from net.Addr) (Action, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || !transport.SameAddr(m.remote, from) {
		return nil, false
	}
	hdr, err := message.PeekHeader(data)
	if err != nil {
		if m.log != nil {
			m.log.Debugf("dropping packet from %v: %v", from, err)
		}
		return nil, false
	}

	var (
		action Action
		ok     bool
	)
	switch m.state {
	case CiphersWaiting:
		if hdr.AuthType != message.AuthTypeRMCPPlus || hdr.SessionID != 0 ||
			hdr.PayloadType != message.PayloadTypeIPMI || hdr.Authenticated {
			break
		}
		action, ok = m.handleResponse(data, &commands.GetChannelCipherSuites{})

	case AuthcapWaiting:
		if hdr.AuthType == message.AuthTypeRMCPPlus {
			break
		}
		action, ok = m.handleResponse(data, &commands.GetChannelAuthCapabilities{Params: commands.V15Params()})

	case OpenSessionWaiting:
		if hdr.AuthType != message.AuthTypeRMCPPlus || hdr.PayloadType != message.PayloadTypeOpenSessionResponse {
			break
		}
		action, ok = m.handleOpenSessionResponse(data)

	case Rakp1Waiting:
		if hdr.AuthType != message.AuthTypeRMCPPlus || hdr.PayloadType != message.PayloadTypeRAKP2 {
			break
		}
		action, ok = m.handleRAKP2(data)

	case Rakp3Waiting:
		if hdr.AuthType != message.AuthTypeRMCPPlus || hdr.PayloadType != message.PayloadTypeRAKP4 {
			break
		}
		action, ok = m.handleRAKP4(data)

	case SessionValid:
		if hdr.AuthType != message.AuthTypeRMCPPlus || hdr.SessionID == 0 ||
			hdr.PayloadType != message.PayloadTypeIPMI || hdr.SessionID != m.consoleSessionID {
			break
		}
		msg, err := m.session.Decode(data)
		if err != nil {
			if m.log != nil {
				m.log.Warnf("dropping session message: %v", err)
			}
			break
		}
		action, ok = MessageAction{Message: msg}, true
	}

	if !ok && m.log != nil {
		m.log.Tracef("ignoring %s packet (session 0x%08x, payload %s) in state %s",
			hdr.Version, hdr.SessionID, hdr.PayloadType, m.state)
	}
	return action, ok
}

// handleResponse decodes a session-less command response carrying the
// awaited tag.
func (m *Machine) handleResponse(data []byte, cmd commands.Coder) (Action, bool) {
	msg, err := m.plain.Decode(data)
	if err != nil || !cmd.IsCommandResponse(msg) {
		return nil, false
	}
	resp, err := message.DecodeLANResponse(msg.Payload)
	if err != nil || resp.RqSeq != m.tag {
		return nil, false
	}
	value, err := cmd.DecodeResponse(msg)
	return ResponseAction{Response: value, Err: err}, true
}

func (m *Machine) handleOpenSessionResponse(data []byte) (Action, bool) {
	msg, err := m.plain.Decode(data)
	if err != nil {
		return nil, false
	}
	resp, err := rakp.DecodeOpenSessionResponse(msg.Payload)
	if err != nil || resp.Tag != m.tag {
		return nil, false
	}

	err = resp.Err()
	switch {
	case err != nil:
	case resp.ConsoleSessionID != m.consoleSessionID:
		err = rakp.ErrSessionIDMismatch
	case !resp.Matches(m.proposed):
		err = rakp.ErrAlgorithmMismatch
	}
	return ResponseAction{Response: resp, Err: err}, true
}

func (m *Machine) handleRAKP2(data []byte) (Action, bool) {
	msg, err := m.plain.Decode(data)
	if err != nil || m.handshake == nil {
		return nil, false
	}
	resp, err := rakp.DecodeRAKP2(msg.Payload)
	if err != nil || resp.Tag != m.tag {
		return nil, false
	}
	err = m.handshake.VerifyRAKP2(resp)
	m.rakp2Verified = err == nil
	return ResponseAction{Response: resp, Err: err}, true
}

func (m *Machine) handleRAKP4(data []byte) (Action, bool) {
	msg, err := m.plain.Decode(data)
	if err != nil || m.handshake == nil {
		return nil, false
	}
	resp, err := rakp.DecodeRAKP4(msg.Payload)
	if err != nil || resp.Tag != m.tag {
		return nil, false
	}
	return ResponseAction{Response: resp, Err: m.handshake.VerifyRAKP4(resp)}, true
}

func (m *Machine) notify(actions ...Action) {
	if m.config.Observer == nil {
		return
	}
	for _, a := range actions {
		m.config.Observer(a)
	}
}
