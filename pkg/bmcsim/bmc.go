// Package bmcsim is a minimal in-process BMC. It answers presence pings,
// cipher suite and authentication capability queries, the Open Session and
// RAKP exchange, and a small set of in-session commands.
//
// It is test tooling for the console side of this module: every answer is
// computed with the same rakp, message and security code the console uses,
// so a handshake against it checks both directions of the wire format.
package bmcsim

import (
	"cmp"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
)

// DefaultFirstSessionID is the managed session ID handed to the first
// session.
const DefaultFirstSessionID uint32 = 0x02000001

// maxDatagramSize bounds a single request read by Serve.
const maxDatagramSize = 1500

// Handler answers one in-session request with a completion code and
// response data.
type Handler func(req *message.LANRequest) (message.CompletionCode, []byte)

// Config configures a BMC.
type Config struct {
	// Username and Password are the single user account.
	Username string
	Password []byte

	// KG is the BMC key. Empty derives the session integrity key from
	// Password.
	KG []byte

	// MaxPrivilege is the highest privilege the user may hold.
	// Default: Administrator.
	MaxPrivilege commands.PrivilegeLevel

	// CipherSuites are advertised and accepted.
	// Default: suites 0, 1, 2, 3 and 17.
	CipherSuites []security.CipherSuiteInfo

	// Channel is the channel number put into responses. Default: 1.
	Channel uint8

	// AuthCapabilities overrides the Get Channel Authentication
	// Capabilities answer.
	AuthCapabilities *commands.ChannelAuthCapabilities

	// ChassisStatus is returned by Get Chassis Status.
	ChassisStatus commands.ChassisStatus

	// GUID is the BMC GUID. Default: a random UUID.
	GUID uuid.UUID

	// FirstSessionID is the managed session ID of the first session.
	// Default: DefaultFirstSessionID.
	FirstSessionID uint32

	// Rand supplies the BMC random numbers. Default: crypto/rand.
	Rand io.Reader

	// Drop is consulted for every datagram; returning true discards it
	// without an answer.
	Drop func(raw []byte) bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// SessionInfo describes a session known to the BMC.
type SessionInfo struct {
	ConsoleSessionID uint32
	ManagedSessionID uint32
	Suite            security.CipherSuiteInfo
	Privilege        commands.PrivilegeLevel
	Username         string
	// SIK is the session integrity key, set once RAKP message 3 verified.
	SIK []byte
	// Active is set once the session accepts IPMI messages.
	Active bool
}

type session struct {
	info SessionInfo

	auth        security.Authentication
	kx          rakp.KeyExchange
	rakp1       bool
	codec       *message.Codec
	window      *message.ReceptionWindow
	outboundSeq uint32
}

// BMC is the simulated baseboard management controller.
//
// Thread-safe for concurrent access.
type BMC struct {
	config Config
	log    logging.LeveledLogger
	plain  *message.Codec

	mu       sync.Mutex
	nextID   uint32
	sessions map[uint32]*session
	handlers map[uint16]Handler
	counts   map[uint16]int
	serving  bool
}

// New creates a BMC.
func New(config Config) *BMC {
	if config.MaxPrivilege == 0 {
		config.MaxPrivilege = commands.PrivilegeAdministrator
	}
	if len(config.CipherSuites) == 0 {
		for _, id := range []uint8{0, 1, 2, 3, 17} {
			info, _ := security.LookupCipherSuite(id)
			config.CipherSuites = append(config.CipherSuites, info)
		}
	}
	if config.Channel == 0 {
		config.Channel = 1
	}
	if config.GUID == uuid.Nil {
		config.GUID = uuid.New()
	}
	if config.FirstSessionID == 0 {
		config.FirstSessionID = DefaultFirstSessionID
	}
	if config.Rand == nil {
		config.Rand = rand.Reader
	}

	b := &BMC{
		config:   config,
		plain:    message.NewCodec(nil, message.CodecConfig{LoggerFactory: config.LoggerFactory}),
		nextID:   config.FirstSessionID,
		sessions: make(map[uint32]*session),
		handlers: make(map[uint16]Handler),
		counts:   make(map[uint16]int),
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("ipmi-bmcsim")
	}

	b.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus, b.handleChassisStatus)
	return b
}

// SetHandler installs h for in-session requests with netFn and cmd. The
// session commands built into the BMC cannot be replaced.
func (b *BMC) SetHandler(netFn message.NetworkFunction, cmd uint8, h Handler) {
	b.mu.Lock()
	b.handlers[commandKey(netFn, cmd)] = h
	b.mu.Unlock()
}

// Sessions returns the sessions currently known, ordered by managed
// session ID.
func (b *BMC) Sessions() []SessionInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]SessionInfo, 0, len(b.sessions))
	for _, s := range b.sessions {
		infos = append(infos, s.info)
	}
	slices.SortFunc(infos, func(a, c SessionInfo) int {
		return cmp.Compare(a.ManagedSessionID, c.ManagedSessionID)
	})
	return infos
}

// Session returns the session with managed session ID id.
func (b *BMC) Session(id uint32) (SessionInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return SessionInfo{}, ErrUnknownSession
	}
	return s.info, nil
}

// Count returns how many requests for netFn and cmd were answered.
func (b *BMC) Count(netFn message.NetworkFunction, cmd uint8) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[commandKey(netFn, cmd)]
}

// Serve answers datagrams read from conn until it is closed.
func (b *BMC) Serve(conn net.PacketConn) error {
	b.mu.Lock()
	if b.serving {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.serving = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.serving = false
		b.mu.Unlock()
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}

		resp := b.Handle(append([]byte(nil), buf[:n]...))
		if resp == nil {
			continue
		}
		if _, err := conn.WriteTo(resp, addr); err != nil && b.log != nil {
			b.log.Warnf("write to %v: %v", addr, err)
		}
	}
}

// Handle answers a single datagram. It returns nil when the datagram is
// dropped.
func (b *BMC) Handle(raw []byte) []byte {
	if b.config.Drop != nil && b.config.Drop(raw) {
		return nil
	}

	if tag, ok := message.IsPresencePing(raw); ok {
		pong := &message.PresencePong{Tag: tag, OEMIANA: message.ASFIANA, IPMI: true}
		return pong.Encode()
	}

	hdr, err := message.PeekHeader(raw)
	if err != nil {
		if b.log != nil {
			b.log.Debugf("dropping datagram: %v", err)
		}
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []byte
	switch {
	case hdr.Version == message.V15:
		out, err = b.handleV15(raw)
	case hdr.SessionID == 0:
		out, err = b.handleSessionless(raw, hdr.PayloadType)
	default:
		out, err = b.handleSession(raw, hdr.SessionID)
	}
	if err != nil {
		if b.log != nil {
			b.log.Debugf("dropping %s request: %v", hdr.Version, err)
		}
		return nil
	}
	return out
}

func (b *BMC) handleV15(raw []byte) ([]byte, error) {
	msg, err := b.plain.Decode(raw)
	if err != nil {
		return nil, err
	}
	if msg.SessionID != 0 {
		return nil, fmt.Errorf("%w: v1.5 session 0x%08x", ErrUnknownSession, msg.SessionID)
	}
	req, err := message.DecodeLANRequest(msg.Payload)
	if err != nil {
		return nil, err
	}

	cc, data := b.dispatch(nil, req)
	return b.plain.Encode(&message.Message{
		Version:  message.V15,
		AuthType: message.AuthTypeNone,
		Payload:  lanResponse(req, cc, data).Encode(),
	})
}

func (b *BMC) handleSessionless(raw []byte, payloadType message.PayloadType) ([]byte, error) {
	msg, err := b.plain.Decode(raw)
	if err != nil {
		return nil, err
	}

	var (
		respType message.PayloadType
		payload  []byte
	)
	switch payloadType {
	case message.PayloadTypeIPMI:
		req, err := message.DecodeLANRequest(msg.Payload)
		if err != nil {
			return nil, err
		}
		cc, data := b.dispatch(nil, req)
		respType, payload = message.PayloadTypeIPMI, lanResponse(req, cc, data).Encode()

	case message.PayloadTypeOpenSessionRequest:
		respType = message.PayloadTypeOpenSessionResponse
		payload, err = b.openSession(msg.Payload)

	case message.PayloadTypeRAKP1:
		respType = message.PayloadTypeRAKP2
		payload, err = b.rakp2(msg.Payload)

	case message.PayloadTypeRAKP3:
		respType = message.PayloadTypeRAKP4
		payload, err = b.rakp4(msg.Payload)

	default:
		return nil, fmt.Errorf("unexpected session-less payload %s", payloadType)
	}
	if err != nil || payload == nil {
		return nil, err
	}

	return b.plain.Encode(&message.Message{
		Version:     message.V20,
		AuthType:    message.AuthTypeRMCPPlus,
		PayloadType: respType,
		Payload:     payload,
	})
}

func (b *BMC) openSession(payload []byte) ([]byte, error) {
	req, err := rakp.DecodeOpenSessionRequest(payload)
	if err != nil {
		return nil, err
	}
	resp := &rakp.OpenSessionResponse{Tag: req.Tag, ConsoleSessionID: req.ConsoleSessionID}

	suite, ok := b.selectSuite(req.Suite)
	switch {
	case !ok:
		resp.Status = rakp.StatusNoCipherSuiteMatch
	case req.Privilege > b.config.MaxPrivilege:
		resp.Status = rakp.StatusInvalidRole
	case req.ConsoleSessionID == 0:
		resp.Status = rakp.StatusInvalidSessionID
	}
	if resp.Status != rakp.StatusNoErrors {
		return resp.Encode(), nil
	}

	auth, err := security.NewAuthentication(suite.Authentication)
	if err != nil {
		resp.Status = rakp.StatusInvalidAuthenticationAlgorithm
		return resp.Encode(), nil
	}

	privilege := req.Privilege
	if privilege == commands.PrivilegeMaximumAvailable {
		privilege = b.config.MaxPrivilege
	}

	id := b.nextID
	b.nextID++
	b.sessions[id] = &session{
		info: SessionInfo{
			ConsoleSessionID: req.ConsoleSessionID,
			ManagedSessionID: id,
			Suite:            suite,
			Privilege:        privilege,
		},
		auth: auth,
	}
	if b.log != nil {
		b.log.Debugf("opened session 0x%08x for console 0x%08x with %s", id, req.ConsoleSessionID, suite)
	}

	resp.Privilege = privilege
	resp.ManagedSessionID = id
	resp.Suite = suite
	return resp.Encode(), nil
}

// selectSuite returns the configured suite running exactly the proposed
// algorithms.
func (b *BMC) selectSuite(proposed security.CipherSuiteInfo) (security.CipherSuiteInfo, bool) {
	for _, s := range b.config.CipherSuites {
		if s.Authentication == proposed.Authentication &&
			s.Integrity == proposed.Integrity &&
			s.Confidentiality == proposed.Confidentiality {
			return s, true
		}
	}
	return security.CipherSuiteInfo{}, false
}

func (b *BMC) rakp2(payload []byte) ([]byte, error) {
	m, err := rakp.DecodeRAKP1(payload)
	if err != nil {
		return nil, err
	}
	resp := &rakp.RAKP2{Tag: m.Tag}

	s, ok := b.sessions[m.ManagedSessionID]
	if !ok || s.info.Active {
		resp.Status = rakp.StatusInvalidSessionID
		return resp.Encode(), nil
	}
	resp.ConsoleSessionID = s.info.ConsoleSessionID

	switch {
	case m.Username != b.config.Username:
		resp.Status = rakp.StatusUnauthorizedName
	case m.Privilege > b.config.MaxPrivilege:
		resp.Status = rakp.StatusUnauthorizedRole
	}
	if resp.Status != rakp.StatusNoErrors {
		delete(b.sessions, m.ManagedSessionID)
		return resp.Encode(), nil
	}

	s.kx = rakp.KeyExchange{
		ConsoleSessionID: s.info.ConsoleSessionID,
		ManagedSessionID: s.info.ManagedSessionID,
		ConsoleRandom:    m.ConsoleRandom,
		ManagedGUID:      b.config.GUID,
		Role:             m.Role(),
		Username:         m.Username,
	}
	if _, err := io.ReadFull(b.config.Rand, s.kx.ManagedRandom[:]); err != nil {
		return nil, fmt.Errorf("managed random: %w", err)
	}
	if m.Privilege != commands.PrivilegeMaximumAvailable {
		s.info.Privilege = m.Privilege
	}
	s.info.Username = m.Username
	s.rakp1 = true

	resp.ManagedRandom = s.kx.ManagedRandom
	resp.ManagedGUID = b.config.GUID
	resp.AuthCode = rakp.RAKP2AuthCode(s.auth, &s.kx, b.config.Password)
	return resp.Encode(), nil
}

func (b *BMC) rakp4(payload []byte) ([]byte, error) {
	m, err := rakp.DecodeRAKP3(payload)
	if err != nil {
		return nil, err
	}
	resp := &rakp.RAKP4{Tag: m.Tag}

	s, ok := b.sessions[m.ManagedSessionID]
	if !ok || !s.rakp1 || s.info.Active {
		resp.Status = rakp.StatusInvalidSessionID
		return resp.Encode(), nil
	}
	resp.ConsoleSessionID = s.info.ConsoleSessionID

	// The console reports its own RAKP message 2 failure this way.
	if m.Status != rakp.StatusNoErrors {
		delete(b.sessions, m.ManagedSessionID)
		if b.log != nil {
			b.log.Debugf("console aborted session 0x%08x: %s", m.ManagedSessionID, m.Status)
		}
		return nil, nil
	}

	if !s.auth.CheckKeyExchangeAuthCode(s.kx.RAKP3Base(), m.AuthCode, b.config.Password) {
		delete(b.sessions, m.ManagedSessionID)
		resp.Status = rakp.StatusInvalidIntegrityCheckValue
		return resp.Encode(), nil
	}

	sik := rakp.DeriveSIK(s.auth, &s.kx, b.config.KG, b.config.Password)
	suite, err := security.NewCipherSuite(s.info.Suite)
	if err != nil {
		return nil, err
	}
	if err := suite.InitializeAlgorithms(sik); err != nil {
		return nil, err
	}

	s.codec = message.NewCodec(suite, message.CodecConfig{
		StrictIntegrity: true,
		LoggerFactory:   b.config.LoggerFactory,
	})
	s.window = message.NewReceptionWindow()
	s.info.SIK = sik
	s.info.Active = true
	if b.log != nil {
		b.log.Debugf("session 0x%08x active", m.ManagedSessionID)
	}

	resp.ICV = rakp.RAKP4ICV(s.auth, &s.kx, sik)
	return resp.Encode(), nil
}

func (b *BMC) handleSession(raw []byte, sessionID uint32) ([]byte, error) {
	s, ok := b.sessions[sessionID]
	if !ok || !s.info.Active {
		return nil, fmt.Errorf("%w: 0x%08x", ErrUnknownSession, sessionID)
	}
	msg, err := s.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !s.window.Accept(msg.Sequence) {
		return nil, fmt.Errorf("sequence %d outside window of %d", msg.Sequence, s.window.Last())
	}
	req, err := message.DecodeLANRequest(msg.Payload)
	if err != nil {
		return nil, err
	}

	cc, data := b.dispatch(s, req)

	info := s.info.Suite
	s.outboundSeq++
	return s.codec.Encode(&message.Message{
		Version:       message.V20,
		AuthType:      message.AuthTypeRMCPPlus,
		PayloadType:   message.PayloadTypeIPMI,
		Authenticated: info.Integrity != security.IntegrityNone,
		Encrypted:     info.Confidentiality != security.ConfidentialityNone,
		SessionID:     s.info.ConsoleSessionID,
		Sequence:      s.outboundSeq,
		Payload:       lanResponse(req, cc, data).Encode(),
	})
}

// dispatch answers req. s is nil outside a session, where only the
// capability queries are allowed.
func (b *BMC) dispatch(s *session, req *message.LANRequest) (message.CompletionCode, []byte) {
	key := commandKey(req.NetFn, req.Command)
	b.counts[key]++

	if req.NetFn == message.NetFnAppRequest {
		switch req.Command {
		case commands.CmdGetChannelAuthenticationCapabilities:
			return message.CompletionOK, b.authCapabilities().Encode()
		case commands.CmdGetChannelCipherSuites:
			return b.cipherSuites(req.Data)
		}
	}

	if s == nil {
		return message.CompletionInsufficientPrivilege, nil
	}

	if req.NetFn == message.NetFnAppRequest {
		switch req.Command {
		case commands.CmdSetSessionPrivilegeLevel:
			return b.setPrivilege(s, req.Data)
		case commands.CmdCloseSession:
			return b.closeSession(req.Data)
		}
	}

	if h, ok := b.handlers[key]; ok {
		return h(req)
	}
	return message.CompletionInvalidCommand, nil
}

func (b *BMC) authCapabilities() *commands.ChannelAuthCapabilities {
	if b.config.AuthCapabilities != nil {
		return b.config.AuthCapabilities
	}
	return &commands.ChannelAuthCapabilities{
		Channel:          b.config.Channel,
		IPMIv20:          true,
		AuthTypes:        []message.AuthType{message.AuthTypeMD5, message.AuthTypeStraight},
		KGEnabled:        len(b.config.KG) > 0,
		PerMessageAuth:   true,
		UserLevelAuth:    true,
		NonNullUsernames: b.config.Username != "",
		NullUsernames:    b.config.Username == "",
	}
}

func (b *BMC) cipherSuites(data []byte) (message.CompletionCode, []byte) {
	if len(data) < 3 {
		return message.CompletionRequestLengthInvalid, nil
	}
	records := security.EncodeCipherSuites(b.config.CipherSuites)
	start := int(data[2]&0x3F) * commands.CipherSuitePageSize
	if start > len(records) {
		start = len(records)
	}
	end := min(start+commands.CipherSuitePageSize, len(records))
	return message.CompletionOK, append([]byte{b.config.Channel}, records[start:end]...)
}

func (b *BMC) setPrivilege(s *session, data []byte) (message.CompletionCode, []byte) {
	if len(data) < 1 {
		return message.CompletionRequestLengthInvalid, nil
	}
	requested := commands.PrivilegeLevel(data[0] & 0x0F)
	switch {
	case requested == commands.PrivilegeMaximumAvailable:
	case requested > b.config.MaxPrivilege:
		return message.CompletionInsufficientPrivilege, nil
	default:
		s.info.Privilege = requested
	}
	return message.CompletionOK, []byte{uint8(s.info.Privilege)}
}

func (b *BMC) closeSession(data []byte) (message.CompletionCode, []byte) {
	if len(data) < 4 {
		return message.CompletionRequestLengthInvalid, nil
	}
	id := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	if _, ok := b.sessions[id]; !ok {
		return message.CompletionInvalidDataField, nil
	}
	delete(b.sessions, id)
	if b.log != nil {
		b.log.Debugf("closed session 0x%08x", id)
	}
	return message.CompletionOK, nil
}

func (b *BMC) handleChassisStatus(*message.LANRequest) (message.CompletionCode, []byte) {
	return message.CompletionOK, b.config.ChassisStatus.Encode()
}

func commandKey(netFn message.NetworkFunction, cmd uint8) uint16 {
	return uint16(netFn)<<8 | uint16(cmd)
}

func lanResponse(req *message.LANRequest, cc message.CompletionCode, data []byte) *message.LANResponse {
	return &message.LANResponse{
		RqAddr:         req.RqAddr,
		NetFn:          req.NetFn.Response(),
		RqLUN:          req.RqLUN,
		RsAddr:         req.RsAddr,
		RqSeq:          req.RqSeq,
		RsLUN:          req.RsLUN,
		Command:        req.Command,
		CompletionCode: cc,
		Data:           data,
	}
}
