package bmcsim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
)

const testConsoleSessionID uint32 = 0xA0A1A2A3

func newTestBMC() *BMC {
	return New(Config{
		Username:      "admin",
		Password:      []byte("secret"),
		GUID:          uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"),
		Rand:          bytes.NewReader(bytes.Repeat([]byte{0x5A}, 64)),
		ChassisStatus: commands.ChassisStatus{PowerOn: true},
	})
}

// exchange encodes msg with codec, hands it to b and decodes the answer.
func exchange(t *testing.T, b *BMC, codec *message.Codec, msg *message.Message) *message.Message {
	t.Helper()
	raw, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	resp := b.Handle(raw)
	if resp == nil {
		t.Fatalf("Handle(%s) returned no answer", msg)
	}
	m, err := codec.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return m
}

func setupMessage(payloadType message.PayloadType, payload []byte) *message.Message {
	return &message.Message{
		Version:     message.V20,
		AuthType:    message.AuthTypeRMCPPlus,
		PayloadType: payloadType,
		Payload:     payload,
	}
}

func TestPresencePing(t *testing.T) {
	b := newTestBMC()

	pong, err := message.DecodePresencePong(b.Handle(message.EncodePresencePing(7)))
	if err != nil {
		t.Fatalf("DecodePresencePong() error = %v", err)
	}
	if pong.Tag != 7 || !pong.IPMI {
		t.Errorf("pong = %+v, want tag 7 with IPMI", pong)
	}
}

func TestCipherSuitePages(t *testing.T) {
	b := newTestBMC()
	plain := message.NewCodec(nil, message.CodecConfig{})

	var (
		records []byte
		pages   int
	)
	for index := uint8(0); ; index++ {
		cmd := &commands.GetChannelCipherSuites{Channel: commands.ChannelCurrent, Index: index}
		msg, err := cmd.EncodeCommand(uint32(index)+1, 0)
		if err != nil {
			t.Fatalf("EncodeCommand() error = %v", err)
		}
		v, err := cmd.DecodeResponse(exchange(t, b, plain, msg))
		if err != nil {
			t.Fatalf("DecodeResponse() error = %v", err)
		}
		page := v.(*commands.ChannelCipherSuites)
		records = append(records, page.Data...)
		pages++
		if len(page.Data) < commands.CipherSuitePageSize {
			break
		}
	}

	if pages != 2 {
		t.Errorf("pages = %d, want 2", pages)
	}
	suites, err := security.ParseCipherSuites(records)
	if err != nil {
		t.Fatalf("ParseCipherSuites() error = %v", err)
	}
	if len(suites) != 5 || suites[3].ID != 3 || suites[4] != security.StandardCipherSuites[17] {
		t.Errorf("suites = %v, want 0, 1, 2, 3 and 17", suites)
	}
}

func TestAuthCapabilitiesV15(t *testing.T) {
	b := newTestBMC()
	plain := message.NewCodec(nil, message.CodecConfig{})

	cmd := &commands.GetChannelAuthCapabilities{
		Params:     commands.V15Params(),
		RequestV20: true,
		Channel:    commands.ChannelCurrent,
		Privilege:  commands.PrivilegeAdministrator,
	}
	msg, err := cmd.EncodeCommand(4, 0)
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	m := exchange(t, b, plain, msg)
	if m.Version != message.V15 {
		t.Errorf("answer version = %s, want v1.5", m.Version)
	}
	v, err := cmd.DecodeResponse(m)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	caps := v.(*commands.ChannelAuthCapabilities)
	if !caps.IPMIv20 || caps.Channel != 1 || !caps.NonNullUsernames {
		t.Errorf("capabilities = %+v", caps)
	}
}

func TestSessionHandshake(t *testing.T) {
	b := newTestBMC()
	plain := message.NewCodec(nil, message.CodecConfig{})
	suite := security.StandardCipherSuites[3]

	open := &rakp.OpenSessionRequest{
		Tag:              1,
		Privilege:        commands.PrivilegeAdministrator,
		ConsoleSessionID: testConsoleSessionID,
		Suite:            suite,
	}
	m := exchange(t, b, plain, setupMessage(message.PayloadTypeOpenSessionRequest, open.Encode()))
	osr, err := rakp.DecodeOpenSessionResponse(m.Payload)
	if err != nil {
		t.Fatalf("DecodeOpenSessionResponse() error = %v", err)
	}
	if err := osr.Err(); err != nil {
		t.Fatalf("open session rejected: %v", err)
	}
	if osr.ManagedSessionID != DefaultFirstSessionID || !osr.Matches(suite) {
		t.Fatalf("open session response = %+v", osr)
	}

	auth, _ := security.NewAuthentication(suite.Authentication)
	h, err := rakp.NewHandshake(rakp.Config{
		Authentication:   auth,
		ConsoleSessionID: testConsoleSessionID,
		ManagedSessionID: osr.ManagedSessionID,
		Privilege:        commands.PrivilegeAdministrator,
		Username:         "admin",
		Password:         []byte("secret"),
		Rand:             bytes.NewReader(bytes.Repeat([]byte{0x11}, rakp.RandomLength)),
	})
	if err != nil {
		t.Fatalf("NewHandshake() error = %v", err)
	}

	rakp1, _ := h.RAKP1(2).Encode()
	m = exchange(t, b, plain, setupMessage(message.PayloadTypeRAKP1, rakp1))
	rakp2, err := rakp.DecodeRAKP2(m.Payload)
	if err != nil {
		t.Fatalf("DecodeRAKP2() error = %v", err)
	}
	if err := h.VerifyRAKP2(rakp2); err != nil {
		t.Fatalf("VerifyRAKP2() error = %v", err)
	}

	m = exchange(t, b, plain, setupMessage(message.PayloadTypeRAKP3, h.RAKP3(3).Encode()))
	rakp4, err := rakp.DecodeRAKP4(m.Payload)
	if err != nil {
		t.Fatalf("DecodeRAKP4() error = %v", err)
	}
	if err := h.VerifyRAKP4(rakp4); err != nil {
		t.Fatalf("VerifyRAKP4() error = %v", err)
	}

	info, err := b.Session(osr.ManagedSessionID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if !info.Active || !bytes.Equal(info.SIK, h.SIK()) {
		t.Errorf("session = %+v, want active with the console's SIK", info)
	}

	keyed, err := security.NewCipherSuite(suite)
	if err != nil {
		t.Fatalf("NewCipherSuite() error = %v", err)
	}
	if err := keyed.InitializeAlgorithms(h.SIK()); err != nil {
		t.Fatalf("InitializeAlgorithms() error = %v", err)
	}
	sess := message.NewCodec(keyed, message.CodecConfig{StrictIntegrity: true})

	chassis := &commands.GetChassisStatus{Params: commands.V20Params(suite)}
	msg, _ := chassis.EncodeCommand(1, osr.ManagedSessionID)
	m = exchange(t, b, sess, msg)
	if m.SessionID != testConsoleSessionID || !m.Encrypted || !m.Authenticated {
		t.Errorf("answer = %s, want encrypted and authenticated for the console session", m)
	}
	v, err := chassis.DecodeResponse(m)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if !v.(*commands.ChassisStatus).PowerOn {
		t.Error("chassis status PowerOn = false, want true")
	}

	closeCmd := &commands.CloseSession{Params: commands.V20Params(suite), SessionID: osr.ManagedSessionID}
	msg, _ = closeCmd.EncodeCommand(2, osr.ManagedSessionID)
	if _, err := closeCmd.DecodeResponse(exchange(t, b, sess, msg)); err != nil {
		t.Fatalf("close session error = %v", err)
	}
	if n := len(b.Sessions()); n != 0 {
		t.Errorf("Sessions() after close = %d entries, want 0", n)
	}
	if _, err := b.Session(osr.ManagedSessionID); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Session() after close error = %v, want %v", err, ErrUnknownSession)
	}
}

func TestRejections(t *testing.T) {
	plain := message.NewCodec(nil, message.CodecConfig{})

	t.Run("no matching suite", func(t *testing.T) {
		b := newTestBMC()
		open := &rakp.OpenSessionRequest{
			Tag:              1,
			ConsoleSessionID: testConsoleSessionID,
			Suite:            security.StandardCipherSuites[8],
		}
		m := exchange(t, b, plain, setupMessage(message.PayloadTypeOpenSessionRequest, open.Encode()))
		osr, err := rakp.DecodeOpenSessionResponse(m.Payload)
		if err != nil {
			t.Fatalf("DecodeOpenSessionResponse() error = %v", err)
		}
		if osr.Status != rakp.StatusNoCipherSuiteMatch {
			t.Errorf("status = %s, want %s", osr.Status, rakp.StatusNoCipherSuiteMatch)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		b := newTestBMC()
		open := &rakp.OpenSessionRequest{Tag: 1, ConsoleSessionID: testConsoleSessionID, Suite: security.StandardCipherSuites[3]}
		m := exchange(t, b, plain, setupMessage(message.PayloadTypeOpenSessionRequest, open.Encode()))
		osr, _ := rakp.DecodeOpenSessionResponse(m.Payload)

		rakp1 := &rakp.RAKP1{Tag: 2, ManagedSessionID: osr.ManagedSessionID, Privilege: commands.PrivilegeUser, Username: "mallory"}
		payload, _ := rakp1.Encode()
		m = exchange(t, b, plain, setupMessage(message.PayloadTypeRAKP1, payload))
		rakp2, err := rakp.DecodeRAKP2(m.Payload)
		if err != nil {
			t.Fatalf("DecodeRAKP2() error = %v", err)
		}
		var statusErr *rakp.StatusError
		if err := rakp2.Err(); !errors.As(err, &statusErr) || statusErr.Code != rakp.StatusUnauthorizedName {
			t.Errorf("RAKP2 error = %v, want %s", err, rakp.StatusUnauthorizedName)
		}
		if len(b.Sessions()) != 0 {
			t.Error("rejected session was kept")
		}
	})

	t.Run("session-less command", func(t *testing.T) {
		b := newTestBMC()
		chassis := &commands.GetChassisStatus{Params: commands.V20Params(security.CipherSuiteInfo{})}
		msg, _ := chassis.EncodeCommand(5, 0)
		_, err := chassis.DecodeResponse(exchange(t, b, plain, msg))
		var cc *message.CompletionError
		if !errors.As(err, &cc) || cc.Code != message.CompletionInsufficientPrivilege {
			t.Errorf("error = %v, want %s", err, message.CompletionInsufficientPrivilege)
		}
	})

	t.Run("dropped", func(t *testing.T) {
		b := New(Config{Drop: func([]byte) bool { return true }})
		if resp := b.Handle(message.EncodePresencePing(1)); resp != nil {
			t.Errorf("Handle() = %x, want nil", resp)
		}
	})
}
