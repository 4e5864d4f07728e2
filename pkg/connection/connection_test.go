package connection

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/backkem/ipmi/pkg/bmcsim"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/queue"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
	"github.com/backkem/ipmi/pkg/statemachine"
	"github.com/backkem/ipmi/pkg/transport"
)

var testSuite = security.StandardCipherSuites[3]

func testBMCConfig() bmcsim.Config {
	return bmcsim.Config{
		Username:      "admin",
		Password:      []byte("secret"),
		ChassisStatus: commands.ChassisStatus{PowerOn: true},
	}
}

// result is one listener notification.
type result struct {
	tag      uint8
	cmd      commands.Coder
	response any
	err      error
}

func collect(c *Connection) (<-chan result, uint64) {
	ch := make(chan result, 16)
	id := c.RegisterListener(ListenerFunc(func(tag uint8, cmd commands.Coder, response any, err error) {
		ch <- result{tag: tag, cmd: cmd, response: response, err: err}
	}))
	return ch, id
}

func waitResult(t *testing.T, ch <-chan result, timeout time.Duration) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(timeout):
		t.Fatal("timeout waiting for listener")
	}
	return result{}
}

// eventually polls cond until it holds or a second passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("%s: condition not met", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newPair(t *testing.T, config TestPairConfig) *TestPair {
	t.Helper()
	pair, err := NewTestPair(config)
	if err != nil {
		t.Fatalf("NewTestPair() error = %v", err)
	}
	t.Cleanup(pair.Close)
	return pair
}

func chassisStatus() *commands.GetChassisStatus {
	return &commands.GetChassisStatus{Params: commands.V20Params(testSuite)}
}

func TestNew(t *testing.T) {
	mgr, err := transport.NewManager(transport.ManagerConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Stop()
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}

	t.Run("defaults", func(t *testing.T) {
		c, err := New(mgr, remote, Config{})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if got := c.Remote().(*net.UDPAddr).Port; got != transport.DefaultPort {
			t.Errorf("remote port = %d, want %d", got, transport.DefaultPort)
		}
		if remote.Port != 0 {
			t.Error("New() modified the caller's address")
		}
		if c.config.Timeout != DefaultTimeout || c.config.KeepAlivePeriod != DefaultKeepAlivePeriod {
			t.Errorf("config = %+v, want defaults", c.config)
		}
		if c.State() != statemachine.Uninitialized {
			t.Errorf("State() = %s, want Uninitialized", c.State())
		}
	})

	t.Run("no transport", func(t *testing.T) {
		if _, err := New(nil, remote, Config{}); err != ErrNoTransport {
			t.Errorf("New() error = %v, want %v", err, ErrNoTransport)
		}
	})

	t.Run("no remote", func(t *testing.T) {
		if _, err := New(mgr, nil, Config{}); err != ErrNoRemote {
			t.Errorf("New() error = %v, want %v", err, ErrNoRemote)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		if _, err := New(mgr, remote, Config{Timeout: -time.Second}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New() error = %v, want %v", err, ErrInvalidConfig)
		}
		if _, err := New(mgr, remote, Config{Port: 70000}); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New() error = %v, want %v", err, ErrInvalidConfig)
		}
	})
}

func TestLifecycle(t *testing.T) {
	mgr, err := transport.NewManager(transport.ManagerConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer mgr.Stop()

	c, err := New(mgr, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 623}, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.GetAvailableCipherSuites(context.Background()); err != ErrNotConnected {
		t.Errorf("before Connect error = %v, want %v", err, ErrNotConnected)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if n := mgr.Handlers(); n != 1 {
		t.Errorf("transport handlers = %d, want 1", n)
	}
	if err := c.Connect(); err != ErrAlreadyConnected {
		t.Errorf("Connect() twice error = %v, want %v", err, ErrAlreadyConnected)
	}
	if err := c.Disconnect(); err != nil {
		t.Errorf("Disconnect() error = %v", err)
	}
	if n := mgr.Handlers(); n != 0 {
		t.Errorf("transport handlers after Disconnect = %d, want 0", n)
	}
	if err := c.Disconnect(); err != ErrClosed {
		t.Errorf("Disconnect() twice error = %v, want %v", err, ErrClosed)
	}
	if err := c.Connect(); err != ErrClosed {
		t.Errorf("Connect() after Disconnect error = %v, want %v", err, ErrClosed)
	}
	if _, err := c.SendIpmiCommand(chassisStatus()); err != ErrClosed {
		t.Errorf("SendIpmiCommand() after Disconnect error = %v, want %v", err, ErrClosed)
	}
}

func TestSession(t *testing.T) {
	metrics := NewMetrics("test")
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{Metrics: metrics, KeepAlivePeriod: -1},
	})
	ctx := context.Background()
	c := pair.Conn

	suites, err := c.GetAvailableCipherSuites(ctx)
	if err != nil {
		t.Fatalf("GetAvailableCipherSuites() error = %v", err)
	}
	if len(suites) != 5 || suites[3] != testSuite {
		t.Errorf("suites = %v, want 0, 1, 2, 3 and 17", suites)
	}
	if c.State() != statemachine.Ciphers {
		t.Errorf("State() = %s, want Ciphers", c.State())
	}

	caps, err := c.GetChannelAuthenticationCapabilities(ctx, testSuite, commands.PrivilegeAdministrator)
	if err != nil {
		t.Fatalf("GetChannelAuthenticationCapabilities() error = %v", err)
	}
	if !caps.IPMIv20 {
		t.Error("capabilities do not announce IPMI v2.0")
	}
	if c.ConsoleSessionID() == 0 {
		t.Error("ConsoleSessionID() = 0 after capabilities")
	}

	if err := c.StartSession(ctx, testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret"), nil); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if !c.IsSessionValid() {
		t.Fatalf("IsSessionValid() = false, state %s", c.State())
	}
	info, err := pair.BMC.Session(c.ManagedSessionID())
	if err != nil {
		t.Fatalf("BMC Session() error = %v", err)
	}
	if !info.Active || info.ConsoleSessionID != c.ConsoleSessionID() || !bytes.Equal(info.SIK, c.SIK()) {
		t.Errorf("BMC session = %+v, want active with the console's ID and SIK", info)
	}
	if got := testutil.ToFloat64(metrics.handshakes.WithLabelValues("ok")); got != 1 {
		t.Errorf("successful handshakes = %v, want 1", got)
	}

	results, _ := collect(c)
	cmd := chassisStatus()
	tag, err := c.SendIpmiCommand(cmd)
	if err != nil {
		t.Fatalf("SendIpmiCommand() error = %v", err)
	}
	r := waitResult(t, results, time.Second)
	if r.err != nil {
		t.Fatalf("listener error = %v", r.err)
	}
	if r.tag != tag || r.cmd != commands.Coder(cmd) {
		t.Errorf("listener got tag %d for %T, want tag %d", r.tag, r.cmd, tag)
	}
	if status, ok := r.response.(*commands.ChassisStatus); !ok || !status.PowerOn {
		t.Errorf("response = %+v, want chassis powered on", r.response)
	}
	if got := testutil.ToFloat64(metrics.commands.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.pending); got != 0 {
		t.Errorf("pending commands = %v, want 0", got)
	}

	if err := c.CloseSession(); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if c.State() != statemachine.Authcap || c.SIK() != nil {
		t.Errorf("after close: state %s, SIK %x", c.State(), c.SIK())
	}
	eventually(t, "BMC drops the session", func() bool { return len(pair.BMC.Sessions()) == 0 })

	if _, err := c.SendIpmiCommand(chassisStatus()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SendIpmiCommand() after close error = %v, want %v", err, ErrInvalidState)
	}

	// Authcap is stable: a new session can be started right away.
	if err := c.StartSession(ctx, testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret"), nil); err != nil {
		t.Fatalf("second StartSession() error = %v", err)
	}
	if !c.IsSessionValid() {
		t.Error("second session not valid")
	}
}

func TestInvalidState(t *testing.T) {
	pair := newPair(t, TestPairConfig{BMC: testBMCConfig()})
	ctx := context.Background()
	c := pair.Conn

	if _, err := c.GetChannelAuthenticationCapabilities(ctx, testSuite, commands.PrivilegeUser); !errors.Is(err, ErrInvalidState) {
		t.Errorf("GetChannelAuthenticationCapabilities() error = %v, want %v", err, ErrInvalidState)
	}
	if err := c.StartSession(ctx, testSuite, commands.PrivilegeUser, "admin", nil, nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StartSession() error = %v, want %v", err, ErrInvalidState)
	}
	if _, err := c.SendIpmiCommand(chassisStatus()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SendIpmiCommand() error = %v, want %v", err, ErrInvalidState)
	}
	if err := c.CloseSession(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("CloseSession() error = %v, want %v", err, ErrInvalidState)
	}
	if err := c.KeepAlive(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("KeepAlive() error = %v, want %v", err, ErrInvalidState)
	}
	if n := pair.BMC.Count(message.NetFnAppRequest, commands.CmdGetChannelAuthenticationCapabilities); n != 0 {
		t.Errorf("BMC saw %d requests, want none", n)
	}
}

func TestSkipCiphers(t *testing.T) {
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{SkipCiphers: true},
	})
	if pair.Conn.State() != statemachine.Ciphers {
		t.Fatalf("State() = %s, want Ciphers", pair.Conn.State())
	}
	if err := pair.Handshake(context.Background(), testSuite, commands.PrivilegeOperator, "admin", []byte("secret")); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if n := pair.BMC.Count(message.NetFnAppRequest, commands.CmdGetChannelCipherSuites); n != 0 {
		t.Errorf("BMC saw %d cipher suite requests, want 0", n)
	}
}

func TestTimeoutRewinds(t *testing.T) {
	var drop atomic.Bool
	bmcConfig := testBMCConfig()
	bmcConfig.Drop = func([]byte) bool { return drop.Load() }
	pair := newPair(t, TestPairConfig{
		BMC:        bmcConfig,
		Connection: Config{Timeout: 50 * time.Millisecond},
	})
	ctx := context.Background()
	c := pair.Conn

	drop.Store(true)
	start := time.Now()
	if _, err := c.GetAvailableCipherSuites(ctx); !errors.Is(err, ErrTimeout) {
		t.Fatalf("GetAvailableCipherSuites() error = %v, want %v", err, ErrTimeout)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if c.State() != statemachine.Uninitialized {
		t.Errorf("State() = %s, want Uninitialized", c.State())
	}

	drop.Store(false)
	if _, err := c.GetAvailableCipherSuites(ctx); err != nil {
		t.Fatalf("retry error = %v", err)
	}

	drop.Store(true)
	if _, err := c.GetChannelAuthenticationCapabilities(ctx, testSuite, commands.PrivilegeUser); !errors.Is(err, ErrTimeout) {
		t.Fatalf("GetChannelAuthenticationCapabilities() error = %v, want %v", err, ErrTimeout)
	}
	if c.State() != statemachine.Ciphers {
		t.Errorf("State() = %s, want Ciphers", c.State())
	}
}

func TestContextCanceled(t *testing.T) {
	pair := newPair(t, TestPairConfig{
		BMC: bmcsim.Config{Drop: func([]byte) bool { return true }},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pair.Conn.GetAvailableCipherSuites(ctx)
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v wrapping %v", err, ErrTimeout, context.Canceled)
	}
	if pair.Conn.State() != statemachine.Uninitialized {
		t.Errorf("State() = %s, want Uninitialized", pair.Conn.State())
	}
}

func TestHandshakeRejected(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		metrics := NewMetrics("test")
		pair := newPair(t, TestPairConfig{
			BMC:        testBMCConfig(),
			Connection: Config{SkipCiphers: true, Metrics: metrics},
		})
		err := pair.Handshake(ctx, testSuite, commands.PrivilegeAdministrator, "admin", []byte("guess"))
		if !errors.Is(err, rakp.ErrInvalidAuthCode) {
			t.Fatalf("Handshake() error = %v, want %v", err, rakp.ErrInvalidAuthCode)
		}
		if pair.Conn.State() != statemachine.Authcap {
			t.Errorf("State() = %s, want Authcap", pair.Conn.State())
		}
		eventually(t, "BMC drops the abandoned session", func() bool { return len(pair.BMC.Sessions()) == 0 })
		if got := testutil.ToFloat64(metrics.handshakes.WithLabelValues("failed")); got != 1 {
			t.Errorf("failed handshakes = %v, want 1", got)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		pair := newPair(t, TestPairConfig{
			BMC:        testBMCConfig(),
			Connection: Config{SkipCiphers: true},
		})
		err := pair.Handshake(ctx, testSuite, commands.PrivilegeAdministrator, "mallory", []byte("secret"))
		var statusErr *rakp.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != rakp.StatusUnauthorizedName {
			t.Fatalf("Handshake() error = %v, want %s", err, rakp.StatusUnauthorizedName)
		}
		if pair.Conn.State() != statemachine.Authcap {
			t.Errorf("State() = %s, want Authcap", pair.Conn.State())
		}
	})

	t.Run("suite not offered", func(t *testing.T) {
		pair := newPair(t, TestPairConfig{
			BMC:        testBMCConfig(),
			Connection: Config{SkipCiphers: true},
		})
		err := pair.Handshake(ctx, security.StandardCipherSuites[8], commands.PrivilegeAdministrator, "admin", []byte("secret"))
		var statusErr *rakp.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != rakp.StatusNoCipherSuiteMatch {
			t.Fatalf("Handshake() error = %v, want %s", err, rakp.StatusNoCipherSuiteMatch)
		}
		if pair.Conn.State() != statemachine.Authcap {
			t.Errorf("State() = %s, want Authcap", pair.Conn.State())
		}
	})
}

func TestCommandOutcomes(t *testing.T) {
	var drop atomic.Bool
	bmcConfig := testBMCConfig()
	bmcConfig.Drop = func([]byte) bool { return drop.Load() }

	metrics := NewMetrics("test")
	pair := newPair(t, TestPairConfig{
		BMC: bmcConfig,
		Connection: Config{
			Timeout:         100 * time.Millisecond,
			SweepInterval:   10 * time.Millisecond,
			KeepAlivePeriod: -1,
			Metrics:         metrics,
		},
	})
	if err := pair.Handshake(context.Background(), testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret")); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	c := pair.Conn
	results, id := collect(c)

	t.Run("completion code", func(t *testing.T) {
		pair.BMC.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus,
			func(*message.LANRequest) (message.CompletionCode, []byte) {
				return message.CompletionNodeBusy, nil
			})

		tag, err := c.SendIpmiCommand(chassisStatus())
		if err != nil {
			t.Fatalf("SendIpmiCommand() error = %v", err)
		}
		r := waitResult(t, results, time.Second)
		var cc *message.CompletionError
		if r.tag != tag || !errors.As(r.err, &cc) || cc.Code != message.CompletionNodeBusy {
			t.Fatalf("listener got tag %d err %v, want tag %d and %s", r.tag, r.err, tag, message.CompletionNodeBusy)
		}
		if !cc.Retryable() {
			t.Error("node busy is not retryable")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		drop.Store(true)
		defer drop.Store(false)

		tag, err := c.SendIpmiCommand(chassisStatus())
		if err != nil {
			t.Fatalf("SendIpmiCommand() error = %v", err)
		}
		r := waitResult(t, results, time.Second)
		if r.tag != tag || !errors.Is(r.err, ErrTimeout) {
			t.Fatalf("listener got tag %d err %v, want tag %d and %v", r.tag, r.err, tag, ErrTimeout)
		}
		if got := testutil.ToFloat64(metrics.commands.WithLabelValues("timeout")); got != 1 {
			t.Errorf("timed out commands = %v, want 1", got)
		}
		if !c.IsSessionValid() {
			t.Error("a command timeout ended the session")
		}
	})

	t.Run("queue full", func(t *testing.T) {
		drop.Store(true)
		defer drop.Store(false)

		for i := 0; i < queue.MaxPending; i++ {
			if _, err := c.SendIpmiCommand(chassisStatus()); err != nil {
				t.Fatalf("SendIpmiCommand() #%d error = %v", i, err)
			}
		}
		if _, err := c.SendIpmiCommand(chassisStatus()); !errors.Is(err, queue.ErrQueueFull) {
			t.Fatalf("SendIpmiCommand() on a full queue error = %v, want %v", err, queue.ErrQueueFull)
		}
		for i := 0; i < queue.MaxPending; i++ {
			if r := waitResult(t, results, time.Second); !errors.Is(r.err, ErrTimeout) {
				t.Errorf("result %d error = %v, want %v", i, r.err, ErrTimeout)
			}
		}
	})

	c.UnregisterListener(id)
	if _, err := c.SendIpmiCommand(chassisStatus()); err != nil {
		t.Fatalf("SendIpmiCommand() error = %v", err)
	}
	select {
	case r := <-results:
		t.Errorf("unregistered listener notified: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestKeepAlive(t *testing.T) {
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{KeepAlivePeriod: 20 * time.Millisecond},
	})
	if err := pair.Handshake(context.Background(), testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret")); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	results, _ := collect(pair.Conn)

	// One request comes from the handshake.
	eventually(t, "keepalives reach the BMC", func() bool {
		return pair.BMC.Count(message.NetFnAppRequest, commands.CmdGetChannelAuthenticationCapabilities) >= 3
	})
	select {
	case r := <-results:
		t.Errorf("keepalive reached a listener: %+v", r)
	default:
	}
	if !pair.Conn.IsSessionValid() {
		t.Error("session not valid after keepalives")
	}
}

func TestHandleMessageIgnoresOtherSenders(t *testing.T) {
	metrics := NewMetrics("test")
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{Metrics: metrics},
	})

	pair.Conn.HandleMessage(&transport.ReceivedMessage{
		Data:     message.EncodePresencePing(1),
		PeerAddr: &net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 623},
	})
	if got := testutil.ToFloat64(metrics.packetsReceived); got != 0 {
		t.Errorf("received packets = %v, want 0", got)
	}
}

func TestLostRAKP2(t *testing.T) {
	var lost atomic.Bool
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{Timeout: 50 * time.Millisecond},
		Pipe: transport.PipeConfig{
			Filter: func(dir transport.Direction, raw []byte) bool {
				if dir != transport.ToConsole || len(raw) < 6 || message.AuthType(raw[4]) != message.AuthTypeRMCPPlus {
					return true
				}
				if message.PayloadType(raw[5]&0x3F) != message.PayloadTypeRAKP2 {
					return true
				}
				return !lost.CompareAndSwap(false, true)
			},
		},
	})
	ctx := context.Background()
	c := pair.Conn

	if _, err := c.GetAvailableCipherSuites(ctx); err != nil {
		t.Fatalf("GetAvailableCipherSuites() error = %v", err)
	}
	if _, err := c.GetChannelAuthenticationCapabilities(ctx, testSuite, commands.PrivilegeAdministrator); err != nil {
		t.Fatalf("GetChannelAuthenticationCapabilities() error = %v", err)
	}

	err := c.StartSession(ctx, testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret"), nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("StartSession() error = %v, want %v", err, ErrTimeout)
	}
	if c.State() != statemachine.Authcap {
		t.Errorf("State() = %s, want Authcap", c.State())
	}
	if got := pair.Pipe.Stats().Filtered; got != 1 {
		t.Errorf("Pipe.Stats().Filtered = %d, want 1", got)
	}

	if err := c.StartSession(ctx, testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret"), nil); err != nil {
		t.Fatalf("StartSession() retry error = %v", err)
	}
	if !c.IsSessionValid() {
		t.Error("IsSessionValid() = false after the retry")
	}
}

func TestSessionWithoutAuthentication(t *testing.T) {
	suite := security.StandardCipherSuites[0]
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{KeepAlivePeriod: -1},
	})
	c := pair.Conn

	if err := pair.Handshake(context.Background(), suite, commands.PrivilegeAdministrator, "admin", []byte("secret")); err != nil {
		t.Fatalf("Handshake() error = %v, state %s", err, c.State())
	}
	if !c.IsSessionValid() {
		t.Fatalf("IsSessionValid() = false, state %s", c.State())
	}
	if sik := c.SIK(); sik != nil {
		t.Errorf("SIK() = %x, want nil for RAKP-none", sik)
	}

	results, _ := collect(c)
	cmd := &commands.GetChassisStatus{Params: commands.V20Params(suite)}
	if _, err := c.SendIpmiCommand(cmd); err != nil {
		t.Fatalf("SendIpmiCommand() error = %v", err)
	}
	r := waitResult(t, results, time.Second)
	if r.err != nil {
		t.Fatalf("chassis status error = %v", r.err)
	}
	if status, ok := r.response.(*commands.ChassisStatus); !ok || !status.PowerOn {
		t.Errorf("response = %#v, want power on", r.response)
	}
}

func TestDisconnectEndsSession(t *testing.T) {
	pair := newPair(t, TestPairConfig{
		BMC:        testBMCConfig(),
		Connection: Config{KeepAlivePeriod: -1},
	})
	c := pair.Conn

	if err := pair.Handshake(context.Background(), testSuite, commands.PrivilegeAdministrator, "admin", []byte("secret")); err != nil {
		t.Fatalf("Handshake() error = %v", err)
	}
	if !c.IsSessionValid() {
		t.Fatalf("IsSessionValid() = false, state %s", c.State())
	}

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if c.IsSessionValid() {
		t.Error("IsSessionValid() = true after Disconnect")
	}
	if c.State() != statemachine.Authcap {
		t.Errorf("State() = %s, want Authcap", c.State())
	}
	if c.SIK() != nil {
		t.Error("SIK() still set after Disconnect")
	}
	if _, err := c.SendIpmiCommand(chassisStatus()); err == nil {
		t.Error("SendIpmiCommand() after Disconnect succeeded")
	}
}
