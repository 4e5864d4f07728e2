// Package integration provides test infrastructure for end-to-end tests of
// the IPMI client against simulated BMCs over loopback UDP.
package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/bmcsim"
	"github.com/backkem/ipmi/pkg/client"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
)

// Test credentials of the simulated BMCs.
const (
	TestUsername = "admin"
	TestPassword = "secret"
)

// TestBMC is a simulated BMC answering on a loopback UDP socket.
type TestBMC struct {
	*bmcsim.BMC

	// Addr is the UDP address the BMC answers on.
	Addr *net.UDPAddr
}

// StartBMC serves a simulated BMC until the test ends. Empty credentials
// default to TestUsername and TestPassword.
func StartBMC(t *testing.T, config bmcsim.Config) *TestBMC {
	t.Helper()

	if config.Username == "" {
		config.Username = TestUsername
	}
	if config.Password == nil {
		config.Password = []byte(TestPassword)
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	bmc := bmcsim.New(config)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bmc.Serve(conn); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})

	return &TestBMC{BMC: bmc, Addr: conn.LocalAddr().(*net.UDPAddr)}
}

// ClientConfig returns a client configuration with the test credentials and
// timeouts short enough for tests. Keepalives are disabled.
func ClientConfig() client.Config {
	return client.Config{
		Username:   TestUsername,
		Password:   []byte(TestPassword),
		RetryDelay: time.Millisecond,
		Connection: connection.Config{
			Timeout:         time.Second,
			SweepInterval:   10 * time.Millisecond,
			KeepAlivePeriod: -1,
		},
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	}
}

// TestPair holds a simulated BMC and a client with an open session.
//
// Example usage:
//
//	pair := NewTestPair(t, TestPairConfig{})
//	status, err := pair.Client.ChassisStatus(ctx)
type TestPair struct {
	// BMC is the BMC under test.
	BMC *TestBMC

	// Client holds the session with BMC.
	Client *client.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// TestPairConfig configures the test pair creation.
type TestPairConfig struct {
	// BMC configures the simulated BMC. The ChassisStatus reports power on
	// unless PowerOff is set.
	BMC bmcsim.Config

	// PowerOff reports the chassis powered off.
	PowerOff bool

	// Client overrides ClientConfig. If nil, ClientConfig is used.
	Client *client.Config
}

// NewTestPair starts a BMC and dials it. The pair is closed when the test
// ends.
func NewTestPair(t *testing.T, config TestPairConfig) *TestPair {
	t.Helper()

	if !config.PowerOff {
		config.BMC.ChassisStatus.PowerOn = true
	}
	bmc := StartBMC(t, config.BMC)

	cc := ClientConfig()
	if config.Client != nil {
		cc = *config.Client
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := client.Dial(ctx, bmc.Addr.String(), cc)
	if err != nil {
		cancel()
		t.Fatalf("Dial: %v", err)
	}

	pair := &TestPair{BMC: bmc, Client: c, ctx: ctx, cancel: cancel}
	t.Cleanup(pair.Close)
	return pair
}

// Context returns the context bounding the pair.
func (p *TestPair) Context() context.Context {
	return p.ctx
}

// Close closes the session and releases the client. It is safe to call
// more than once.
func (p *TestPair) Close() {
	p.Client.Close()
	p.cancel()
}

// ManagedSessionID returns the BMC side session ID of the pair.
func (p *TestPair) ManagedSessionID() uint32 {
	return p.Client.Conn().ManagedSessionID()
}

// Privilege returns the privilege the BMC recorded for the session.
func (p *TestPair) Privilege(t *testing.T) commands.PrivilegeLevel {
	t.Helper()
	info, err := p.BMC.Session(p.ManagedSessionID())
	if err != nil {
		t.Fatalf("BMC session: %v", err)
	}
	return info.Privilege
}
