package connection

import (
	"context"
	"fmt"

	"github.com/backkem/ipmi/pkg/bmcsim"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/security"
	"github.com/backkem/ipmi/pkg/transport"
)

// =============================================================================
// Exported Test Infrastructure for E2E Testing
// =============================================================================

// TestPair connects a Connection to a simulated BMC over an in-memory pipe:
// Connection -> transport.Manager -> pipe -> bmcsim.BMC.
//
// Usage:
//
//	pair, _ := connection.NewTestPair(connection.TestPairConfig{
//		BMC: bmcsim.Config{Username: "admin", Password: []byte("secret")},
//	})
//	defer pair.Close()
//
//	pair.Handshake(ctx, suite, commands.PrivilegeAdministrator, "admin", []byte("secret"))
//	tag, _ := pair.Conn.SendIpmiCommand(cmd)
type TestPair struct {
	Pipe      *transport.Pipe
	Transport *transport.Manager
	BMC       *bmcsim.BMC
	Conn      *Connection

	served chan error
}

// TestPairConfig configures the test pair.
type TestPairConfig struct {
	// BMC configures the simulator.
	BMC bmcsim.Config

	// Connection configures the connection under test.
	Connection Config

	// Pipe configures the in-memory link. Its Filter can drop chosen
	// datagrams of the handshake.
	Pipe transport.PipeConfig
}

// NewTestPair creates a connected Connection and a serving BMC.
func NewTestPair(config TestPairConfig) (*TestPair, error) {
	pipe := transport.NewPipe(config.Pipe)
	consoleConn, bmcConn := pipe.PacketConns(transport.DefaultPort)

	mgr, err := transport.NewManager(transport.ManagerConfig{
		Conn:          consoleConn,
		LoggerFactory: config.Connection.LoggerFactory,
	})
	if err != nil {
		pipe.Close()
		return nil, err
	}

	p := &TestPair{
		Pipe:      pipe,
		Transport: mgr,
		BMC:       bmcsim.New(config.BMC),
		served:    make(chan error, 1),
	}

	conn, err := New(mgr, consoleConn.PeerAddr(), config.Connection)
	if err != nil {
		pipe.Close()
		return nil, err
	}
	p.Conn = conn

	if err := mgr.Start(); err != nil {
		pipe.Close()
		return nil, err
	}
	go func() { p.served <- p.BMC.Serve(bmcConn) }()

	if err := conn.Connect(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Handshake runs cipher suite discovery, the capabilities step and
// StartSession. Cipher suite discovery is skipped when the connection was
// created with SkipCiphers.
func (p *TestPair) Handshake(ctx context.Context, suite security.CipherSuiteInfo, privilege commands.PrivilegeLevel, username string, password []byte) error {
	if !p.Conn.config.SkipCiphers {
		if _, err := p.Conn.GetAvailableCipherSuites(ctx); err != nil {
			return fmt.Errorf("cipher suites: %w", err)
		}
	}
	if _, err := p.Conn.GetChannelAuthenticationCapabilities(ctx, suite, privilege); err != nil {
		return fmt.Errorf("authentication capabilities: %w", err)
	}
	return p.Conn.StartSession(ctx, suite, privilege, username, password, nil)
}

// Close disconnects and tears the pair down.
func (p *TestPair) Close() {
	p.Conn.Disconnect()
	p.Transport.Stop()
	p.Pipe.Close()
	<-p.served
}
