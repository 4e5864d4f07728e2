// Package client is a synchronous IPMI client on top of package connection.
// Dial resolves the BMC, runs cipher suite discovery, the authentication
// capabilities step and the RAKP handshake; Do sends a command and waits for
// its response, retrying rejections the BMC marks as transient.
package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/queue"
	"github.com/backkem/ipmi/pkg/security"
	"github.com/backkem/ipmi/pkg/transport"
)

// suitePreference orders the standard suites from strongest to weakest.
// Suite 0 has no authentication and is only used when forced.
var suitePreference = []uint8{17, 3, 16, 2, 8, 7, 1, 15, 6}

// SelectCipherSuite returns the most preferred suite in offered that this
// module can run.
func SelectCipherSuite(offered []security.CipherSuiteInfo) (security.CipherSuiteInfo, error) {
	for _, id := range suitePreference {
		for _, info := range offered {
			if !info.OEM && info.ID == id && info.Supported() {
				return info, nil
			}
		}
	}
	return security.CipherSuiteInfo{}, ErrNoCipherSuite
}

// Client is an established session with one BMC.
//
// Thread-safe for concurrent access.
type Client struct {
	config Config
	conn   *connection.Connection
	owned  *transport.Manager
	log    logging.LeveledLogger

	suite  security.CipherSuiteInfo
	suites []security.CipherSuiteInfo
	caps   *commands.ChannelAuthCapabilities

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a session with the BMC at host ("host" or "host:port"). The
// client owns a UDP socket that Close releases.
func Dial(ctx context.Context, host string, config Config) (*Client, error) {
	c, err := open(host, config)
	if err != nil {
		return nil, err
	}
	if err := c.handshake(ctx); err != nil {
		c.shutdown()
		return nil, err
	}
	return c, nil
}

// DialTransport opens a session with the BMC at remote over a shared
// transport. Close leaves the transport running.
func DialTransport(ctx context.Context, t connection.Transport, remote net.Addr, config Config) (*Client, error) {
	c, err := newClient(t, remote, config)
	if err != nil {
		return nil, err
	}
	if err := c.handshake(ctx); err != nil {
		c.shutdown()
		return nil, err
	}
	return c, nil
}

// Probe reads the cipher suites and authentication capabilities of the BMC
// at host without opening a session. With SkipCiphers no suites are read.
func Probe(ctx context.Context, host string, config Config) ([]security.CipherSuiteInfo, *commands.ChannelAuthCapabilities, error) {
	c, err := open(host, config)
	if err != nil {
		return nil, nil, err
	}
	defer c.shutdown()

	if err := c.capabilities(ctx); err != nil {
		return nil, nil, err
	}
	return c.suites, c.caps, nil
}

func open(host string, config Config) (*Client, error) {
	remote, err := transport.ResolveBMCAddr(host)
	if err != nil {
		return nil, err
	}
	mgr, err := transport.NewManager(transport.ManagerConfig{
		ListenAddr:    ":0",
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	if err := mgr.Start(); err != nil {
		mgr.Stop()
		return nil, err
	}

	c, err := newClient(mgr, remote, config)
	if err != nil {
		mgr.Stop()
		return nil, err
	}
	c.owned = mgr
	return c, nil
}

func newClient(t connection.Transport, remote net.Addr, config Config) (*Client, error) {
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := connection.New(t, remote, config.Connection)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(); err != nil {
		return nil, err
	}

	c := &Client{config: config, conn: conn}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("ipmi-client")
	}
	return c, nil
}

// capabilities runs cipher suite discovery unless skipped, picks the suite
// and reads the authentication capabilities.
func (c *Client) capabilities(ctx context.Context) error {
	if !c.config.Connection.SkipCiphers {
		suites, err := c.conn.GetAvailableCipherSuites(ctx)
		if err != nil {
			return err
		}
		c.suites = suites
	}

	switch {
	case c.config.CipherSuite != nil:
		c.suite = *c.config.CipherSuite
	case c.config.Connection.SkipCiphers:
		c.suite = security.DefaultCipherSuite().Info()
	default:
		suite, err := SelectCipherSuite(c.suites)
		if err != nil {
			return err
		}
		c.suite = suite
	}

	caps, err := c.conn.GetChannelAuthenticationCapabilities(ctx, c.suite, c.config.Privilege)
	if err != nil {
		return err
	}
	c.caps = caps
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	if err := c.capabilities(ctx); err != nil {
		return err
	}
	if c.log != nil {
		c.log.Debugf("opening session with %v using %s", c.conn.Remote(), c.suite)
	}
	return c.conn.StartSession(ctx, c.suite, c.config.Privilege,
		c.config.Username, c.config.Password, c.config.KG)
}

// Conn returns the underlying connection.
func (c *Client) Conn() *connection.Connection {
	return c.conn
}

// CipherSuite returns the suite of the session.
func (c *Client) CipherSuite() security.CipherSuiteInfo {
	return c.suite
}

// CipherSuites returns the suites the BMC offered, nil with SkipCiphers.
func (c *Client) CipherSuites() []security.CipherSuiteInfo {
	return c.suites
}

// Capabilities returns the authentication capabilities read while dialing.
func (c *Client) Capabilities() *commands.ChannelAuthCapabilities {
	return c.caps
}

// Params returns the session parameters to build command coders with.
func (c *Client) Params() commands.Params {
	return commands.V20Params(c.suite)
}

type result struct {
	response any
	err      error
}

// Do sends cmd and waits for its response. Commands rejected with a
// retryable completion code, or refused because too many commands are
// pending, are retried with exponential backoff up to Config.Retries times.
// A timeout is not retried; the command may have been executed.
//
// cmd must be a pointer: responses are matched to it by identity.
func (c *Client) Do(ctx context.Context, cmd commands.Coder) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.config.Retries)), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (any, error) {
		attempt++
		v, err := c.do(ctx, cmd)
		if err == nil {
			return v, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		if c.log != nil {
			c.log.Debugf("%s attempt %d: %v", commands.CommandName(cmd.CommandCode()), attempt, err)
		}
		return nil, err
	}, policy)
}

func (c *Client) do(ctx context.Context, cmd commands.Coder) (any, error) {
	results := make(chan result, 1)
	id := c.conn.RegisterListener(connection.ListenerFunc(func(_ uint8, got commands.Coder, response any, err error) {
		if got != cmd {
			return
		}
		select {
		case results <- result{response: response, err: err}:
		default:
		}
	}))
	defer c.conn.UnregisterListener(id)

	if _, err := c.conn.SendIpmiCommand(cmd); err != nil {
		return nil, err
	}

	select {
	case r := <-results:
		return r.response, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func retryable(err error) bool {
	if errors.Is(err, queue.ErrQueueFull) {
		return true
	}
	var cc *message.CompletionError
	return errors.As(err, &cc) && cc.Retryable()
}

// ChassisStatus reads the chassis power state.
func (c *Client) ChassisStatus(ctx context.Context) (*commands.ChassisStatus, error) {
	v, err := c.Do(ctx, &commands.GetChassisStatus{Params: c.Params()})
	if err != nil {
		return nil, err
	}
	status, ok := v.(*commands.ChassisStatus)
	if !ok {
		return nil, ErrUnexpectedResponse
	}
	return status, nil
}

// SetSessionPrivilegeLevel changes the privilege of the session and returns
// the new level. PrivilegeMaximumAvailable only reads the current level.
func (c *Client) SetSessionPrivilegeLevel(ctx context.Context, privilege commands.PrivilegeLevel) (commands.PrivilegeLevel, error) {
	v, err := c.Do(ctx, &commands.SetSessionPrivilegeLevel{Params: c.Params(), Privilege: privilege})
	if err != nil {
		return 0, err
	}
	level, ok := v.(commands.PrivilegeLevel)
	if !ok {
		return 0, ErrUnexpectedResponse
	}
	return level, nil
}

// Close closes the session on the BMC and releases the connection. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.conn.IsSessionValid() {
			if err := c.conn.CloseSession(); err != nil {
				c.closeErr = err
			}
		}
		c.shutdown()
	})
	return c.closeErr
}

func (c *Client) shutdown() {
	if err := c.conn.Disconnect(); err != nil && !errors.Is(err, connection.ErrClosed) && c.log != nil {
		c.log.Debugf("disconnect: %v", err)
	}
	if c.owned != nil {
		c.owned.Stop()
	}
}
