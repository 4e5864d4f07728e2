package connection

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/transport"
)

// Default configuration values.
const (
	// DefaultTimeout bounds each blocking handshake step and the age of
	// pending commands.
	DefaultTimeout = 5 * time.Second

	// DefaultNotificationTimeout bounds how long a received response waits
	// for the blocked caller to pick it up.
	DefaultNotificationTimeout = 250 * time.Millisecond

	// DefaultKeepAlivePeriod is how often an idle session is refreshed.
	DefaultKeepAlivePeriod = 30 * time.Second

	// DefaultSweepInterval is the period of the pending command sweep.
	DefaultSweepInterval = 500 * time.Millisecond
)

// Config configures a Connection.
type Config struct {
	// Timeout bounds each blocking step and the age of pending commands.
	// Default: DefaultTimeout.
	Timeout time.Duration

	// NotificationTimeout bounds the hand-over of a response to the caller.
	// Default: DefaultNotificationTimeout.
	NotificationTimeout time.Duration

	// KeepAlivePeriod is the keepalive interval while the session is valid.
	// Zero selects DefaultKeepAlivePeriod; a negative value disables it.
	KeepAlivePeriod time.Duration

	// SweepInterval is the period of the pending command sweep.
	// Default: DefaultSweepInterval.
	SweepInterval time.Duration

	// Port is used when the remote UDP address carries no port.
	// Default: transport.DefaultPort.
	Port int

	// StrictIntegrity drops session messages failing the integrity check.
	// By default they are logged and processed.
	StrictIntegrity bool

	// SkipCiphers starts in state Ciphers, skipping cipher suite discovery.
	SkipCiphers bool

	// Metrics receives connection statistics. Optional.
	Metrics *Metrics

	// Rand supplies session IDs and RAKP randoms. Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.NotificationTimeout == 0 {
		c.NotificationTimeout = DefaultNotificationTimeout
	}
	if c.KeepAlivePeriod == 0 {
		c.KeepAlivePeriod = DefaultKeepAlivePeriod
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Port == 0 {
		c.Port = transport.DefaultPort
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return fmt.Errorf("%w: negative timeout %v", ErrInvalidConfig, c.Timeout)
	case c.NotificationTimeout < 0:
		return fmt.Errorf("%w: negative notification timeout %v", ErrInvalidConfig, c.NotificationTimeout)
	case c.SweepInterval < 0:
		return fmt.Errorf("%w: negative sweep interval %v", ErrInvalidConfig, c.SweepInterval)
	case c.Port < 0 || c.Port > 0xFFFF:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	return nil
}
