package client

import (
	"fmt"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
)

// Default configuration values.
const (
	// DefaultRetries is how often a command rejected with a retryable
	// completion code is sent again.
	DefaultRetries = 3

	// DefaultRetryDelay is the initial delay between retries.
	DefaultRetryDelay = 100 * time.Millisecond
)

// Config configures a Client.
type Config struct {
	// Username and Password are the BMC user credentials.
	Username string
	Password []byte

	// KG is the BMC key. Nil uses Password.
	KG []byte

	// Privilege is the requested session privilege.
	// Default: Administrator.
	Privilege commands.PrivilegeLevel

	// CipherSuite forces a cipher suite. If nil the strongest suite the BMC
	// offers is chosen, or security.DefaultCipherSuite with SkipCiphers.
	CipherSuite *security.CipherSuiteInfo

	// Retries bounds the retries of a command; negative disables them.
	// Default: DefaultRetries.
	Retries int

	// RetryDelay is the initial retry delay, growing exponentially.
	// Default: DefaultRetryDelay.
	RetryDelay time.Duration

	// Connection configures the underlying connection.
	Connection connection.Config

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Privilege == 0 {
		c.Privilege = commands.PrivilegeAdministrator
	}
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Connection.LoggerFactory == nil {
		c.Connection.LoggerFactory = c.LoggerFactory
	}
}

// Validate checks the configuration after defaults are applied.
func (c *Config) Validate() error {
	switch {
	case len(c.Username) > rakp.MaxUsernameLength:
		return rakp.ErrUsernameTooLong
	case len(c.Password) > rakp.MaxPasswordLength, len(c.KG) > rakp.MaxPasswordLength:
		return rakp.ErrPasswordTooLong
	case !c.Privilege.IsValid() || c.Privilege == commands.PrivilegeMaximumAvailable:
		return fmt.Errorf("%w: privilege %s", commands.ErrInvalidPrivilege, c.Privilege)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: negative retry delay %v", connection.ErrInvalidConfig, c.RetryDelay)
	}
	return c.Connection.Validate()
}
