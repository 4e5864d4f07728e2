package connection

import (
	"errors"
	"testing"
	"time"

	"github.com/backkem/ipmi/pkg/transport"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.applyDefaults()

	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
	if c.NotificationTimeout != DefaultNotificationTimeout {
		t.Errorf("NotificationTimeout = %v, want %v", c.NotificationTimeout, DefaultNotificationTimeout)
	}
	if c.KeepAlivePeriod != DefaultKeepAlivePeriod {
		t.Errorf("KeepAlivePeriod = %v, want %v", c.KeepAlivePeriod, DefaultKeepAlivePeriod)
	}
	if c.SweepInterval != DefaultSweepInterval {
		t.Errorf("SweepInterval = %v, want %v", c.SweepInterval, DefaultSweepInterval)
	}
	if c.Port != transport.DefaultPort {
		t.Errorf("Port = %d, want %d", c.Port, transport.DefaultPort)
	}
	if c.Rand == nil {
		t.Error("Rand not defaulted")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigKeepAliveDisabled(t *testing.T) {
	c := Config{KeepAlivePeriod: -1}
	c.applyDefaults()
	if c.KeepAlivePeriod >= 0 {
		t.Errorf("KeepAlivePeriod = %v, want it to stay disabled", c.KeepAlivePeriod)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"negative timeout", Config{Timeout: -time.Second}},
		{"negative notification timeout", Config{NotificationTimeout: -time.Millisecond}},
		{"negative sweep", Config{SweepInterval: -time.Millisecond}},
		{"negative port", Config{Port: -1}},
		{"port too large", Config{Port: 65536}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			c.applyDefaults()
			if err := c.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}
