package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pion/logging"
	"gopkg.in/yaml.v3"

	"github.com/backkem/ipmi/pkg/client"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
	"github.com/backkem/ipmi/pkg/security"
)

// fileConfig is the YAML configuration file. Flags override its values.
type fileConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	KG        string `yaml:"kg"`
	Privilege string `yaml:"privilege"`
	// CipherSuite forces a suite; -1 picks the strongest offered.
	CipherSuite     int           `yaml:"cipher_suite"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	KeepAlive       time.Duration `yaml:"keepalive"`
	SkipCiphers     bool          `yaml:"skip_ciphers"`
	StrictIntegrity bool          `yaml:"strict_integrity"`
	LogLevel        string        `yaml:"log_level"`
	MetricsAddr     string        `yaml:"metrics_addr"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Privilege:   "administrator",
		CipherSuite: -1,
		Timeout:     connection.DefaultTimeout,
		Retries:     client.DefaultRetries,
		RetryDelay:  client.DefaultRetryDelay,
		LogLevel:    "warn",
	}
}

// loadConfig reads the YAML file at path over the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// clientConfig converts the file configuration into a client.Config.
func (f fileConfig) clientConfig(lf logging.LoggerFactory, metrics *connection.Metrics) (client.Config, error) {
	privilege, err := commands.ParsePrivilegeLevel(f.Privilege)
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.Config{
		Username:   f.Username,
		Password:   []byte(f.Password),
		Privilege:  privilege,
		Retries:    f.Retries,
		RetryDelay: f.RetryDelay,
		Connection: connection.Config{
			Timeout:         f.Timeout,
			KeepAlivePeriod: f.KeepAlive,
			Port:            f.Port,
			StrictIntegrity: f.StrictIntegrity,
			SkipCiphers:     f.SkipCiphers,
			Metrics:         metrics,
		},
		LoggerFactory: lf,
	}
	if f.KG != "" {
		cfg.KG = []byte(f.KG)
	}
	if f.CipherSuite >= 0 {
		if f.CipherSuite > 0xFF {
			return client.Config{}, fmt.Errorf("cipher suite %d out of range", f.CipherSuite)
		}
		info, ok := security.LookupCipherSuite(uint8(f.CipherSuite))
		if !ok {
			return client.Config{}, fmt.Errorf("unknown cipher suite %d", f.CipherSuite)
		}
		cfg.CipherSuite = &info
	}
	return cfg, nil
}

// target returns the BMC address, with the configured port if the host
// carries none.
func (f fileConfig) target() (string, error) {
	if f.Host == "" {
		return "", fmt.Errorf("no BMC host configured")
	}
	if f.Port == 0 || strings.Contains(f.Host, "]:") || strings.Count(f.Host, ":") == 1 {
		return f.Host, nil
	}
	host := strings.Trim(f.Host, "[]")
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, f.Port), nil
	}
	return fmt.Sprintf("%s:%d", host, f.Port), nil
}

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// newLoggerFactory returns a pion logger factory writing at the named level.
func newLoggerFactory(level string, w io.Writer) (logging.LoggerFactory, error) {
	l, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return &logging.DefaultLoggerFactory{
		Writer:          w,
		DefaultLogLevel: l,
		ScopeLevels:     make(map[string]logging.LogLevel),
	}, nil
}
