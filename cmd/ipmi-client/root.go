package main

import (
	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/backkem/ipmi/pkg/connection"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "ipmi_client"

// app holds the state shared by all commands.
type app struct {
	configFile string
	// flags receives the flag values; only flags set on the command line
	// override the configuration file.
	flags fileConfig
	cfg   fileConfig

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
	registry      *prometheus.Registry
	metrics       *connection.Metrics
}

func newRootCommand() *cobra.Command {
	a := &app{flags: defaultFileConfig()}

	root := &cobra.Command{
		Use:               "ipmi-client",
		Short:             "IPMI v2.0 RMCP+ client.",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "YAML configuration file")
	pf.StringVarP(&a.flags.Host, "host", "H", "", "BMC host or host:port")
	pf.IntVarP(&a.flags.Port, "port", "p", 0, "BMC UDP port (default 623)")
	pf.StringVarP(&a.flags.Username, "username", "U", "", "BMC user name")
	pf.StringVarP(&a.flags.Password, "password", "P", "", "BMC password")
	pf.StringVarP(&a.flags.KG, "kg", "k", "", "BMC key, if it differs from the password")
	pf.StringVarP(&a.flags.Privilege, "privilege", "L", a.flags.Privilege, "session privilege level")
	pf.IntVarP(&a.flags.CipherSuite, "cipher", "C", a.flags.CipherSuite, "cipher suite ID, -1 for the strongest offered")
	pf.DurationVar(&a.flags.Timeout, "timeout", a.flags.Timeout, "timeout of each request")
	pf.IntVar(&a.flags.Retries, "retries", a.flags.Retries, "retries of commands the BMC rejects as busy")
	pf.DurationVar(&a.flags.RetryDelay, "retry-delay", a.flags.RetryDelay, "initial delay between retries")
	pf.DurationVar(&a.flags.KeepAlive, "keepalive", a.flags.KeepAlive, "session keepalive period, negative disables")
	pf.BoolVar(&a.flags.SkipCiphers, "skip-ciphers", false, "skip cipher suite discovery")
	pf.BoolVar(&a.flags.StrictIntegrity, "strict-integrity", false, "drop messages failing the integrity check")
	pf.StringVar(&a.flags.LogLevel, "log-level", a.flags.LogLevel, "disabled, error, warn, info, debug or trace")
	pf.StringVar(&a.flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		a.ciphersCommand(),
		a.authcapCommand(),
		a.chassisCommand(),
		a.privilegeCommand(),
		a.watchCommand(),
		a.discoverCommand(),
	)
	return root
}

// setup loads the configuration, applies the flags set on the command line
// and builds the logger factory and metrics registry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.configFile)
	if err != nil {
		return err
	}

	overrides := []struct {
		flag  string
		apply func()
	}{
		{"host", func() { cfg.Host = a.flags.Host }},
		{"port", func() { cfg.Port = a.flags.Port }},
		{"username", func() { cfg.Username = a.flags.Username }},
		{"password", func() { cfg.Password = a.flags.Password }},
		{"kg", func() { cfg.KG = a.flags.KG }},
		{"privilege", func() { cfg.Privilege = a.flags.Privilege }},
		{"cipher", func() { cfg.CipherSuite = a.flags.CipherSuite }},
		{"timeout", func() { cfg.Timeout = a.flags.Timeout }},
		{"retries", func() { cfg.Retries = a.flags.Retries }},
		{"retry-delay", func() { cfg.RetryDelay = a.flags.RetryDelay }},
		{"keepalive", func() { cfg.KeepAlive = a.flags.KeepAlive }},
		{"skip-ciphers", func() { cfg.SkipCiphers = a.flags.SkipCiphers }},
		{"strict-integrity", func() { cfg.StrictIntegrity = a.flags.StrictIntegrity }},
		{"log-level", func() { cfg.LogLevel = a.flags.LogLevel }},
		{"metrics-addr", func() { cfg.MetricsAddr = a.flags.MetricsAddr }},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			o.apply()
		}
	}
	a.cfg = cfg

	a.loggerFactory, err = newLoggerFactory(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = a.loggerFactory.NewLogger("ipmi-cli")

	a.registry = prometheus.NewRegistry()
	a.metrics = connection.NewMetrics(metricsNamespace)
	if err := a.registry.Register(a.metrics); err != nil {
		return err
	}
	return nil
}
