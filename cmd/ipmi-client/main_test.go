package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/backkem/ipmi/pkg/bmcsim"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipmi.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
host: 10.0.0.5
port: 6230
username: admin
password: secret
privilege: operator
cipher_suite: 3
timeout: 2s
retry_delay: 50ms
keepalive: 10s
log_level: debug
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Host != "10.0.0.5" || cfg.Port != 6230 || cfg.Username != "admin" || cfg.Password != "secret" {
		t.Errorf("loadConfig() = %+v", cfg)
	}
	if cfg.Timeout != 2*time.Second || cfg.RetryDelay != 50*time.Millisecond || cfg.KeepAlive != 10*time.Second {
		t.Errorf("durations = %v, %v, %v", cfg.Timeout, cfg.RetryDelay, cfg.KeepAlive)
	}
	if cfg.CipherSuite != 3 || cfg.Privilege != "operator" || cfg.LogLevel != "debug" {
		t.Errorf("loadConfig() = %+v", cfg)
	}
	// Keys missing from the file keep their defaults.
	if cfg.Retries != defaultFileConfig().Retries {
		t.Errorf("Retries = %d, want default %d", cfg.Retries, defaultFileConfig().Retries)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loadConfig(missing) succeeded")
	}
	if _, err := loadConfig(writeConfig(t, "timeout: [1, 2]\n")); err == nil {
		t.Error("loadConfig(invalid) succeeded")
	}
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") error = %v", err)
	}
	if cfg != defaultFileConfig() {
		t.Errorf("loadConfig(\"\") = %+v, want defaults", cfg)
	}
}

func TestTarget(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"10.0.0.5", 0, "10.0.0.5"},
		{"10.0.0.5", 6230, "10.0.0.5:6230"},
		{"10.0.0.5:700", 6230, "10.0.0.5:700"},
		{"bmc.example", 6230, "bmc.example:6230"},
		{"fd00::1", 6230, "[fd00::1]:6230"},
		{"[fd00::1]", 6230, "[fd00::1]:6230"},
		{"[fd00::1]:700", 6230, "[fd00::1]:700"},
	}
	for _, tt := range tests {
		got, err := fileConfig{Host: tt.host, Port: tt.port}.target()
		if err != nil {
			t.Fatalf("target(%q) error = %v", tt.host, err)
		}
		if got != tt.want {
			t.Errorf("target(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}

	if _, err := (fileConfig{}).target(); err == nil {
		t.Error("target() without host succeeded")
	}
}

func TestClientConfig(t *testing.T) {
	f := defaultFileConfig()
	f.Username = "admin"
	f.Password = "secret"
	f.KeepAlive = -1

	cfg, err := f.clientConfig(nil, nil)
	if err != nil {
		t.Fatalf("clientConfig() error = %v", err)
	}
	if cfg.CipherSuite != nil {
		t.Errorf("CipherSuite = %v, want nil", cfg.CipherSuite)
	}
	if cfg.Privilege != commands.PrivilegeAdministrator {
		t.Errorf("Privilege = %s, want Administrator", cfg.Privilege)
	}
	if cfg.KG != nil {
		t.Errorf("KG = %x, want nil", cfg.KG)
	}
	if cfg.Connection.KeepAlivePeriod != -1 {
		t.Errorf("KeepAlivePeriod = %v, want -1", cfg.Connection.KeepAlivePeriod)
	}

	f.CipherSuite = 17
	f.KG = "key"
	cfg, err = f.clientConfig(nil, nil)
	if err != nil {
		t.Fatalf("clientConfig() error = %v", err)
	}
	if cfg.CipherSuite == nil || cfg.CipherSuite.ID != 17 {
		t.Errorf("CipherSuite = %v, want 17", cfg.CipherSuite)
	}
	if string(cfg.KG) != "key" {
		t.Errorf("KG = %q, want \"key\"", cfg.KG)
	}

	bad := []fileConfig{
		{Privilege: "root", CipherSuite: -1},
		{Privilege: "user", CipherSuite: 300},
		{Privilege: "user", CipherSuite: 200},
	}
	for _, b := range bad {
		if _, err := b.clientConfig(nil, nil); err == nil {
			t.Errorf("clientConfig(%+v) succeeded", b)
		}
	}
}

func TestNewLoggerFactory(t *testing.T) {
	var buf bytes.Buffer
	lf, err := newLoggerFactory("INFO", &buf)
	if err != nil {
		t.Fatalf("newLoggerFactory() error = %v", err)
	}
	log := lf.NewLogger("test")
	log.Debug("hidden")
	log.Info("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("log output = %q", out)
	}

	if _, err := newLoggerFactory("verbose", &buf); err == nil {
		t.Error("newLoggerFactory(verbose) succeeded")
	}
}

func startBMC(t *testing.T) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	bmc := bmcsim.New(bmcsim.Config{
		Username:      "admin",
		Password:      []byte("secret"),
		ChassisStatus: commands.ChassisStatus{PowerOn: true},
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		bmc.Serve(conn)
	}()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return conn.LocalAddr().(*net.UDPAddr)
}

// run executes the root command and returns its output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestCommands(t *testing.T) {
	bmc := startBMC(t)
	// The file names a host nobody listens on; the flag overrides it.
	config := writeConfig(t, "host: 192.0.2.1\nusername: admin\npassword: secret\nlog_level: disabled\n")
	common := []string{"--config", config, "-H", bmc.String(), "--timeout", "1s", "--keepalive=-1s"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"ciphers", []string{"ciphers"}, []string{"ID", "17", "HMAC-SHA256"}},
		{"authcap", []string{"authcap"}, []string{"IPMI v2.0", ": yes"}},
		{"chassis status", []string{"chassis", "status"}, []string{"System Power", ": on"}},
		{"privilege", []string{"privilege", "operator"}, []string{"Privilege: Operator"}},
		{"forced suite", []string{"-C", "3", "chassis", "status"}, []string{": on"}},
		{"discover", []string{"discover", "--ping-timeout", "200ms", bmc.String()}, []string{bmc.String(), "yes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, common...)...)
			if err != nil {
				t.Fatalf("%s error = %v\n%s", tt.name, err, out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("%s output missing %q:\n%s", tt.name, w, out)
				}
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	bmc := startBMC(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no host", []string{"chassis", "status"}},
		{"wrong password", []string{"-H", bmc.String(), "-U", "admin", "-P", "wrong", "chassis", "status"}},
		{"bad privilege", []string{"-H", bmc.String(), "-L", "root", "chassis", "status"}},
		{"bad log level", []string{"--log-level", "verbose", "ciphers"}},
		{"missing config", []string{"--config", "/nonexistent/ipmi.yaml", "ciphers"}},
		{"bad watch interval", []string{"-H", bmc.String(), "watch", "--interval", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, append(tt.args, "--timeout", "500ms", "--keepalive=-1s")...); err == nil {
				t.Errorf("%s succeeded:\n%s", tt.name, out)
			}
		})
	}
}

func TestWatch(t *testing.T) {
	bmc := startBMC(t)
	a := &app{cfg: defaultFileConfig()}
	a.cfg.Host = bmc.String()
	a.cfg.Username = "admin"
	a.cfg.Password = "secret"
	a.cfg.KeepAlive = -1
	a.cfg.LogLevel = "disabled"
	a.cfg.MetricsAddr = "127.0.0.1:0"

	var err error
	if a.loggerFactory, err = newLoggerFactory(a.cfg.LogLevel, os.Stderr); err != nil {
		t.Fatal(err)
	}
	a.log = a.loggerFactory.NewLogger("test")
	a.metrics = connection.NewMetrics("test")
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(a.metrics)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	if err := a.watch(ctx, &out, 20*time.Millisecond); err != nil {
		t.Fatalf("watch() error = %v", err)
	}
	// The power state never changes, so it is printed once.
	if n := strings.Count(out.String(), "power on"); n != 1 {
		t.Errorf("watch() printed %d power lines:\n%s", n, out.String())
	}
}
