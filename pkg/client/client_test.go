package client

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backkem/ipmi/pkg/bmcsim"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/connection"
	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/rakp"
	"github.com/backkem/ipmi/pkg/security"
)

func serve(t *testing.T, bmc *bmcsim.BMC) string {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		bmc.Serve(conn)
	}()
	t.Cleanup(func() {
		conn.Close()
		<-done
	})
	return conn.LocalAddr().String()
}

func testConfig() Config {
	return Config{
		Username:   "admin",
		Password:   []byte("secret"),
		RetryDelay: time.Millisecond,
		Connection: connection.Config{
			Timeout:         500 * time.Millisecond,
			SweepInterval:   10 * time.Millisecond,
			KeepAlivePeriod: -1,
		},
	}
}

func newBMC() *bmcsim.BMC {
	return bmcsim.New(bmcsim.Config{
		Username:      "admin",
		Password:      []byte("secret"),
		ChassisStatus: commands.ChassisStatus{PowerOn: true, PowerRestorePolicy: commands.PowerRestorePrevious},
	})
}

func TestSelectCipherSuite(t *testing.T) {
	std := security.StandardCipherSuites
	tests := []struct {
		name    string
		offered []security.CipherSuiteInfo
		want    uint8
		wantErr bool
	}{
		{"strongest", []security.CipherSuiteInfo{std[0], std[1], std[3], std[17]}, 17, false},
		{"sha1", []security.CipherSuiteInfo{std[0], std[2], std[3]}, 3, false},
		{"skips rc4", []security.CipherSuiteInfo{std[4], std[5], std[1]}, 1, false},
		{"only none", []security.CipherSuiteInfo{std[0]}, 0, true},
		{"nothing usable", []security.CipherSuiteInfo{std[4], std[11]}, 0, true},
		{"oem", []security.CipherSuiteInfo{{ID: 3, OEM: true, IANA: 343}}, 0, true},
		{"empty", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectCipherSuite(tt.offered)
			if tt.wantErr {
				if !errors.Is(err, ErrNoCipherSuite) {
					t.Errorf("SelectCipherSuite() error = %v, want %v", err, ErrNoCipherSuite)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectCipherSuite() error = %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("SelectCipherSuite() = %s, want suite %d", got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   error
	}{
		{"long username", Config{Username: "a-very-long-username"}, rakp.ErrUsernameTooLong},
		{"long password", Config{Password: make([]byte, 21)}, rakp.ErrPasswordTooLong},
		{"long kg", Config{KG: make([]byte, 21)}, rakp.ErrPasswordTooLong},
		{"bad privilege", Config{Privilege: commands.PrivilegeLevel(9)}, commands.ErrInvalidPrivilege},
		{"negative delay", Config{RetryDelay: -time.Second}, connection.ErrInvalidConfig},
		{"bad connection", Config{Connection: connection.Config{Port: -1}}, connection.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.config
			c.applyDefaults()
			if err := c.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}

	var c Config
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() of defaults error = %v", err)
	}
	if c.Privilege != commands.PrivilegeAdministrator || c.Retries != DefaultRetries || c.RetryDelay != DefaultRetryDelay {
		t.Errorf("defaults = %+v", c)
	}
}

func TestDial(t *testing.T) {
	bmc := newBMC()
	addr := serve(t, bmc)
	ctx := context.Background()

	c, err := Dial(ctx, addr, testConfig())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if c.CipherSuite().ID != 17 {
		t.Errorf("CipherSuite() = %s, want suite 17", c.CipherSuite())
	}
	if len(c.CipherSuites()) != 5 {
		t.Errorf("CipherSuites() = %v, want 5 suites", c.CipherSuites())
	}
	if c.Capabilities() == nil || !c.Capabilities().IPMIv20 {
		t.Errorf("Capabilities() = %+v", c.Capabilities())
	}
	if !c.Conn().IsSessionValid() {
		t.Fatal("session not valid after Dial")
	}

	status, err := c.ChassisStatus(ctx)
	if err != nil {
		t.Fatalf("ChassisStatus() error = %v", err)
	}
	if !status.PowerOn || status.PowerRestorePolicy != commands.PowerRestorePrevious {
		t.Errorf("ChassisStatus() = %+v", status)
	}

	level, err := c.SetSessionPrivilegeLevel(ctx, commands.PrivilegeOperator)
	if err != nil {
		t.Fatalf("SetSessionPrivilegeLevel() error = %v", err)
	}
	if level != commands.PrivilegeOperator {
		t.Errorf("SetSessionPrivilegeLevel() = %s, want Operator", level)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() twice error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(bmc.Sessions()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("BMC kept the session after Close")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := c.ChassisStatus(ctx); !errors.Is(err, connection.ErrClosed) {
		t.Errorf("ChassisStatus() after Close error = %v, want %v", err, connection.ErrClosed)
	}
}

func TestDialOptions(t *testing.T) {
	addr := serve(t, newBMC())
	ctx := context.Background()

	t.Run("forced suite", func(t *testing.T) {
		config := testConfig()
		suite := security.StandardCipherSuites[2]
		config.CipherSuite = &suite
		c, err := Dial(ctx, addr, config)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()
		if c.CipherSuite() != suite {
			t.Errorf("CipherSuite() = %s, want %s", c.CipherSuite(), suite)
		}
	})

	t.Run("skip ciphers", func(t *testing.T) {
		config := testConfig()
		config.Connection.SkipCiphers = true
		c, err := Dial(ctx, addr, config)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer c.Close()
		if c.CipherSuites() != nil {
			t.Errorf("CipherSuites() = %v, want none", c.CipherSuites())
		}
		if c.CipherSuite().ID != security.DefaultCipherSuite().Info().ID {
			t.Errorf("CipherSuite() = %s, want the default suite", c.CipherSuite())
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		config := testConfig()
		config.Password = []byte("guess")
		if _, err := Dial(ctx, addr, config); !errors.Is(err, rakp.ErrInvalidAuthCode) {
			t.Errorf("Dial() error = %v, want %v", err, rakp.ErrInvalidAuthCode)
		}
	})

	t.Run("bad address", func(t *testing.T) {
		if _, err := Dial(ctx, "", testConfig()); err == nil {
			t.Error("Dial(\"\") succeeded")
		}
	})
}

func TestProbe(t *testing.T) {
	bmc := newBMC()
	addr := serve(t, bmc)

	suites, caps, err := Probe(context.Background(), addr, testConfig())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if len(suites) != 5 || caps == nil {
		t.Errorf("Probe() = %v, %+v", suites, caps)
	}
	if n := len(bmc.Sessions()); n != 0 {
		t.Errorf("Probe() left %d sessions on the BMC", n)
	}
}

func TestDoRetries(t *testing.T) {
	bmc := newBMC()
	addr := serve(t, bmc)
	ctx := context.Background()

	c, err := Dial(ctx, addr, testConfig())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	t.Run("transient", func(t *testing.T) {
		var calls atomic.Int32
		bmc.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus,
			func(*message.LANRequest) (message.CompletionCode, []byte) {
				if calls.Add(1) <= 2 {
					return message.CompletionNodeBusy, nil
				}
				return message.CompletionOK, (&commands.ChassisStatus{PowerOn: true}).Encode()
			})

		status, err := c.ChassisStatus(ctx)
		if err != nil {
			t.Fatalf("ChassisStatus() error = %v", err)
		}
		if !status.PowerOn {
			t.Errorf("ChassisStatus() = %+v", status)
		}
		if n := calls.Load(); n != 3 {
			t.Errorf("BMC handled %d requests, want 3", n)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		var calls atomic.Int32
		bmc.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus,
			func(*message.LANRequest) (message.CompletionCode, []byte) {
				calls.Add(1)
				return message.CompletionNodeBusy, nil
			})

		_, err := c.ChassisStatus(ctx)
		var cc *message.CompletionError
		if !errors.As(err, &cc) || cc.Code != message.CompletionNodeBusy {
			t.Fatalf("ChassisStatus() error = %v, want %s", err, message.CompletionNodeBusy)
		}
		if n := calls.Load(); n != DefaultRetries+1 {
			t.Errorf("BMC handled %d requests, want %d", n, DefaultRetries+1)
		}
	})

	t.Run("permanent", func(t *testing.T) {
		var calls atomic.Int32
		bmc.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus,
			func(*message.LANRequest) (message.CompletionCode, []byte) {
				calls.Add(1)
				return message.CompletionInvalidCommand, nil
			})

		_, err := c.ChassisStatus(ctx)
		var cc *message.CompletionError
		if !errors.As(err, &cc) || cc.Code != message.CompletionInvalidCommand {
			t.Fatalf("ChassisStatus() error = %v, want %s", err, message.CompletionInvalidCommand)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("BMC handled %d requests, want 1", n)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		bmc.SetHandler(message.NetFnChassisRequest, commands.CmdGetChassisStatus,
			func(*message.LANRequest) (message.CompletionCode, []byte) {
				return message.CompletionNodeBusy, nil
			})
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := c.ChassisStatus(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("ChassisStatus() error = %v, want %v", err, context.Canceled)
		}
	})
}

func TestDoTimeout(t *testing.T) {
	var drop atomic.Bool
	bmc := bmcsim.New(bmcsim.Config{
		Username: "admin",
		Password: []byte("secret"),
		Drop:     func([]byte) bool { return drop.Load() },
	})
	addr := serve(t, bmc)

	config := testConfig()
	config.Connection.Timeout = 100 * time.Millisecond
	c, err := Dial(context.Background(), addr, config)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	drop.Store(true)
	if _, err := c.ChassisStatus(context.Background()); !errors.Is(err, connection.ErrTimeout) {
		t.Errorf("ChassisStatus() error = %v, want %v", err, connection.ErrTimeout)
	}
	drop.Store(false)
	if _, err := c.ChassisStatus(context.Background()); err != nil {
		t.Errorf("ChassisStatus() after timeout error = %v", err)
	}
}
