package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/backkem/ipmi/pkg/client"
	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/discovery"
	"github.com/backkem/ipmi/pkg/security"
)

// dial opens a session with the configured BMC.
func (a *app) dial(ctx context.Context) (*client.Client, error) {
	target, err := a.cfg.target()
	if err != nil {
		return nil, err
	}
	cfg, err := a.cfg.clientConfig(a.loggerFactory, a.metrics)
	if err != nil {
		return nil, err
	}
	return client.Dial(ctx, target, cfg)
}

func (a *app) probe(ctx context.Context) ([]security.CipherSuiteInfo, *commands.ChannelAuthCapabilities, error) {
	target, err := a.cfg.target()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := a.cfg.clientConfig(a.loggerFactory, a.metrics)
	if err != nil {
		return nil, nil, err
	}
	return client.Probe(ctx, target, cfg)
}

func (a *app) ciphersCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ciphers",
		Short:   "List the cipher suites of the BMC.",
		Example: "ipmi-client -H 10.0.0.5 ciphers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg.SkipCiphers = false
			suites, _, err := a.probe(cmd.Context())
			if err != nil {
				return err
			}
			printCipherSuites(cmd.OutOrStdout(), suites)
			return nil
		},
	}
}

func (a *app) authcapCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "authcap",
		Short:   "Show the authentication capabilities of the BMC.",
		Example: "ipmi-client -H 10.0.0.5 -L operator authcap",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, caps, err := a.probe(cmd.Context())
			if err != nil {
				return err
			}
			printAuthCapabilities(cmd.OutOrStdout(), caps)
			return nil
		},
	}
}

func (a *app) chassisCommand() *cobra.Command {
	chassis := &cobra.Command{
		Use:   "chassis",
		Short: "Chassis commands.",
	}
	chassis.AddCommand(&cobra.Command{
		Use:     "status",
		Short:   "Read the chassis power state.",
		Example: "ipmi-client -H 10.0.0.5 -U admin -P secret chassis status",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, c.Close()) }()

			status, err := c.ChassisStatus(cmd.Context())
			if err != nil {
				return err
			}
			printChassisStatus(cmd.OutOrStdout(), status)
			return nil
		},
	})
	return chassis
}

func (a *app) privilegeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "privilege [level]",
		Short:   "Set the session privilege level, or show it without a level.",
		Example: "ipmi-client -H 10.0.0.5 -U admin -P secret privilege operator",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			level := commands.PrivilegeMaximumAvailable
			if len(args) == 1 {
				if level, err = commands.ParsePrivilegeLevel(args[0]); err != nil {
					return err
				}
			}

			c, err := a.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, c.Close()) }()

			got, err := c.SetSessionPrivilegeLevel(cmd.Context(), level)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Privilege: %s\n", got)
			return nil
		},
	}
}

func (a *app) watchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Poll the chassis status until interrupted.",
		Example: "ipmi-client -H 10.0.0.5 -U admin -P secret --metrics-addr :9623 watch",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watch(cmd.Context(), cmd.OutOrStdout(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 10*time.Second, "polling interval")
	return cmd
}

// watch keeps a session open and prints every change of the power state.
// With a metrics address the connection metrics are served meanwhile.
func (a *app) watch(ctx context.Context, out io.Writer, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v", interval)
	}

	c, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error { return a.serveMetrics(gctx) })
	}
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *bool
		for {
			status, err := c.ChassisStatus(gctx)
			switch {
			case gctx.Err() != nil:
				return nil
			case err != nil:
				a.log.Warnf("chassis status: %v", err)
			case last == nil || *last != status.PowerOn:
				on := status.PowerOn
				last = &on
				fmt.Fprintf(out, "%s power %s\n", time.Now().Format(time.RFC3339), onOff(on))
			}

			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

// serveMetrics serves the registry until ctx is done.
func (a *app) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	a.log.Infof("serving metrics on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) discoverCommand() *cobra.Command {
	var (
		mdns        bool
		concurrency int
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover [targets...]",
		Short: "Find BMCs by Presence Ping and DNS-SD.",
		Long: "Pings each target, a host, host:port or CIDR range, with an RMCP " +
			"Presence Ping. Without targets, or with --mdns, BMCs announced over " +
			"DNS-SD are pinged as well.",
		Example: "ipmi-client discover 10.0.0.0/24",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := discovery.NewManager(discovery.ManagerConfig{
				Scanner: discovery.ScannerConfig{
					Timeout:     timeout,
					Concurrency: concurrency,
				},
				LoggerFactory: a.loggerFactory,
			})
			if err != nil {
				return err
			}
			defer mgr.Close()

			var hosts []discovery.Host
			if len(args) > 0 {
				found, err := mgr.Scan(cmd.Context(), args)
				if err != nil {
					return err
				}
				hosts = append(hosts, found...)
			}
			if mdns || len(args) == 0 {
				found, err := mgr.Discover(cmd.Context())
				if err != nil {
					return err
				}
				hosts = mergeHosts(hosts, found)
			}
			printHosts(cmd.OutOrStdout(), hosts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&mdns, "mdns", false, "also browse DNS-SD when targets are given")
	cmd.Flags().IntVar(&concurrency, "concurrency", discovery.DefaultConcurrency, "parallel pings")
	cmd.Flags().DurationVar(&timeout, "ping-timeout", discovery.DefaultPingTimeout, "time to wait for each Presence Pong")
	return cmd
}

// mergeHosts appends the hosts of extra not already in hosts, keeping the
// DNS-SD service of a duplicate.
func mergeHosts(hosts, extra []discovery.Host) []discovery.Host {
	index := make(map[string]int, len(hosts))
	for i, h := range hosts {
		index[h.Addr.String()] = i
	}
	for _, h := range extra {
		if i, ok := index[h.Addr.String()]; ok {
			if hosts[i].Service == nil {
				hosts[i].Service = h.Service
			}
			continue
		}
		hosts = append(hosts, h)
	}
	return hosts
}

func printCipherSuites(w io.Writer, suites []security.CipherSuiteInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tIANA\tAUTH\tINTEGRITY\tCONFIDENTIALITY")
	for _, s := range suites {
		iana := "-"
		if s.OEM {
			iana = fmt.Sprint(s.IANA)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, iana, s.Authentication, s.Integrity, s.Confidentiality)
	}
	tw.Flush()
}

func printAuthCapabilities(w io.Writer, caps *commands.ChannelAuthCapabilities) {
	types := make([]string, 0, len(caps.AuthTypes))
	for _, t := range caps.AuthTypes {
		types = append(types, t.String())
	}

	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Channel\t: %d\n", caps.Channel)
	fmt.Fprintf(tw, "IPMI v2.0\t: %s\n", yesNo(caps.IPMIv20))
	fmt.Fprintf(tw, "Auth types\t: %s\n", strings.Join(types, " "))
	fmt.Fprintf(tw, "KG enabled\t: %s\n", yesNo(caps.KGEnabled))
	fmt.Fprintf(tw, "Per-message auth\t: %s\n", yesNo(caps.PerMessageAuth))
	fmt.Fprintf(tw, "User level auth\t: %s\n", yesNo(caps.UserLevelAuth))
	fmt.Fprintf(tw, "Non-null usernames\t: %s\n", yesNo(caps.NonNullUsernames))
	fmt.Fprintf(tw, "Null usernames\t: %s\n", yesNo(caps.NullUsernames))
	fmt.Fprintf(tw, "Anonymous login\t: %s\n", yesNo(caps.AnonymousLogin))
	tw.Flush()
}

func printChassisStatus(w io.Writer, s *commands.ChassisStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "System Power\t: %s\n", onOff(s.PowerOn))
	fmt.Fprintf(tw, "Power Overload\t: %t\n", s.PowerOverload)
	fmt.Fprintf(tw, "Power Interlock\t: %s\n", activeInactive(s.Interlock))
	fmt.Fprintf(tw, "Main Power Fault\t: %t\n", s.PowerFault)
	fmt.Fprintf(tw, "Power Control Fault\t: %t\n", s.PowerControlFault)
	fmt.Fprintf(tw, "Power Restore Policy\t: %s\n", s.PowerRestorePolicy)
	fmt.Fprintf(tw, "Chassis Intrusion\t: %s\n", activeInactive(s.ChassisIntrusion))
	fmt.Fprintf(tw, "Front-Panel Lockout\t: %s\n", activeInactive(s.FrontPanelLockout))
	fmt.Fprintf(tw, "Drive Fault\t: %t\n", s.DriveFault)
	fmt.Fprintf(tw, "Cooling/Fan Fault\t: %t\n", s.CoolingFault)
	tw.Flush()
}

func printHosts(w io.Writer, hosts []discovery.Host) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tIPMI\tRTT\tSERVICE")
	for _, h := range hosts {
		service := "-"
		if h.Service != nil {
			service = h.Service.InstanceName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Addr, yesNo(h.SupportsIPMI()), h.RTT.Round(time.Microsecond), service)
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func activeInactive(b bool) string {
	if b {
		return "active"
	}
	return "inactive"
}
