// ipmi-client talks to a BMC over IPMI v2.0 RMCP+.
//
// It lists cipher suites and authentication capabilities, opens a session to
// read the chassis status or change the session privilege, watches a BMC
// while exporting Prometheus metrics, and discovers BMCs on the network.
//
// Usage:
//
//	ipmi-client [command] [options]
//
// Commands:
//
//	ciphers         List the cipher suites of the BMC
//	authcap         Show the authentication capabilities of the BMC
//	chassis status  Read the chassis power state
//	privilege       Set the session privilege level
//	watch           Poll the chassis status until interrupted
//	discover        Find BMCs by Presence Ping and DNS-SD
//
// Options:
//
//	--config        YAML configuration file
//	-H, --host      BMC host or host:port
//	-p, --port      BMC UDP port (default: 623)
//	-U, --username  BMC user name
//	-P, --password  BMC password
//	-L, --privilege Session privilege (default: administrator)
//	-C, --cipher    Cipher suite ID (default: strongest offered)
//	--log-level     disabled, error, warn, info, debug or trace
//
// Example:
//
//	ipmi-client -H 10.0.0.5 -U admin -P secret chassis status
//	ipmi-client discover 10.0.0.0/24
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
