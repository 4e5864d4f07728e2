// ipmi-bmcsim is a simulated IPMI v2.0 BMC.
//
// This binary answers RMCP Presence Pings, cipher suite and authentication
// capability queries, RAKP session establishment and a few in-session
// commands, so ipmi-client can be tried without hardware.
//
// Usage:
//
//	ipmi-bmcsim [options]
//
// Options:
//
//	-port       UDP port (default: 6230)
//	-user       User name (default: "admin")
//	-password   Password (default: "password")
//	-kg         BMC key (default: the password)
//	-privilege  Highest user privilege (default: administrator)
//	-ciphers    Comma separated cipher suite IDs (default: 0,1,2,3,17)
//	-power      Chassis power state (default: true)
//	-v          Debug logging
//
// Example:
//
//	ipmi-bmcsim -port 6230 -user admin -password secret
//	ipmi-client -H 127.0.0.1:6230 -U admin -P secret chassis status
package main

import (
	"log"

	"github.com/backkem/ipmi/examples/common"
)

func main() {
	// Parse command-line flags
	opts := common.ParseFlags()

	bmc := common.CreateBMC(opts)

	// Serve the BMC (blocks until interrupted)
	if err := common.RunBMC(bmc, opts.Port); err != nil {
		log.Fatalf("BMC error: %v", err)
	}
}
