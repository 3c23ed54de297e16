// cardlock runs and administers an RFID door lock controller.
//
// The credential table lives in a fixed-size storage image file laid out
// like the lock's EEPROM, so images can be moved between the host tools
// and a device.
//
// Usage:
//
//	cardlock [command] [options]
//
// Commands:
//
//	run        Run the door controller
//	status     Show provisioning state and usage
//	list       List enrolled credentials
//	provision  Define the master credential
//	add        Enroll a credential
//	remove     Remove a credential
//	wipe       Erase every record
//	reset      Clear provisioning, keeping the entries
//	backup     Write a compressed storage backup
//	restore    Restore storage from a backup
//	audit      Show the event journal
//	config     Write a default configuration file
//
// Example:
//
//	cardlock run --reader 192.168.1.40:4001 --store /var/lib/cardlock/nv.img
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
