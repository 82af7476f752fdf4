// Command dinetrace runs the reference collector and drives the client
// telemetry pipeline from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
