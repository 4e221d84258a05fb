// Package main is the entry point for beaconctl.
// The CLI is the developer terminal tool for interacting with the
// beaconci controller API.
package main

import (
	"os"

	"beaconci/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
