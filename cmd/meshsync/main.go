// Package main provides the entrypoint for the meshsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/DobryySoul/meshsync/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
