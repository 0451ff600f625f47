// Package main provides the entry point for gridmesh-cli.
//
// gridmesh-cli is the command-line tool for GridMesh cluster
// communication: pinging nodes through the forwarding tree, pushing
// data blobs, and inspecting controller endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/gridmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
