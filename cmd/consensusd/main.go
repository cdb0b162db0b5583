// Command consensusd runs one node of the permissioned consensus network:
// Ordering Service, Simulator, YAC Core, Synchronizer and Round Driver,
// wired behind a TCP transport. Entry point shape follows the teacher's
// cmd/empower1d: a thin main delegating to a cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/empower1/consensusd/cmd/consensusd/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
