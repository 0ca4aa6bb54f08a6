// Command stampede verifies race-condition invariants: it fires bursts
// of concurrent operations at a target and judges the aggregate outcome
// against a declarative invariant.
package main

import (
	"fmt"
	"os"

	"github.com/stampede-io/stampede/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
