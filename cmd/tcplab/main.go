// Command tcplab is the grader CLI for the deterministic RDT protocol
// lab: run a scenario, test a directory of scenarios, or validate
// scenario files.
package main

import (
	"fmt"
	"os"

	"github.com/ouc-computer-network/tcp-lab/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
