// Package cli implements the tcplab command tree: run a single scenario,
// test a directory of scenarios, and validate scenario files without
// executing them.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	// Builtin reference protocols register themselves with the protocol
	// registry at init time.
	_ "github.com/ouc-computer-network/tcp-lab/internal/protocol/rdt1"
	_ "github.com/ouc-computer-network/tcp-lab/internal/protocol/rdt22"
	_ "github.com/ouc-computer-network/tcp-lab/internal/protocol/rdt3"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tcplab CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tcplab",
		Short: "tcplab - deterministic RDT protocol lab",
		Long:  "A deterministic discrete-event simulator for grading reliable-data-transfer protocols against scripted scenarios.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
