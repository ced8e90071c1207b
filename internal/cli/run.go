package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/report"
	"github.com/ouc-computer-network/tcp-lab/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Protocol   string // override the scenario's protocol pairing
	ReportPath string // write the canonical JSON report here

	// BridgeGenerator allows overriding the bridge-id generator (for
	// testing). If nil, defaults to UUIDv7Generator.
	BridgeGenerator protocol.BridgeIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and render its verdict",
		Long: `Run a scenario file against its protocol pair and evaluate assertions.

Exit codes:
  0 - All assertions passed
  1 - At least one assertion failed
  2 - Scenario parse error
  3 - Protocol load error
  4 - Engine resource limit hit

Examples:
  tcplab run scenarios/ideal-channel.yaml
  tcplab run scenarios/single-loss.yaml --protocol rdt3.0
  tcplab run scenarios/ideal-channel.yaml --format json --report out.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Protocol, "protocol", "", "builtin protocol pair (overrides the scenario's)")
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "write the canonical JSON report to this path")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	scn, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitScenarioParse, "failed to load scenario", err)
	}
	if opts.Protocol != "" {
		scn.Protocol = opts.Protocol
	}

	gen := opts.BridgeGenerator
	if gen == nil {
		gen = protocol.UUIDv7Generator{}
	}

	pair, err := protocol.Load(scn.Protocol, gen)
	if err != nil {
		return WrapExitError(ExitProtocolLoad, "failed to load protocol", err)
	}
	slog.Debug("protocol pair loaded",
		"protocol", pair.Name,
		"sender_bridge_id", pair.Sender.BridgeID,
		"receiver_bridge_id", pair.Receiver.BridgeID)

	rep := scenario.Run(scn, pair)

	if opts.ReportPath != "" {
		data, merr := report.MarshalCanonical(rep)
		if merr != nil {
			return WrapExitError(ExitScenarioParse, "failed to marshal report", merr)
		}
		if werr := os.WriteFile(opts.ReportPath, data, 0644); werr != nil {
			return WrapExitError(ExitScenarioParse, "failed to write report", werr)
		}
	}

	if err := outputRunResult(opts, scn.Name, rep, cmd); err != nil {
		return err
	}
	return verdictExitError(rep)
}

func outputRunResult(opts *RunOptions, name string, rep *report.Report, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		response := CLIResponse{
			Status:  "ok",
			Data:    rep,
			TraceID: uuid.Must(uuid.NewV7()).String(),
		}
		if !rep.Verdict.Pass {
			response.Status = "error"
			response.Error = &CLIError{
				Code:    "E_ASSERTION_FAILED",
				Message: fmt.Sprintf("%d assertion(s) failed", len(rep.Verdict.Failures)),
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	}

	if rep.Verdict.Pass {
		fmt.Fprintf(w, "✓ %s (termination: %s)\n", name, rep.Termination)
		return nil
	}
	fmt.Fprintf(w, "✗ %s (termination: %s)\n", name, rep.Termination)
	for _, f := range rep.Verdict.Failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Assertion, f.Detail)
	}
	return nil
}

// verdictExitError maps the verdict and termination cause to the grader
// exit code. A passing verdict is exit 0 even when a resource limit hit:
// a scenario may legitimately assert TerminationCause "event_budget".
// A failing verdict under a resource limit reports the limit (exit 4)
// rather than the assertion failure it caused.
func verdictExitError(rep *report.Report) error {
	if rep.Verdict.Pass {
		return nil
	}
	switch rep.Termination {
	case report.TerminationTimeout, report.TerminationEventBudget:
		return NewExitError(ExitEngineLimit, fmt.Sprintf("engine resource limit hit (%s)", rep.Termination))
	}
	return NewExitError(ExitAssertionFailure, fmt.Sprintf("%d assertion(s) failed", len(rep.Verdict.Failures)))
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
