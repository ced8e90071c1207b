package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ouc-computer-network/tcp-lab/internal/protocol"
	"github.com/ouc-computer-network/tcp-lab/internal/scenario"
)

// ValidationIssue describes one invalid scenario file.
type ValidationIssue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml | scenarios-dir>",
		Short: "Validate scenario files without running them",
		Long: `Parse and validate scenario files without executing the engine.

Checks YAML syntax, rejects unknown fields, verifies per-action and
per-assertion required fields, and confirms the declared protocol pair
exists. Faster than a full run for authoring feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	info, err := os.Stat(path)
	if err != nil {
		return WrapExitError(ExitScenarioParse, "path not found", err)
	}

	var files []string
	if info.IsDir() {
		files, err = findScenarioFiles(path, "")
		if err != nil {
			return WrapExitError(ExitScenarioParse, "failed to find scenarios", err)
		}
	} else {
		files = []string{path}
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		if issue := validateScenarioFile(file); issue != nil {
			result.Valid = false
			result.Issues = append(result.Issues, *issue)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if result.Valid {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d scenario file(s) valid\n", result.Files)
		return nil
	}

	if opts.Format == "json" {
		if err := formatter.Error("E_PARSE", "invalid scenario file(s)", result); err != nil {
			return err
		}
	} else {
		for _, issue := range result.Issues {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s: %s\n", issue.File, issue.Message)
		}
	}
	return NewExitError(ExitScenarioParse, fmt.Sprintf("%d invalid scenario file(s)", len(result.Issues)))
}

func validateScenarioFile(file string) *ValidationIssue {
	scn, err := scenario.Load(file)
	if err != nil {
		return &ValidationIssue{File: filepath.Base(file), Message: err.Error()}
	}

	// A scenario destined for the CLI needs a loadable protocol pair.
	if scn.Protocol != "" {
		if _, err := protocol.Load(scn.Protocol, protocol.UUIDv7Generator{}); err != nil {
			return &ValidationIssue{File: filepath.Base(file), Message: err.Error()}
		}
	}
	return nil
}
