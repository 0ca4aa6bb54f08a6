package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stampede-io/stampede/internal/scenario"
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
		Use:   "validate <scenario.yaml | dir>",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files against the schema and field rules
without dispatching anything.

Catches typos (unknown fields), type and range errors, and cross-field
problems such as an invariant that requires ground truth with no probe
configured.`,
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
	files, err := findScenarioFiles(path, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "finding scenarios", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files found at %s", path))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: len(files)}
	for _, file := range files {
		formatter.VerboseLog("validating %s", file)
		if _, err := scenario.Load(file); err != nil {
			result.Valid = false
			result.Issues = append(result.Issues, ValidationIssue{
				File:    filepath.ToSlash(file),
				Message: err.Error(),
			})
		}
	}

	if opts.Format == "json" {
		if err := formatter.JSON(result); err != nil {
			return WrapExitError(ExitCommandError, "encoding output", err)
		}
	} else if result.Valid {
		fmt.Fprintf(formatter.Writer, "%d scenario file(s) valid\n", result.Files)
	} else {
		for _, issue := range result.Issues {
			fmt.Fprintf(formatter.Writer, "✗ %s\n", issue.File)
			for _, line := range strings.Split(issue.Message, "\n") {
				fmt.Fprintf(formatter.Writer, "    %s\n", line)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFail, fmt.Sprintf("%d of %d scenario file(s) invalid", len(result.Issues), result.Files))
	}
	return nil
}
