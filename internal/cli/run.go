package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stampede-io/stampede/internal/harness"
	"github.com/stampede-io/stampede/internal/invariant"
	"github.com/stampede-io/stampede/internal/report"
	"github.com/stampede-io/stampede/internal/scenario"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter    string        // scenario filter (glob pattern, directories only)
	Anomalies int           // anomalous outcomes kept in full detail
	Deadline  time.Duration // run-deadline override
}

// ScenarioStatus is the per-scenario rollup used in summaries and JSON
// output. "error" means the run never produced a report (setup failed).
type ScenarioStatus string

const (
	StatusPass         ScenarioStatus = "pass"
	StatusFail         ScenarioStatus = "fail"
	StatusInconclusive ScenarioStatus = "inconclusive"
	StatusError        ScenarioStatus = "error"
)

// ScenarioResult holds the result of a single scenario run.
type ScenarioResult struct {
	Name   string         `json:"name"`
	Status ScenarioStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
	Report *report.Report `json:"report,omitempty"`
}

// RunResult holds the overall suite result.
type RunResult struct {
	Scenarios    []ScenarioResult `json:"scenarios"`
	Passed       int              `json:"passed"`
	Failed       int              `json:"failed"`
	Inconclusive int              `json:"inconclusive"`
	Errors       int              `json:"errors"`
	Total        int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml | dir>",
		Short: "Run race-condition scenarios",
		Long: `Run one scenario file, or every scenario in a directory.

Each scenario dispatches a burst of concurrent operations at its target,
classifies every outcome, optionally probes the system of record, and
evaluates the declared invariant.

Exit codes:
  0 - Every scenario passed
  1 - At least one invariant violation
  2 - No violations, but at least one inconclusive run
  3 - Setup or command error

Examples:
  stampede run scenarios/tenant-slug.yaml
  stampede run scenarios/ --filter "tenant-*"
  stampede run scenarios/ --format json --deadline 90s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern (directories only)")
	cmd.Flags().IntVar(&opts.Anomalies, "anomalies", report.DefaultAnomalyLimit, "anomalous outcomes kept in full detail")
	cmd.Flags().DurationVar(&opts.Deadline, "deadline", 0, "override every scenario's run deadline")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	files, err := findScenarioFiles(path, opts.Filter)
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

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	result := RunResult{Total: len(files)}
	for _, file := range files {
		res := runOne(cmd.Context(), opts, file, logger, formatter)
		result.Scenarios = append(result.Scenarios, res)
		switch res.Status {
		case StatusPass:
			result.Passed++
		case StatusFail:
			result.Failed++
		case StatusInconclusive:
			result.Inconclusive++
		case StatusError:
			result.Errors++
		}
	}

	if opts.Format == "json" {
		if err := formatter.JSON(result); err != nil {
			return WrapExitError(ExitCommandError, "encoding output", err)
		}
	} else {
		printSummary(formatter, result)
	}

	switch {
	case result.Errors > 0:
		return NewExitError(ExitCommandError, fmt.Sprintf("%d of %d scenario(s) failed setup", result.Errors, result.Total))
	case result.Failed > 0:
		return NewExitError(ExitFail, fmt.Sprintf("%d of %d scenario(s) violated their invariant", result.Failed, result.Total))
	case result.Inconclusive > 0:
		return NewExitError(ExitInconclusive, fmt.Sprintf("%d of %d scenario(s) were inconclusive", result.Inconclusive, result.Total))
	}
	return nil
}

// runOne loads and executes a single scenario file.
func runOne(ctx context.Context, opts *RunOptions, file string, logger *slog.Logger, formatter *OutputFormatter) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	s, err := scenario.Load(file)
	if err != nil {
		formatter.VerboseLog("load error for %s: %v", file, err)
		return ScenarioResult{Name: name, Status: StatusError, Error: fmt.Sprintf("loading scenario: %v", err)}
	}

	rep, err := harness.Run(ctx, s, harness.Options{
		Logger:       logger,
		AnomalyLimit: opts.Anomalies,
		RunDeadline:  opts.Deadline,
	})
	if err != nil {
		return ScenarioResult{Name: s.Name, Status: StatusError, Error: err.Error()}
	}

	res := ScenarioResult{Name: s.Name, Report: rep}
	switch rep.Judgment.Decision {
	case invariant.Pass:
		res.Status = StatusPass
	case invariant.Fail:
		res.Status = StatusFail
	default:
		res.Status = StatusInconclusive
	}

	if formatter.Format != "json" {
		_ = rep.RenderText(formatter.Writer)
		fmt.Fprintln(formatter.Writer)
	}
	return res
}

// printSummary renders the suite rollup in text mode.
func printSummary(f *OutputFormatter, r RunResult) {
	fmt.Fprintf(f.Writer, "%d scenario(s): %d passed, %d failed, %d inconclusive, %d errored\n",
		r.Total, r.Passed, r.Failed, r.Inconclusive, r.Errors)
	for _, s := range r.Scenarios {
		marker := map[ScenarioStatus]string{
			StatusPass:         "✓",
			StatusFail:         "✗",
			StatusInconclusive: "?",
			StatusError:        "!",
		}[s.Status]
		if s.Error != "" {
			fmt.Fprintf(f.Writer, "  %s %s: %s\n", marker, s.Name, s.Error)
		} else {
			fmt.Fprintf(f.Writer, "  %s %s\n", marker, s.Name)
		}
	}
}

// findScenarioFiles resolves a path to scenario YAML files. A file path
// is returned as-is; a directory is walked for .yaml/.yml files, with
// the optional glob filter applied to base names.
func findScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			base := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, base)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}
