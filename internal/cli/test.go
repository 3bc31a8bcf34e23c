package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/qexpand/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern on the scenario name)
	Golden string // golden directory; defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "updated", "match", "mismatch" or "missing"
	Errors []string `json:"errors,omitempty"`
	Diff   string   `json:"diff,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`

	verbose bool
}

// WriteText implements Texter.
func (r *TestResult) WriteText(w io.Writer) error {
	if r.Total == 0 {
		_, err := fmt.Fprintln(w, "No scenarios found.")
		return err
	}
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		switch s.Golden {
		case "updated":
			fmt.Fprintf(w, "%s %s (golden updated)\n", mark, s.Name)
		default:
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		}
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		if s.Diff != "" && r.verbose {
			fmt.Fprint(w, s.Diff)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	if r.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
	return nil
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against both backends",
		Long: `Run the scenario files in a directory.

Each scenario names a query, runs it in memory and on SQLite, and checks its
assertions. When a golden file exists for the scenario the result snapshot is
compared with it as well; --update rewrites the golden files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  qexpand test ./scenarios
  qexpand test ./scenarios --filter "todays_*"
  qexpand test ./scenarios --update
  qexpand test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return WrapExitError(ExitCommandError, "invalid filter pattern", err)
		}
	}
	goldenDir := opts.Golden
	if goldenDir == "" {
		goldenDir = filepath.Join(dir, "golden")
	}

	scenarios, err := loadScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	result := &TestResult{Scenarios: []ScenarioResult{}, Total: len(scenarios), verbose: opts.Verbose}
	if len(scenarios) == 0 {
		return f.Success(result)
	}

	logger, done := opts.logger(cmd.ErrOrStderr())
	defer done()

	results, err := harness.RunAll(cmd.Context(), scenarios, harness.Options{
		Today:  opts.Today,
		Logger: logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	for _, r := range results {
		sr := checkScenario(opts, goldenDir, r)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := f.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// loadScenarios loads the scenario files of dir whose names match filter.
func loadScenarios(dir, filter string) ([]*harness.Scenario, error) {
	all, err := harness.LoadDir(dir)
	if err != nil {
		if errors.Is(err, harness.ErrNoScenarios) {
			return nil, nil
		}
		return nil, err
	}
	if filter == "" {
		return all, nil
	}
	var out []*harness.Scenario
	for _, s := range all {
		if ok, _ := filepath.Match(filter, s.Name); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// checkScenario combines the assertion outcome with the golden comparison.
func checkScenario(opts *TestOptions, goldenDir string, r *harness.Result) ScenarioResult {
	sr := ScenarioResult{Name: r.Scenario, Pass: r.Pass, Errors: r.Errors}

	if opts.Update {
		if err := harness.WriteGolden(goldenDir, r); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	diff, err := harness.CompareGolden(goldenDir, r)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No golden file: assertions alone decide.
		sr.Golden = "missing"
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
	case diff != "":
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Diff = diff
		sr.Errors = append(sr.Errors, "result does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = "match"
	}
	return sr
}
