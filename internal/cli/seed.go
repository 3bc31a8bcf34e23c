package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/qexpand/internal/blog"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedResult is the output of the seed command.
type SeedResult struct {
	Database string `json:"database"`
	Loaded   int    `json:"loaded"`
}

// WriteText implements Texter.
func (r *SeedResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Loaded %d rows into %s\n", r.Loaded, r.Database)
	return err
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the seed data into a SQLite database",
		Long: `Create the blog tables in a SQLite database and load the embedded
seed rows. Existing rows with the same key are replaced, so seeding twice
is safe.

Example:
  qexpand seed --db ./blog.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	logger, done := opts.logger(cmd.ErrOrStderr())
	defer done()

	b, err := openBackend(opts.Database, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer b.Close()

	fx, err := blog.Fixtures()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse seed data", err)
	}
	n, err := b.Store.Load(cmd.Context(), fx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to load seed data", err)
	}
	return opts.formatter(cmd).Success(&SeedResult{Database: opts.Database, Loaded: n})
}
