package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/blog"
	"github.com/roach88/qexpand/internal/query"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // SQLite database; empty runs in memory
	Limit    int    // stop after this many rows; 0 means all
}

// RunResult is the output of the run command.
type RunResult struct {
	Query   string `json:"query"`
	Backend string `json:"backend"`
	Rows    []Row  `json:"rows"`
}

// WriteText implements Texter.
func (r *RunResult) WriteText(w io.Writer) error {
	for _, row := range r.Rows {
		fmt.Fprintln(w, row)
	}
	fmt.Fprintf(w, "(%d rows, %s)\n", len(r.Rows), r.Backend)
	return nil
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Expand and execute a named query",
		Long: `Expand a named query and execute it.

Without --db the query runs in memory over the embedded seed data. With --db
it runs against a SQLite database opened with the blog catalog; use the seed
command to load the seed data into one.

Example:
  qexpand run active-users
  qexpand run todays-posts --today 2024-05-01
  qexpand run admin-sibling-posts --db ./blog.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: in memory)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of rows to print")

	return cmd
}

func runQuery(opts *RunOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	q, err := lookupQuery(f, name)
	if err != nil {
		return err
	}
	logger, done := opts.logger(cmd.ErrOrStderr())
	defer done()
	defer opts.pinClock()()

	b, err := openBackend(opts.Database, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open backend", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error("error closing database", zap.Error(err))
		}
	}()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	built := q.Build(blog.Expandable(b.Sources, query.WithLogger(logger.Named("expand"))))
	if err := built.Err(); err != nil {
		return f.Fail(ExitFailure, CodeExpand, "expand "+name, err)
	}
	logger.Debug("running query",
		zap.String("query", name),
		zap.String("backend", b.Name),
		zap.Stringer("tree", built),
	)

	cur, err := built.Cursor(ctx)
	if err != nil {
		return f.Fail(ExitFailure, CodeExecute, "run "+name, err)
	}
	defer cur.Close()

	res := &RunResult{Query: name, Backend: b.Name, Rows: []Row{}}
	for cur.Next(ctx) {
		res.Rows = append(res.Rows, renderRow(b.Catalog, cur.Value()))
		if opts.Limit > 0 && len(res.Rows) >= opts.Limit {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return f.Fail(ExitFailure, CodeExecute, "run "+name, err)
	}
	return f.Success(res)
}
