package cli

import (
	"fmt"
	"io"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/blog"
	"github.com/roach88/qexpand/internal/query"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	Diff bool // show a diff of the written and expanded trees
	SQL  bool // translate the expanded tree to SQL
}

// ExpandResult is the output of the expand command.
type ExpandResult struct {
	Query    string `json:"query"`
	Before   string `json:"before"`
	Tree     string `json:"tree"`
	Diff     string `json:"diff,omitempty"`
	SQL      string `json:"sql,omitempty"`
	Params   []any  `json:"params,omitempty"`
	SQLError string `json:"sql_error,omitempty"`
}

// WriteText implements Texter.
func (r *ExpandResult) WriteText(w io.Writer) error {
	fmt.Fprintln(w, layout(r.Tree))
	if r.Diff != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, r.Diff)
	}
	switch {
	case r.SQLError != "":
		fmt.Fprintf(w, "\nsql: %s\n", r.SQLError)
	case r.SQL != "":
		fmt.Fprintf(w, "\nsql: %s\nparams: %v\n", r.SQL, r.Params)
	}
	return nil
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand <query>",
		Short: "Print the expanded tree of a named query",
		Long: `Build a named query, expand its combinator calls and specifications,
and print the resulting tree.

With --diff the tree as written is compared with the expanded one. With --sql
the expanded tree is also translated to the SQL the store would run.

Example:
  qexpand expand admin-editor-post-counts
  qexpand expand todays-posts --today 2024-05-01 --diff
  qexpand expand active-users --sql --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Diff, "diff", false, "diff the written and expanded trees")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "print the SQL for the expanded tree")

	return cmd
}

func runExpand(opts *ExpandOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	q, err := lookupQuery(f, name)
	if err != nil {
		return err
	}
	logger, done := opts.logger(cmd.ErrOrStderr())
	defer done()
	defer opts.pinClock()()

	ds, err := blog.LoadDataset()
	if err != nil {
		return WrapExitError(ExitCommandError, "load dataset", err)
	}
	written := q.Build(ds.Sources())
	if err := written.Err(); err != nil {
		return f.Fail(ExitFailure, CodeExpand, "build "+name, err)
	}
	expanded := q.Build(blog.Expandable(ds.Sources(), query.WithLogger(logger.Named("expand"))))
	if err := expanded.Err(); err != nil {
		return f.Fail(ExitFailure, CodeExpand, "expand "+name, err)
	}

	res := &ExpandResult{
		Query:  name,
		Before: ast.String(written.Expression()),
		Tree:   ast.String(expanded.Expression()),
	}
	f.VerboseLog("expanded %s", name)

	if opts.Diff {
		res.Diff, err = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(layout(res.Before) + "\n"),
			B:        difflib.SplitLines(layout(res.Tree) + "\n"),
			FromFile: "written",
			ToFile:   "expanded",
			Context:  3,
		})
		if err != nil {
			return err
		}
	}
	if opts.SQL {
		if err := translateSQL(q, res, logger); err != nil {
			return WrapExitError(ExitCommandError, "open store", err)
		}
	}
	return f.Success(res)
}

// translateSQL builds q over an empty in-memory store and records the
// statement it compiles to. Trees the store cannot translate are reported
// in SQLError rather than failing the command.
func translateSQL(q blog.Query, res *ExpandResult, logger *zap.Logger) error {
	b, err := openBackend(":memory:", logger)
	if err != nil {
		return err
	}
	defer b.Close()

	built := q.Build(blog.Expandable(b.Sources))
	if err := built.Err(); err != nil {
		res.SQLError = err.Error()
		return nil
	}
	sql, params, err := b.Store.Provider().Statement(built.Expression())
	if err != nil {
		res.SQLError = err.Error()
		return nil
	}
	res.SQL, res.Params = sql, params
	return nil
}
