package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/qexpand/internal/blog"
)

// QueryInfo describes a named query.
type QueryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// QueryList is the output of the queries command.
type QueryList struct {
	Queries []QueryInfo `json:"queries"`
}

// WriteText implements Texter.
func (l QueryList) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION")
	for _, q := range l.Queries {
		fmt.Fprintf(tw, "%s\t%s\n", q.Name, q.Description)
	}
	return tw.Flush()
}

// NewQueriesCommand creates the queries command.
func NewQueriesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "List the named queries",
		Long: `List the named queries the expand and run commands accept.

Example:
  qexpand queries
  qexpand queries --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := QueryList{Queries: []QueryInfo{}}
			for _, q := range blog.Queries() {
				list.Queries = append(list.Queries, QueryInfo{Name: q.Name, Description: q.Description})
			}
			return rootOpts.formatter(cmd).Success(list)
		},
	}
}
