// Command qexpand lists, expands and runs the blog queries.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/qexpand/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
