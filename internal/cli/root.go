package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/roach88/qexpand/internal/blog"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LogFile receives JSON debug logs, rotated by size.
	LogFile string

	// Today pins the clock date-relative combinators read, in
	// blog.DateLayout. Empty uses the real clock.
	Today string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the qexpand CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "qexpand",
		Short: "qexpand - query tree expansion",
		Long: `Inspect and run queries composed from reusable combinators and
specifications.

Queries are built over the blog model, expanded into plain query trees and
executed either in memory or against a SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Today != "" {
				if _, err := time.Parse(blog.DateLayout, opts.Today); err != nil {
					return WrapExitError(ExitCommandError, "invalid --today", err)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "write debug logs to this file")
	cmd.PersistentFlags().StringVar(&opts.Today, "today", "", "pin today's date (YYYY-MM-DD)")

	cmd.AddCommand(NewQueriesCommand(opts))
	cmd.AddCommand(NewExpandCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the command logger. Verbose mode logs to stderr in console
// format; --log-file adds a rotated JSON sink at debug level. Without either
// the logger discards everything. The returned func flushes and closes the
// sinks.
func (o *RootOptions) logger(stderr io.Writer) (*zap.Logger, func()) {
	var cores []zapcore.Core
	var rotator *lumberjack.Logger

	if o.Verbose {
		enc := zap.NewDevelopmentEncoderConfig()
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(enc),
			zapcore.AddSync(stderr),
			zapcore.DebugLevel,
		))
	}
	if o.LogFile != "" {
		rotator = &lumberjack.Logger{
			Filename:   o.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(enc),
			zapcore.AddSync(rotator),
			zapcore.DebugLevel,
		))
	}
	if len(cores) == 0 {
		return zap.NewNop(), func() {}
	}

	l := zap.New(zapcore.NewTee(cores...))
	return l, func() {
		_ = l.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
}

// pinClock sets blog.Now to the --today date and returns the restore func.
func (o *RootOptions) pinClock() func() {
	if o.Today == "" {
		return func() {}
	}
	day, err := time.Parse(blog.DateLayout, o.Today)
	if err != nil {
		// Validated in PersistentPreRunE.
		return func() {}
	}
	saved := blog.Now
	blog.Now = func() time.Time { return day }
	return func() { blog.Now = saved }
}
