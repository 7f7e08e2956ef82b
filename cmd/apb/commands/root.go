// Package commands implements the CLI commands for the apb rebuild dispatcher.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// CLI represents the command line interface for apb.
type CLI struct {
	rootCmd *cobra.Command

	verbose bool
	dbPath  string
}

// New creates a new CLI instance with all subcommands registered.
func New() *CLI {
	c := &CLI{}

	c.rootCmd = &cobra.Command{
		Use:           "apb",
		Short:         "Dispatch rebuild events to repositories that have not been built in a while",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if c.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		},
	}

	c.rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	c.rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "Path to the run history database (overrides APB_DB_PATH)")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newReportCmd())
	c.rootCmd.AddCommand(c.newHistoryCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOut redirects command output. Used for testing.
func (c *CLI) SetOut(w io.Writer) {
	c.rootCmd.SetOut(w)
}
