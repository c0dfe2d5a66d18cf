// Package cli implements the popeye command surface: run, status, verify,
// and version. Commands stay thin; all behavior lives in the internal
// packages they call.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProjectDir string
	flagVerbose    bool
)

// NewRootCmd builds the popeye command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "popeye",
		Short:         "Governance-driven pipeline orchestrator",
		Long:          "popeye drives a project through a gated multi-phase pipeline:\nplanning, consensus review, implementation, validation, audit, and release.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVarP(&flagProjectDir, "project", "C", ".", "project directory")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
