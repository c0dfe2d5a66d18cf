package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time through -ldflags.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the popeye version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "popeye "+Version)
		},
	}
}
