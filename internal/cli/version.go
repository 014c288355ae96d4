package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cairo-parser", Version)
		},
	}
}
