package app

import (
	"github.com/spf13/cobra"

	"github.com/raptor-audit/cairo-parser/internal/cli"
)

func BuildRoot() *cobra.Command {
	root := &cobra.Command{Use: "cairo-parser", Short: "Static structure and dataflow analyzer for Cairo contracts"}
	cli.AddCommands(root)
	return root
}
