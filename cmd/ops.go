package cmd

import (
	"io"

	"github.com/catafolk/catafolk/dataset"
	"github.com/spf13/cobra"
)

// NewOpsCommand returns a command listing the available operations.
func NewOpsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "ops",
		Short: "ops - list the operations usable in transformations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			dataset.PrintOperations(stdout)
		},
	}
}

func init() {
	subcommandFns["ops"] = NewOpsCommand
}
