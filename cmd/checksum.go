package cmd

import (
	"io"

	"github.com/catafolk/catafolk/dataset"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// ChecksumMain is wrapped by NewChecksumCommand and only exported for testing purposes.
var ChecksumMain *dataset.ChecksumMain

// NewChecksumCommand returns a new cobra command wrapping ChecksumMain.
func NewChecksumCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ChecksumMain = dataset.NewChecksumMain()
	ChecksumMain.SetOutput(stdout, stderr)
	command := &cobra.Command{
		Use:   "checksum [dataset...]",
		Short: "checksum - print the checksum of one or more datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ChecksumMain.Datasets = append(ChecksumMain.Datasets, args...)
			return ChecksumMain.Run()
		},
	}
	if err := commandeer.Flags(command.Flags(), ChecksumMain); err != nil {
		panic(err)
	}
	return command
}

func init() {
	subcommandFns["checksum"] = NewChecksumCommand
}
