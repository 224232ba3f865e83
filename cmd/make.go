// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"io"
	"log"
	"time"

	"github.com/catafolk/catafolk/dataset"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// MakeMain is wrapped by NewMakeCommand and only exported for testing purposes.
var MakeMain *dataset.Main

// NewMakeCommand returns a new cobra command wrapping MakeMain.
func NewMakeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var err error
	MakeMain = dataset.NewMain()
	MakeMain.SetOutput(stdout, stderr)
	makeCommand := &cobra.Command{
		Use:   "make [dataset...]",
		Short: "make - build the index of one or more datasets",
		Long: `Collects the sources of each dataset, applies its transformations and
writes the result to index.csv in the dataset directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			MakeMain.Datasets = append(MakeMain.Datasets, args...)
			err = MakeMain.Run()
			if err != nil {
				return err
			}
			log.New(stderr, "", log.LstdFlags).Println("Done: ", time.Since(start))
			return nil
		},
	}
	flags := makeCommand.Flags()
	err = commandeer.Flags(flags, MakeMain)
	if err != nil {
		panic(err)
	}
	return makeCommand
}

func init() {
	subcommandFns["make"] = NewMakeCommand
}
