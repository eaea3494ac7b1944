// Copyright Fjord GPU Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/lower"
	"github.com/fjordgpu/go-fjord/pkg/regalloc"
	"github.com/fjordgpu/go-fjord/pkg/sched"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm [flags] ir_file",
	Short: "print the IR of a serialised shader.",
	Long: `Print a serialised shader's IR at various points of the pipeline in order
	 to inspect what the back end makes of it.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}
		// Configure log level
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}
		//
		ir.Debug = GetFlag(cmd, "debug-ir")
		//
		var (
			lowered   = GetFlag(cmd, "lowered")
			allocated = GetFlag(cmd, "allocated")
			scheduled = GetFlag(cmd, "scheduled")
			program   = readProgram(args[0])
			tgt       = readTarget(cmd)
		)
		//
		run := func(name string, pass func() error) {
			if err := pass(); err != nil {
				fmt.Printf("error in %s: %s\n", name, err)
				os.Exit(1)
			}
		}
		//
		if lowered || allocated || scheduled {
			run("lowering", func() error { return lower.Run(program, tgt, nil) })
		}
		//
		if allocated || scheduled {
			run("regalloc", func() error { return regalloc.Allocate(program, tgt, nil) })
		}
		//
		if scheduled {
			run("sched", func() error { return sched.Schedule(program, tgt, nil) })
		}
		//
		fmt.Print(ir.Disassemble(program))
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
	disasmCmd.Flags().Bool("lowered", false, "print the IR after the lowering passes")
	disasmCmd.Flags().Bool("allocated", false, "print the IR after register allocation")
	disasmCmd.Flags().Bool("scheduled", false, "print the IR after the hazard scheduler")
}
