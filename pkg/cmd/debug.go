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
	"strings"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var debugCmd = &cobra.Command{
	Use:   "debug [flags] ir_file",
	Short: "print the structure of a serialised shader.",
	Long: `Print a serialised shader's symbol table, compile-time key and register
	 file, either summarised or as a raw structure dump.`,
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
		var (
			raw     = GetFlag(cmd, "raw")
			program = readProgram(args[0])
			width   = 72
		)
		//
		if term.IsTerminal(0) {
			if w, _, err := term.GetSize(0); err == nil {
				width = w
			}
		}
		//
		if raw {
			spew.Dump(program)
			return
		}
		//
		rule := strings.Repeat("-", width)
		//
		fmt.Printf("%s shader, %d blocks, %d virtual registers\n",
			program.Stage, len(program.Blocks), len(program.Registers))
		fmt.Println(rule)
		//
		for _, u := range program.Symbols.Uniforms {
			fmt.Printf("uniform  %-20s loc=%-3d lanes=%d\n", u.Name, u.Location, u.Lanes)
		}
		//
		for _, a := range program.Symbols.Attributes {
			fmt.Printf("attrib   %-20s loc=%-3d lanes=%d\n", a.Name, a.Location, a.Lanes)
		}
		//
		for _, o := range program.Symbols.Outputs {
			fmt.Printf("output   %-20s loc=%-3d lanes=%d\n", o.Name, o.Location, o.Lanes)
		}
		//
		fmt.Println(rule)
		fmt.Printf("key: depth_clip=%v blend_constant=%v wave_size=%d\n",
			program.Key.DepthClip, program.Key.BlendConstant, program.Key.WaveSize)
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().Bool("raw", false, "dump the full program structure")
}
