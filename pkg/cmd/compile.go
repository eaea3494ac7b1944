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

	"github.com/fjordgpu/go-fjord/pkg/binfile"
	"github.com/fjordgpu/go-fjord/pkg/cache"
	"github.com/fjordgpu/go-fjord/pkg/compiler"
	"github.com/fjordgpu/go-fjord/pkg/ir"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] ir_file",
	Short: "compile serialised IR into a native shader binary.",
	Long: `Compile a serialised IR file into a native shader binary plus its runtime
	 metadata record, optionally going through the content-addressed shader cache.`,
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
			output   = GetString(cmd, "output")
			cacheDir = GetString(cmd, "cache")
			buildID  = GetString(cmd, "build-id")
			tgt      = readTarget(cmd)
		)
		//
		source, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		//
		var store *cache.Cache
		//
		if cacheDir != "" {
			if store, err = cache.New(cacheDir, 256); err != nil {
				fmt.Println(err)
				os.Exit(2)
			}
			//
			key := cache.Key(source, buildID)
			//
			if blob, ok := store.Get(key); ok {
				log.Debugf("cache hit for %s", key)
				writeOutput(output, blob)
				//
				return
			}
		}
		//
		program, err := binfile.Read(source)
		if err != nil {
			fmt.Println(err)
			os.Exit(2)
		}
		//
		if err := compiler.Compile(program, tgt, nil); err != nil {
			fmt.Printf("error compiling %s: %s\n", args[0], err)
			os.Exit(1)
		}
		//
		blob := compiler.MarshalResult(program)
		//
		if store != nil {
			if err := store.Put(cache.Key(source, buildID), blob); err != nil {
				log.Warnf("cache write failed: %v", err)
			}
		}
		//
		writeOutput(output, blob)
	},
}

func writeOutput(filename string, blob []byte) {
	if err := os.WriteFile(filename, blob, 0o644); err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
}

//nolint:errcheck
func init() {
	rootCmd.AddCommand(compileCmd)
	compileCmd.Flags().StringP("output", "o", "a.fjb", "specify output file.")
	compileCmd.Flags().String("cache", "", "shader cache directory.")
	compileCmd.Flags().String("build-id", "", "build id mixed into cache keys.")
}
