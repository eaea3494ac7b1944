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

	"github.com/spf13/cobra"

	"github.com/fjordgpu/go-fjord/pkg/binfile"
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// GetFlag reads an expected boolean flag, or exits if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	return r
}

// GetString reads an expected string flag, or exits if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	return r
}

// GetUint reads an expected uint flag, or exits if an error arises.
func GetUint(cmd *cobra.Command, flag string) uint {
	r, err := cmd.Flags().GetUint(flag)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	return r
}

// readProgram parses a serialised IR file, exiting on failure.
func readProgram(filename string) *ir.Program {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	program, err := binfile.Read(data)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	return program
}

// readTarget resolves the target descriptor: the file named by --target, or
// the default descriptor when the flag is absent.
func readTarget(cmd *cobra.Command) *target.Descriptor {
	filename := GetString(cmd, "target")
	//
	if filename == "" {
		desc := target.Default()
		return &desc
	}
	//
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	desc, err := target.FromYAML(data)
	if err != nil {
		fmt.Println(err)
		os.Exit(2)
	}
	//
	return &desc
}
