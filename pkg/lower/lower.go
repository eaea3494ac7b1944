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

// Package lower legalises a program for a concrete target: constants are
// hoisted into legal slots, vector operations are split to the widths the
// ALU can issue, composite operations (dot products, transcendentals,
// framebuffer formats) are expanded, and modifiers are canonicalised.
// Passes run in a fixed order and rewrite the program in place.
package lower

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// Pass is a single legalisation step.
type Pass struct {
	Name string
	Run  func(*ir.Program, *target.Descriptor) error
}

// Passes is the fixed pass order.  Implementations must not reorder it.
var Passes = []Pass{
	{"constants", rewriteConstants},
	{"scalarise", scalariseVectors},
	{"dot-product", expandDotProducts},
	{"transcendental", expandTranscendentals},
	{"framebuffer", lowerFramebuffer},
	{"modifiers", canonicaliseModifiers},
}

// Run applies every pass in order, checking the cooperative stop flag
// between passes.
func Run(p *ir.Program, tgt *target.Descriptor, stop *atomic.Bool) error {
	for _, pass := range Passes {
		if stop != nil && stop.Load() {
			return ir.ErrCancelled
		}
		//
		start := time.Now()
		//
		if err := pass.Run(p, tgt); err != nil {
			return err
		}
		//
		for _, block := range p.Blocks {
			block.Sweep()
		}
		//
		log.Debugf("lower/%s took %v", pass.Name, time.Since(start))
		//
		if ir.Debug {
			if err := ir.Check(p, false); err != nil {
				return err
			}
		}
	}
	//
	return nil
}

// unsupported constructs the fatal lowering failure for an opcode with no
// rewrite entry on the given target.
func unsupported(op ir.Opcode, stage ir.Stage, tgt *target.Descriptor) error {
	return &ir.LowerError{Op: op, Stage: stage, Target: tgt.Name}
}
