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
package lower

import (
	"math/bits"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// scalariseVectors splits every ALU instruction whose write mask covers more
// than one lane but whose opcode the target cannot issue vectorised.  Lanes
// are issued in ascending bit order of the original mask; the clone for lane
// i reads source swizzle i - base, where base is the original instruction's
// lowest written lane.
func scalariseVectors(p *ir.Program, tgt *target.Descriptor) error {
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			var (
				info = insn.Op.Info()
				mask = insn.DstMod.WriteMask
			)
			//
			if info.Class != ir.ClassAlu || bits.OnesCount8(mask) <= 1 || info.Vectorisable {
				return true
			}
			//
			var (
				original = *insn
				base     = uint8(bits.TrailingZeros8(mask))
				at       = id
			)
			// Clones issue one lane at a time, so a clone writing a lane a
			// later clone reads would corrupt the source.  Register sources
			// are read through a fresh scratch copy the clones share.
			type scratchCopy struct {
				from ir.Operand
				to   uint32
			}
			//
			var copies []scratchCopy
			//
			for s := uint(0); s < original.NumSrcs(); s++ {
				src := &original.Srcs[s]
				//
				if src.Kind != ir.OperandVirtual && src.Kind != ir.OperandPhys {
					continue
				}
				//
				var (
					scratch uint32
					found   bool
				)
				//
				for c := range copies {
					if copies[c].from.SameReg(src) {
						scratch, found = copies[c].to, true
						break
					}
				}
				//
				if !found {
					scratch = p.NewVirtual(4, ir.PrecFull)
					//
					mov := ir.NewInstr(ir.OpMov, ir.Virt(scratch), *src)
					mov.Srcs[0].Mod = ir.DefaultSrcMod()
					mov.DstMod.WriteMask = 0b1111
					//
					at = block.InsertAfter(at, mov)
					copies = append(copies, scratchCopy{from: *src, to: scratch})
				}
				//
				mod := src.Mod
				*src = ir.Virt(scratch)
				src.Mod = mod
			}
			//
			for lane := base; lane < 4; lane++ {
				if mask&(1<<lane) == 0 {
					continue
				}
				//
				clone := original
				clone.DstMod.WriteMask = 1 << lane
				//
				for s := uint(0); s < clone.NumSrcs(); s++ {
					src := &clone.Srcs[s]
					//
					if src.Kind != ir.OperandVirtual && src.Kind != ir.OperandPhys {
						continue
					}
					//
					selected := src.Mod.Swizzle[lane-base]
					src.Mod.Swizzle = [4]uint8{
						ir.SwizzleMasked, ir.SwizzleMasked,
						ir.SwizzleMasked, ir.SwizzleMasked,
					}
					src.Mod.Swizzle[lane] = selected
				}
				//
				at = block.InsertAfter(at, clone)
			}
			//
			block.Remove(id)
			//
			return true
		})
	}
	//
	return nil
}
