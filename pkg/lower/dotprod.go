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
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// expandDotProducts rewrites dotN into an elementwise multiply producing an
// N-wide scratch vector, followed by a sumN (or a plain add for N == 2)
// reading that scratch with ascending swizzle.  Source modifiers do not
// propagate through the expansion.
func expandDotProducts(p *ir.Program, tgt *target.Descriptor) error {
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			var width uint8
			//
			switch insn.Op {
			case ir.OpFDot2:
				width = 2
			case ir.OpFDot3:
				width = 3
			case ir.OpFDot4:
				width = 4
			default:
				return true
			}
			//
			var (
				original = *insn
				scratch  = p.NewVirtual(width, ir.PrecFull)
			)
			// Elementwise multiply into the scratch vector.
			mul := ir.NewInstr(ir.OpFMul, ir.Virt(scratch), original.Srcs[0], original.Srcs[1])
			mul.DstMod.WriteMask = (1 << width) - 1
			//
			at := block.InsertAfter(id, mul)
			// Horizontal sum out of the scratch vector.
			sum := sumInstr(width, original.Dst, scratch)
			sum.DstMod = original.DstMod
			//
			block.InsertAfter(at, sum)
			block.Remove(id)
			//
			return true
		})
	}
	//
	return nil
}

func sumInstr(width uint8, dst ir.Operand, scratch uint32) ir.Instruction {
	ascending := func(n uint8) ir.SrcMod {
		mod := ir.DefaultSrcMod()
		//
		for lane := uint8(0); lane < 4; lane++ {
			if lane < n {
				mod.Swizzle[lane] = lane
			} else {
				mod.Swizzle[lane] = ir.SwizzleMasked
			}
		}
		//
		return mod
	}
	//
	if width == 2 {
		// add dst, scratch.x, scratch.y
		a := ir.Virt(scratch)
		a.Mod.Swizzle = [4]uint8{0, ir.SwizzleMasked, ir.SwizzleMasked, ir.SwizzleMasked}
		b := ir.Virt(scratch)
		b.Mod.Swizzle = [4]uint8{1, ir.SwizzleMasked, ir.SwizzleMasked, ir.SwizzleMasked}
		//
		return ir.NewInstr(ir.OpFAdd, dst, a, b)
	}
	//
	op := ir.OpFSum3
	if width == 4 {
		op = ir.OpFSum4
	}
	//
	src := ir.Virt(scratch)
	src.Mod = ascending(width)
	//
	return ir.NewInstr(op, dst, src)
}
