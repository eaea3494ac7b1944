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
	"math"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// expandTranscendentals rewrites sin/cos via range reduction into the
// architecture's two-part sine sequence, sqrt via rsqrt, and trunc via the
// round-to-integer output mode (or conversion and back when the target
// lacks it).
func expandTranscendentals(p *ir.Program, tgt *target.Descriptor) error {
	var err error
	//
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			switch insn.Op {
			case ir.OpFSin:
				expandSincos(p, block, id, false)
			case ir.OpFCos:
				expandSincos(p, block, id, true)
			case ir.OpFSqrt:
				expandSqrt(p, block, id)
			case ir.OpFTrunc:
				expandTrunc(p, block, id, tgt)
			}
			//
			return true
		})
	}
	//
	return err
}

// expandSincos implements the range reduction: turns = x / 2π (plus a
// quarter turn for cosine), reduced by fract, scaled to quadrants, then fed
// to the sin_pt_1 / sin_pt_2 pair.
func expandSincos(p *ir.Program, block *ir.Block, id ir.InstrID, cosine bool) {
	var (
		original  = *p.Instr(id)
		turns     = p.NewVirtual(1, ir.PrecFull)
		reduced   = p.NewVirtual(1, ir.PrecFull)
		quadrants = p.NewVirtual(1, ir.PrecFull)
		partial   = p.NewVirtual(1, ir.PrecFull)
		at        = id
	)
	// turns = x * (1 / 2pi)
	mul := ir.NewInstr(ir.OpFMul, ir.Virt(turns), original.Srcs[0], ir.ImmF32(float32(1/(2*math.Pi))))
	at = block.InsertAfter(at, mul)
	//
	if cosine {
		// turns += 0.25
		add := ir.NewInstr(ir.OpFAdd, ir.Virt(turns), ir.Virt(turns), ir.ImmF32(0.25))
		at = block.InsertAfter(at, add)
	}
	// reduced = fract(turns)
	at = block.InsertAfter(at, ir.NewInstr(ir.OpFFract, ir.Virt(reduced), ir.Virt(turns)))
	// quadrants = reduced * 4
	at = block.InsertAfter(at, ir.NewInstr(ir.OpFMul, ir.Virt(quadrants), ir.Virt(reduced), ir.ImmF32(4)))
	// Two-part sine approximation.
	at = block.InsertAfter(at, ir.NewInstr(ir.OpSinPt1, ir.Virt(partial), ir.Virt(quadrants)))
	//
	final := ir.NewInstr(ir.OpSinPt2, original.Dst, ir.Virt(partial), ir.Virt(quadrants))
	final.DstMod = original.DstMod
	block.InsertAfter(at, final)
	//
	block.Remove(id)
}

// expandSqrt rewrites sqrt(x) as x * rsqrt(x).
func expandSqrt(p *ir.Program, block *ir.Block, id ir.InstrID) {
	var (
		original = *p.Instr(id)
		inverse  = p.NewVirtual(1, ir.PrecFull)
	)
	//
	at := block.InsertAfter(id, ir.NewInstr(ir.OpFRsqrt, ir.Virt(inverse), original.Srcs[0]))
	//
	mul := ir.NewInstr(ir.OpFMul, original.Dst, original.Srcs[0], ir.Virt(inverse))
	mul.DstMod = original.DstMod
	block.InsertAfter(at, mul)
	//
	block.Remove(id)
}

// expandTrunc uses the round-to-integer output mode where available, and a
// float-int-float round trip otherwise.
func expandTrunc(p *ir.Program, block *ir.Block, id ir.InstrID, tgt *target.Descriptor) {
	original := *p.Instr(id)
	//
	if !tgt.Quirks.Has(target.NoRoundToInt) {
		mov := ir.NewInstr(ir.OpMov, original.Dst, original.Srcs[0])
		mov.DstMod = original.DstMod
		mov.DstMod.Round = ir.RoundToInt
		//
		block.InsertAfter(id, mov)
		block.Remove(id)
		//
		return
	}
	//
	scratch := p.NewVirtual(1, ir.PrecFull)
	at := block.InsertAfter(id, ir.NewInstr(ir.OpF2I32, ir.Virt(scratch), original.Srcs[0]))
	//
	back := ir.NewInstr(ir.OpI2F32, original.Dst, ir.Virt(scratch))
	back.DstMod = original.DstMod
	block.InsertAfter(at, back)
	//
	block.Remove(id)
}
