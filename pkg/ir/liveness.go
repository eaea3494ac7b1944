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
package ir

import (
	"github.com/bits-and-blooms/bitset"
)

// Liveness computes the classic per-block liveness sets over virtual
// registers:
//
//	live_in(B) = use(B) ∪ (live_out(B) \ def(B))
//	live_out(B) = ∪ live_in(S) for S in succs(B)
//
// iterated to a fixed point.  Per-register live extents within their
// defining block are refreshed as a side effect.  Fails with a CFGError if
// some use has no reaching definition anywhere in the program.
func Liveness(p *Program) error {
	nregs := uint(len(p.Registers))
	// Phase 1: per-block def/use.
	for _, block := range p.Blocks {
		block.Def = bitset.New(nregs)
		block.Use = bitset.New(nregs)
		block.LiveIn = bitset.New(nregs)
		block.LiveOut = bitset.New(nregs)
		//
		block.Each(func(id InstrID, insn *Instruction) bool {
			for i := uint(0); i < insn.NumSrcs(); i++ {
				src := &insn.Srcs[i]
				//
				if src.Kind == OperandVirtual && !block.Def.Test(uint(src.Virtual)) {
					block.Use.Set(uint(src.Virtual))
				}
			}
			//
			if insn.Dst.Kind == OperandVirtual {
				block.Def.Set(uint(insn.Dst.Virtual))
			}
			//
			return true
		})
	}
	// Phase 2: fixed point, backwards over the layout order.
	changed := true
	//
	for changed {
		changed = false
		//
		for i := len(p.Blocks) - 1; i >= 0; i-- {
			block := p.Blocks[i]
			//
			out := bitset.New(nregs)
			for _, s := range block.Succs {
				out.InPlaceUnion(p.Blocks[s].LiveIn)
			}
			//
			in := block.Use.Union(out.Difference(block.Def))
			//
			if !in.Equal(block.LiveIn) || !out.Equal(block.LiveOut) {
				block.LiveIn = in
				block.LiveOut = out
				changed = true
			}
		}
	}
	// Phase 3: a use which is live into the entry block was never defined.
	if undef, ok := p.Blocks[0].LiveIn.NextSet(0); ok {
		return &CFGError{Block: 0, Virtual: uint32(undef), Detail: "use without reaching definition"}
	}
	// Phase 4: refresh per-register extents (instruction positions within
	// the defining block).
	for _, block := range p.Blocks {
		pos := uint32(0)
		//
		block.Each(func(id InstrID, insn *Instruction) bool {
			if insn.Dst.Kind == OperandVirtual {
				reg := &p.Registers[insn.Dst.Virtual]
				reg.LiveStart = pos
				reg.LiveEnd = pos
			}
			//
			for i := uint(0); i < insn.NumSrcs(); i++ {
				src := &insn.Srcs[i]
				//
				if src.Kind == OperandVirtual {
					reg := &p.Registers[src.Virtual]
					//
					if reg.LiveEnd < pos {
						reg.LiveEnd = pos
					}
				}
			}
			//
			pos++
			return true
		})
	}
	//
	return nil
}
