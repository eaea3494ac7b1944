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
package regalloc

import (
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// Copy is one lane of a parallel copy: both ends are physical registers of
// the same file.
type Copy struct {
	Dst ir.PhysReg
	Src ir.PhysReg
}

// EmitParallelCopy sequentialises a set of simultaneous register moves at a
// given insertion point.  Straight-line chains become movs in dependency
// order; cycles are broken with the target's exchange instruction, or with
// the three-xor pattern when the target lacks one.  Returns the id of the
// last inserted instruction.
func EmitParallelCopy(block *ir.Block, after ir.InstrID, copies []Copy, tgt *target.Descriptor) ir.InstrID {
	var (
		pending = append([]Copy(nil), copies...)
		at      = after
	)
	// A copy is emittable when nothing still pending reads its destination.
	for len(pending) > 0 {
		emitted := false
		//
		for i := 0; i < len(pending); i++ {
			if readsReg(pending, pending[i].Dst, i) {
				continue
			}
			//
			if pending[i].Dst != pending[i].Src {
				mov := ir.NewInstr(ir.OpMov,
					ir.Phys(pending[i].Dst.File, pending[i].Dst.Number, pending[i].Dst.Offset),
					ir.Phys(pending[i].Src.File, pending[i].Src.Number, pending[i].Src.Offset))
				//
				at = block.InsertAfter(at, mov)
			}
			//
			pending = append(pending[:i], pending[i+1:]...)
			emitted = true
			i--
		}
		//
		if emitted {
			continue
		}
		// Only cycles remain; break the first one with a swap.
		head := pending[0]
		at = emitSwap(block, at, head.Dst, head.Src, tgt)
		// The swap satisfied the head copy and exchanged the two registers:
		// reads of either end must chase the value to its new home.
		pending = pending[1:]
		//
		for i := range pending {
			switch pending[i].Src {
			case head.Src:
				pending[i].Src = head.Dst
			case head.Dst:
				pending[i].Src = head.Src
			}
		}
	}
	//
	return at
}

// emitSwap exchanges two registers using the dedicated opcode where the
// target has one, and three xors otherwise.
func emitSwap(block *ir.Block, at ir.InstrID, a, b ir.PhysReg, tgt *target.Descriptor) ir.InstrID {
	if !tgt.Quirks.Has(target.NoSwap) {
		swap := ir.NewInstr(ir.OpSwap,
			ir.Phys(a.File, a.Number, a.Offset),
			ir.Phys(a.File, a.Number, a.Offset),
			ir.Phys(b.File, b.Number, b.Offset))
		//
		return block.InsertAfter(at, swap)
	}
	//
	xor := func(dst, x, y ir.PhysReg) ir.Instruction {
		return ir.NewInstr(ir.OpIXor,
			ir.Phys(dst.File, dst.Number, dst.Offset),
			ir.Phys(x.File, x.Number, x.Offset),
			ir.Phys(y.File, y.Number, y.Offset))
	}
	//
	at = block.InsertAfter(at, xor(a, a, b))
	at = block.InsertAfter(at, xor(b, b, a))
	at = block.InsertAfter(at, xor(a, a, b))
	//
	return at
}

func readsReg(pending []Copy, reg ir.PhysReg, skip int) bool {
	for i := range pending {
		if i != skip && pending[i].Src == reg {
			return true
		}
	}
	//
	return false
}
