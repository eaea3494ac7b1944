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
)

// spillRegister rewrites one virtual register through scratch memory: a
// store follows its definition, and each use reads a freshly loaded copy.
// The rewritten program is no longer strictly SSA; liveness is recomputed
// on the retry.
func spillRegister(p *ir.Program, virtual uint32) {
	var (
		slot  = p.ScratchSize
		lanes = p.Registers[virtual].Lanes
	)
	//
	p.ScratchSize += int32(lanes) * 4
	//
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			if insn.Writes(virtual) {
				store := ir.NewInstr(ir.OpStore, ir.NullOperand(), ir.Virt(virtual))
				store.Mem = ir.MemInfo{Dims: 0, Offset: slot, Elem: ir.TypeB32, Lanes: lanes}
				//
				block.InsertAfter(id, store)
				//
				return true
			}
			//
			if insn.Reads(virtual) {
				fill := p.NewVirtual(lanes, p.Registers[virtual].Precision)
				load := ir.NewInstr(ir.OpLoad, ir.Virt(fill))
				load.Mem = ir.MemInfo{Dims: 0, Offset: slot, Elem: ir.TypeB32, Lanes: lanes}
				//
				block.InsertBefore(id, load)
				p.ReplaceSrc(id, virtual, ir.Virt(fill))
			}
			//
			return true
		})
	}
}
