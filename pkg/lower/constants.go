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

// rewriteConstants hoists every constant operand sitting in a slot the
// opcode cannot accept it in, inserting a mov into a fresh virtual register
// in front of the consumer.  Afterwards every remaining constant reference
// is const-legal per the opcode's signature.
func rewriteConstants(p *ir.Program, tgt *target.Descriptor) error {
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			info := insn.Op.Info()
			//
			for i := uint(0); i < insn.NumSrcs(); i++ {
				src := &insn.Srcs[i]
				//
				if !src.IsConst() || info.ConstSrcs&(1<<i) != 0 {
					continue
				}
				// Hoist into a fresh register.
				scratch := p.NewVirtual(1, ir.PrecFull)
				mov := ir.NewInstr(ir.OpMov, ir.Virt(scratch), *src)
				mov.Srcs[0].Mod = ir.DefaultSrcMod()
				//
				block.InsertBefore(id, mov)
				// Insertion may grow the arena; refetch.
				insn = p.Instr(id)
				//
				mod := insn.Srcs[i].Mod
				insn.Srcs[i] = ir.Virt(scratch)
				insn.Srcs[i].Mod = mod
				src = &insn.Srcs[i]
			}
			//
			return true
		})
	}
	//
	return nil
}
