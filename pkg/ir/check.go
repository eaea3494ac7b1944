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

import "math/bits"

// Check validates the structural invariants of a program: SSA single
// definitions (pre register allocation), write-mask coherence against
// register widths, and base alignment of wide physical registers.  Returns
// the first violation found as an internal error.
func Check(p *Program, ssa bool) error {
	defined := make([]bool, len(p.Registers))
	//
	for _, block := range p.Blocks {
		var err error
		//
		block.Each(func(id InstrID, insn *Instruction) bool {
			if err = checkInstr(p, insn, defined, ssa); err != nil {
				return false
			}
			//
			return true
		})
		//
		if err != nil {
			return err
		}
		//
		if len(block.Succs) > 2 {
			return Internalf("block %d has %d successors", block.Index, len(block.Succs))
		}
	}
	//
	return nil
}

func checkInstr(p *Program, insn *Instruction, defined []bool, ssa bool) error {
	if !insn.Op.Valid() {
		return Internalf("invalid opcode %d", insn.Op)
	}
	// SSA: one definition per virtual register.
	if insn.Dst.Kind == OperandVirtual {
		v := insn.Dst.Virtual
		//
		if ssa && defined[v] {
			return Internalf("virtual register v%d defined twice", v)
		}
		//
		defined[v] = true
		// Mask coherence: written lanes must fit the register width.
		reg := &p.Registers[v]
		width := uint8(bits.Len8(insn.DstMod.WriteMask))
		//
		if width > reg.Lanes {
			return Internalf("v%d mask %04b exceeds %d lanes", v, insn.DstMod.WriteMask, reg.Lanes)
		}
	}
	// Alignment: wide physical registers need an aligned base.
	if insn.Dst.Kind == OperandPhys {
		reg := insn.Dst.Phys
		lanes := uint16(bits.OnesCount8(insn.DstMod.WriteMask))
		//
		if lanes == 2 && reg.Number%2 != 0 {
			return Internalf("register %v: pair base must be even", reg)
		}
		//
		if lanes > 2 && reg.Number%lanes != 0 {
			return Internalf("register %v: base must be a multiple of %d", reg, lanes)
		}
	}
	//
	return nil
}
