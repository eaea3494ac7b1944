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
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Print_01(t *testing.T) {
	// Negated float immediate with single-lane writes.
	insn := NewInstr(OpFAdd,
		Phys(FileGeneral, 1, 0),
		swizzled(Phys(FileGeneral, 2, 0), 0),
		negated(ImmF32(0.0)))
	insn.DstMod.WriteMask = 0b1000
	//
	checkPrint(t, insn, "add.f r1.w, r2.x, (neg)(0.0)")
}

func Test_Print_02(t *testing.T) {
	insn := NewInstr(OpFMul, Virt(3), Virt(1), Virt(2))
	//
	checkPrint(t, insn, "mul.f v3, v1, v2")
}

func Test_Print_03(t *testing.T) {
	// Non-integral float immediates print exactly.
	insn := NewInstr(OpFMul, Virt(1), Virt(0), ImmF32(0.25))
	//
	checkPrint(t, insn, "mul.f v1, v0, (0.25)")
}

func Test_Print_04(t *testing.T) {
	// Memory shape rides in the mnemonic.
	insn := NewInstr(OpLoad,
		swizzled(Phys(FileGeneral, 0, 0), 0),
		swizzled(Phys(FileGeneral, 0, 0), 0),
		swizzled(Phys(FileGeneral, 1, 0), 2))
	insn.Srcs[2] = Uniform(0, 0)
	insn.Mem = MemInfo{Dims: 4, Elem: TypeF32, Lanes: 4}
	//
	checkPrint(t, insn, "ldgb.untyped.4d.f32.4 r0.x, g[0], r0.x, r1.z")
}

func Test_Print_05(t *testing.T) {
	// Shift-add fusion spells its shift amount.
	insn := NewInstr(OpShlAdd, Virt(2), Virt(0), Imm(4))
	insn.ImmKind = ImmShift
	insn.Imm = 3 << 32
	//
	checkPrint(t, insn, "lshl3_add.i v2, v0, 4")
}

func Test_Print_06(t *testing.T) {
	insn := NewInstr(OpSync, NullOperand())
	insn.Sync = SyncInfo{Token: 3, Mode: SyncDst}
	//
	checkPrint(t, insn, "sync sb3")
}

func Test_Print_07(t *testing.T) {
	insn := NewInstr(OpWaitVscnt, NullOperand())
	insn.ImmKind, insn.Imm = ImmRaw, 0
	//
	checkPrint(t, insn, "s_waitcnt_vscnt 0")
}

func Test_Print_08(t *testing.T) {
	insn := NewInstr(OpJump, NullOperand())
	insn.Ctrl.Target = 2
	//
	checkPrint(t, insn, "jmp block2")
}

// ============================================================================
// Test Helpers
// ============================================================================

func checkPrint(t *testing.T, insn Instruction, want string) {
	t.Helper()
	//
	p := NewProgram(StageFragment)
	//
	assert.Equal(t, want, p.InstrString(&insn))
}

func swizzled(op Operand, lane uint8) Operand {
	op.Mod.Swizzle = [4]uint8{lane, SwizzleMasked, SwizzleMasked, SwizzleMasked}
	//
	return op
}

func negated(op Operand) Operand {
	op.Mod.Neg = true
	//
	return op
}
