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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

func Test_Alloc_01(t *testing.T) {
	// A simple program colours completely: no virtual operand survives and
	// interfering values land in different registers.
	p, b := addChain()
	//
	tgt := target.Default()
	require.NoError(t, Allocate(p, &tgt, nil))
	//
	p.EachInstr(func(_ *ir.Block, _ ir.InstrID, insn *ir.Instruction) bool {
		assert.NotEqual(t, ir.OperandVirtual, insn.Dst.Kind)
		//
		for i := uint(0); i < insn.NumSrcs(); i++ {
			assert.NotEqual(t, ir.OperandVirtual, insn.Srcs[i].Kind)
		}
		//
		return true
	})
	// The add reads its two interfering inputs from distinct registers.
	var add *ir.Instruction
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		if insn.Op == ir.OpIAdd {
			add = insn
		}
		//
		return true
	})
	//
	require.NotNil(t, add)
	assert.NotEqual(t, add.Srcs[0].Phys.Number, add.Srcs[1].Phys.Number)
	assert.NotZero(t, p.Meta.WorkRegisterCount)
}

func Test_Alloc_02(t *testing.T) {
	// A pinned register keeps its pin.
	p := ir.NewProgram(ir.StageVertex)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	pinned := p.NewPinned(1, ir.PrecFull, ir.PhysReg{File: ir.FileGeneral, Number: 5})
	out := p.NewVirtual(1, ir.PrecFull)
	//
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(pinned), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpIAdd, ir.Virt(out), ir.Virt(pinned), ir.Virt(pinned)))
	//
	tgt := target.Default()
	require.NoError(t, Allocate(p, &tgt, nil))
	//
	add := p.Instr(b.Tail())
	assert.Equal(t, uint16(5), add.Srcs[0].Phys.Number)
}

func Test_Alloc_03(t *testing.T) {
	// Two live-overlapping values pinned to the same slot are rejected.
	p := ir.NewProgram(ir.StageVertex)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	a := p.NewPinned(1, ir.PrecFull, ir.PhysReg{File: ir.FileGeneral, Number: 3})
	c := p.NewPinned(1, ir.PrecFull, ir.PhysReg{File: ir.FileGeneral, Number: 3})
	out := p.NewVirtual(1, ir.PrecFull)
	//
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(a), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(c), ir.Imm(2)))
	b.Append(ir.NewInstr(ir.OpIAdd, ir.Virt(out), ir.Virt(a), ir.Virt(c)))
	//
	tgt := target.Default()
	err := Allocate(p, &tgt, nil)
	//
	require.Error(t, err)
	ra, ok := err.(*ir.RAError)
	require.True(t, ok, "expected allocation error, got %v", err)
	assert.Equal(t, ir.InvalidPreColor, ra.Kind)
}

func Test_Alloc_04(t *testing.T) {
	// Wide registers occupy consecutive lanes; the count reflects the top.
	p := ir.NewProgram(ir.StageFragment)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	v := p.NewVirtual(4, ir.PrecFull)
	out := p.NewVirtual(4, ir.PrecFull)
	//
	mov := ir.NewInstr(ir.OpMov, ir.Virt(v), ir.Imm(0))
	mov.DstMod.WriteMask = 0b1111
	b.Append(mov)
	//
	mul := ir.NewInstr(ir.OpFMul, ir.Virt(out), ir.Virt(v), ir.ImmF32(2))
	mul.DstMod.WriteMask = 0b1111
	b.Append(mul)
	//
	tgt := target.Default()
	require.NoError(t, Allocate(p, &tgt, nil))
	//
	assert.GreaterOrEqual(t, p.Meta.WorkRegisterCount, uint32(4))
}

func Test_Class_01(t *testing.T) {
	// Cross-precision bounds are enumerated exactly when the target forbids
	// half and full values from co-residing in one file.
	tgt := target.Default()
	tgt.Quirks &^= target.MixedPrecision
	strict := buildClasses(&tgt)
	//
	full := strict.IDFor(ir.PrecFull, 1)
	half := strict.IDFor(ir.PrecHalf, 1)
	//
	assert.NotZero(t, strict.Q(full, half))
	assert.NotZero(t, strict.Q(full, full))
	//
	tgt.Quirks |= target.MixedPrecision
	relaxed := buildClasses(&tgt)
	//
	assert.Zero(t, relaxed.Q(full, half))
	assert.NotZero(t, relaxed.Q(full, full))
}

func Test_Graph_01(t *testing.T) {
	// Values live at the same time interfere; disjoint ranges do not.
	p, _ := addChain()
	//
	require.NoError(t, ir.Liveness(p))
	g := NewGraph(p)
	//
	assert.True(t, g.Interferes(0, 1))
	assert.True(t, g.Interferes(1, 0))
	// The sum is defined after both inputs die.
	assert.False(t, g.Interferes(0, 2))
	assert.NotZero(t, g.Degree(0))
}

func Test_Parcopy_01(t *testing.T) {
	// A dependency chain is emitted tail first.
	p, b, at := copySite()
	//
	copies := []Copy{
		{Dst: gpr(1), Src: gpr(0)},
		{Dst: gpr(2), Src: gpr(1)},
	}
	//
	tgt := target.Default()
	EmitParallelCopy(b, at, copies, &tgt)
	//
	movs := collect(p, b)[1:]
	require.Len(t, movs, 2)
	//
	assert.Equal(t, uint16(2), movs[0].Dst.Phys.Number)
	assert.Equal(t, uint16(1), movs[0].Srcs[0].Phys.Number)
	assert.Equal(t, uint16(1), movs[1].Dst.Phys.Number)
	assert.Equal(t, uint16(0), movs[1].Srcs[0].Phys.Number)
}

func Test_Parcopy_02(t *testing.T) {
	// A two-register cycle is a single exchange, nothing more.
	p, b, at := copySite()
	//
	copies := []Copy{
		{Dst: gpr(0), Src: gpr(1)},
		{Dst: gpr(1), Src: gpr(0)},
	}
	//
	tgt := target.Default()
	EmitParallelCopy(b, at, copies, &tgt)
	//
	inserted := collect(p, b)[1:]
	require.Len(t, inserted, 1)
	assert.Equal(t, ir.OpSwap, inserted[0].Op)
}

func Test_Parcopy_03(t *testing.T) {
	// Without an exchange instruction the cycle breaks into three xors.
	p, b, at := copySite()
	//
	copies := []Copy{
		{Dst: gpr(0), Src: gpr(1)},
		{Dst: gpr(1), Src: gpr(0)},
	}
	//
	tgt := target.Default()
	tgt.Quirks |= target.NoSwap
	EmitParallelCopy(b, at, copies, &tgt)
	//
	inserted := collect(p, b)[1:]
	require.Len(t, inserted, 3)
	//
	for _, insn := range inserted {
		assert.Equal(t, ir.OpIXor, insn.Op)
	}
}

func Test_Parcopy_04(t *testing.T) {
	// A three-cycle needs two exchanges.
	p, b, at := copySite()
	//
	copies := []Copy{
		{Dst: gpr(0), Src: gpr(1)},
		{Dst: gpr(1), Src: gpr(2)},
		{Dst: gpr(2), Src: gpr(0)},
	}
	//
	tgt := target.Default()
	EmitParallelCopy(b, at, copies, &tgt)
	//
	swaps := 0
	//
	for _, insn := range collect(p, b)[1:] {
		if insn.Op == ir.OpSwap {
			swaps++
		} else {
			assert.Equal(t, ir.OpMov, insn.Op)
		}
	}
	//
	assert.Equal(t, 2, swaps)
}

// ============================================================================
// Test Helpers
// ============================================================================

// addChain builds "a = 1; b = 2; sum = a + b" over three scalar virtuals.
func addChain() (*ir.Program, *ir.Block) {
	p := ir.NewProgram(ir.StageCompute)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	a := p.NewVirtual(1, ir.PrecFull)
	c := p.NewVirtual(1, ir.PrecFull)
	sum := p.NewVirtual(1, ir.PrecFull)
	//
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(a), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(c), ir.Imm(2)))
	b.Append(ir.NewInstr(ir.OpIAdd, ir.Virt(sum), ir.Virt(a), ir.Virt(c)))
	//
	return p, b
}

// copySite builds an empty block holding a single anchor instruction.
func copySite() (*ir.Program, *ir.Block, ir.InstrID) {
	p := ir.NewProgram(ir.StageCompute)
	b := p.NewBlock(ir.BlockTopLevel)
	at := b.Append(ir.NewInstr(ir.OpNop, ir.NullOperand()))
	//
	return p, b, at
}

func gpr(n uint16) ir.PhysReg {
	return ir.PhysReg{File: ir.FileGeneral, Number: n}
}

func collect(p *ir.Program, b *ir.Block) []*ir.Instruction {
	var out []*ir.Instruction
	//
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		out = append(out, insn)
		//
		return true
	})
	//
	return out
}
