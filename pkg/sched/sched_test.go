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
package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

func Test_Deps_01(t *testing.T) {
	// Merging takes the newest ordered address and the strongest mode.
	var tokens Unifier
	//
	a := Dependency{Ord: OrdSrc, Jp: 3}
	b := Dependency{Ord: OrdDst, Jp: 7}
	//
	merged := Merge(a, b, &tokens)
	//
	assert.Equal(t, OrdDst, merged.Ord)
	assert.Equal(t, int64(7), merged.Jp)
}

func Test_Deps_02(t *testing.T) {
	// Distinct tokens for the same slot collapse through the unifier.
	var tokens Unifier
	//
	t0, t1 := tokens.Fresh(), tokens.Fresh()
	a := Dependency{Unord: ir.SyncSet, Token: t0}
	b := Dependency{Unord: ir.SyncSrc, Token: t1}
	//
	merged := Merge(a, b, &tokens)
	//
	assert.Equal(t, ir.SyncSet, merged.Unord)
	assert.Equal(t, tokens.Find(t0), tokens.Find(t1))
}

func Test_Deps_03(t *testing.T) {
	// Transport shifts the ordered half only; empty deps are not live.
	d := Transport(Dependency{Ord: OrdDst, Jp: 4, Unord: ir.SyncSet, Token: 9}, 10)
	//
	assert.Equal(t, int64(14), d.Jp)
	assert.Equal(t, uint32(9), d.Token)
	assert.True(t, d.Live())
	assert.False(t, Dependency{}.Live())
}

func Test_Tokens_01(t *testing.T) {
	var tokens Unifier
	//
	a := tokens.Fresh()
	b := tokens.Fresh()
	c := tokens.Fresh()
	tokens.Union(a, c)
	//
	assert.Equal(t, tokens.Find(a), tokens.Find(c))
	assert.NotEqual(t, tokens.Find(a), tokens.Find(b))
	assert.Equal(t, uint32(3), tokens.Len())
	// Unified temporaries share one hardware SBID.
	flat := tokens.Flatten(16)
	assert.Equal(t, flat[a], flat[c])
	assert.NotEqual(t, flat[a], flat[b])
}

func Test_Tokens_02(t *testing.T) {
	// More representatives than hardware tokens wrap around.
	var tokens Unifier
	//
	for i := 0; i < 5; i++ {
		tokens.Fresh()
	}
	//
	flat := tokens.Flatten(4)
	//
	assert.Equal(t, flat[0], flat[4])
	assert.NotEqual(t, flat[0], flat[1])
}

func Test_Board_01(t *testing.T) {
	// An out-of-order write shadows the slot but keeps the ordered half.
	var tokens Unifier
	//
	sb := NewScoreboard()
	reg := ir.PhysReg{File: ir.FileGeneral, Number: 3}
	//
	sb.InstallWrite(reg, 5, false, 0)
	sb.InstallWrite(reg, 6, true, tokens.Fresh())
	//
	dep := sb.Get(reg)
	assert.Equal(t, OrdDst, dep.Ord)
	assert.Equal(t, int64(5), dep.Jp)
	assert.Equal(t, ir.SyncSet, dep.Unord)
}

func Test_Board_02(t *testing.T) {
	// And vice versa: an in-order write keeps the unordered half alive.
	var tokens Unifier
	//
	sb := NewScoreboard()
	reg := ir.PhysReg{File: ir.FileGeneral, Number: 3}
	token := tokens.Fresh()
	//
	sb.InstallWrite(reg, 5, true, token)
	sb.InstallWrite(reg, 6, false, 0)
	//
	dep := sb.Get(reg)
	assert.Equal(t, OrdDst, dep.Ord)
	assert.Equal(t, int64(6), dep.Jp)
	assert.Equal(t, ir.SyncSet, dep.Unord)
	assert.Equal(t, token, dep.Token)
}

func Test_Board_03(t *testing.T) {
	// Clone and merge round trip.
	var tokens Unifier
	//
	sb := NewScoreboard()
	reg := ir.PhysReg{File: ir.FileAddr, Number: 1}
	sb.InstallWrite(reg, 3, false, 0)
	//
	other := NewScoreboard()
	require.True(t, other.MergeFrom(sb, 0, &tokens))
	require.False(t, other.MergeFrom(sb, 0, &tokens))
	//
	assert.True(t, other.Equal(sb))
	assert.True(t, sb.Clone().Equal(sb))
}

func Test_Sched_01(t *testing.T) {
	// Back to back dependent ALU ops carry distance one.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpMov, gpr(0), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpFAdd, gpr(1), gpr(0), gpr(0)))
	//
	tgt := target.Default()
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	add := p.Instr(b.Tail())
	assert.Equal(t, uint8(1), add.Sched.RegDist)
	assert.Equal(t, ir.SyncNone, add.Sched.Mode)
}

func Test_Sched_02(t *testing.T) {
	// Distances beyond the annotation field clamp to the target maximum.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpMov, gpr(0), ir.Imm(1)))
	//
	for i := uint16(10); i < 20; i++ {
		b.Append(ir.NewInstr(ir.OpMov, gpr(i), ir.Imm(0)))
	}
	//
	b.Append(ir.NewInstr(ir.OpFAdd, gpr(1), gpr(0), gpr(0)))
	//
	tgt := target.Default()
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	add := p.Instr(b.Tail())
	assert.Equal(t, tgt.MaxRegDist, add.Sched.RegDist)
}

func Test_Sched_03(t *testing.T) {
	// An out-of-order producer sets its token; the consumer folds the
	// matching destination wait into its own annotation.
	p, b := physProgram()
	//
	load := ir.NewInstr(ir.OpLoad, gpr(2), gpr(0), gpr(1), ir.Uniform(0, 0))
	loadID := b.Append(load)
	b.Append(ir.NewInstr(ir.OpFAdd, gpr(3), gpr(2), gpr(2)))
	//
	tgt := target.Default()
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	producer := p.Instr(loadID)
	consumer := p.Instr(b.Tail())
	//
	assert.Equal(t, ir.SyncSet, producer.Sched.Mode)
	assert.Equal(t, ir.SyncDst, consumer.Sched.Mode)
	assert.Equal(t, producer.Sched.SBID, consumer.Sched.SBID)
	// The single wait folds; nothing was inserted.
	assert.Equal(t, uint(2), b.Len())
}

func Test_Sched_04(t *testing.T) {
	// A vector memory access outstanding across a block edge is drained
	// before the first memory access of the successor.
	p := ir.NewProgram(ir.StageCompute)
	b0 := p.NewBlock(ir.BlockTopLevel)
	b1 := p.NewBlock(ir.BlockTopLevel)
	b0.SetSuccessors(b1.Index)
	//
	b0.Append(ir.NewInstr(ir.OpLoad, gpr(0), gpr(1), gpr(1), ir.Uniform(0, 0)))
	b1.Append(ir.NewInstr(ir.OpLdsLoad, gpr(2), gpr(3)))
	b1.Append(ir.NewInstr(ir.OpEnd, ir.NullOperand()))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX10
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	ops := collectOps(b1)
	require.GreaterOrEqual(t, len(ops), 2)
	assert.Equal(t, ir.OpWaitVscnt, ops[0])
	assert.Equal(t, ir.OpLdsLoad, ops[1])
}

func Test_Sched_05(t *testing.T) {
	// Overwriting a register an outstanding store still reads waits for the
	// store's sources.
	p, b := physProgram()
	//
	store := ir.NewInstr(ir.OpStore, ir.NullOperand(), gpr(5), gpr(5), ir.Uniform(0, 0), gpr(1))
	storeID := b.Append(store)
	b.Append(ir.NewInstr(ir.OpMov, gpr(1), ir.Imm(0)))
	//
	tgt := target.Default()
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	producer := p.Instr(storeID)
	writer := p.Instr(b.Tail())
	//
	assert.Equal(t, ir.SyncSet, producer.Sched.Mode)
	assert.Equal(t, ir.SyncSrc, writer.Sched.Mode)
	assert.Equal(t, producer.Sched.SBID, writer.Sched.SBID)
}

func Test_Sched_06(t *testing.T) {
	// Padding inserted in a predecessor sits before the producer, not
	// between producer and consumer, so it must not widen the distance a
	// successor waits on.
	p := ir.NewProgram(ir.StageCompute)
	b0 := p.NewBlock(ir.BlockTopLevel)
	b1 := p.NewBlock(ir.BlockTopLevel)
	b0.SetSuccessors(b1.Index)
	//
	b0.Append(ir.NewInstr(ir.OpMov, ir.Phys(ir.FileFlag, 0, 0), ir.Imm(1)))
	b0.Append(ir.NewInstr(ir.OpMov, gpr(0), ir.Phys(ir.FileFlag, 0, 0)))
	b1.Append(ir.NewInstr(ir.OpFAdd, gpr(1), gpr(0), gpr(0)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX9
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	// The flag read hazard pads inside the first block.
	assert.Equal(t,
		[]ir.Opcode{ir.OpMov, ir.OpSNop, ir.OpSNop, ir.OpSNop, ir.OpSNop, ir.OpMov},
		collectOps(b0))
	// The consumer is one slot behind the second mov, padding included.
	add := p.Instr(b1.Tail())
	assert.Equal(t, uint8(1), add.Sched.RegDist)
}

func Test_Hazard_01(t *testing.T) {
	// Reading the flag file too soon after a vector write pads with s_nops.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpMov, ir.Phys(ir.FileFlag, 0, 0), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpMov, gpr(0), ir.Phys(ir.FileFlag, 0, 0)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX9
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	assert.Equal(t,
		[]ir.Opcode{ir.OpMov, ir.OpSNop, ir.OpSNop, ir.OpSNop, ir.OpSNop, ir.OpMov},
		collectOps(b))
	// The padding counts towards the ordered distance.
	reader := p.Instr(b.Tail())
	assert.Equal(t, uint8(5), reader.Sched.RegDist)
}

func Test_Hazard_02(t *testing.T) {
	// A DPP crossing mov needs two slots since the last vector write.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpMov, gpr(0), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpDppMov, gpr(1), gpr(0)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX9
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	assert.Equal(t, []ir.Opcode{ir.OpMov, ir.OpSNop, ir.OpDppMov}, collectOps(b))
}

func Test_Hazard_03(t *testing.T) {
	// A scalar write with a vector memory access in flight flushes the queue
	// with a v_nop.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpLoad, gpr(0), gpr(1), gpr(1), ir.Uniform(0, 0)))
	b.Append(ir.NewInstr(ir.OpSMov, ir.Phys(ir.FileAddr, 3, 0), ir.Imm(0)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX10
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	assert.Equal(t, []ir.Opcode{ir.OpLoad, ir.OpNop, ir.OpSMov}, collectOps(b))
}

func Test_Hazard_04(t *testing.T) {
	// permlane straight after a comparison copies its operand onto itself.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpFCmp, ir.Phys(ir.FileFlag, 0, 0), gpr(0), gpr(1)))
	b.Append(ir.NewInstr(ir.OpPermLane, gpr(2), gpr(0), gpr(1)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX10
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	require.Equal(t, []ir.Opcode{ir.OpFCmp, ir.OpMov, ir.OpPermLane}, collectOps(b))
	//
	var fill *ir.Instruction
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		if insn.Op == ir.OpMov {
			fill = insn
		}
		//
		return fill == nil
	})
	//
	assert.Equal(t, fill.Dst.Phys, fill.Srcs[0].Phys)
}

func Test_Hazard_05(t *testing.T) {
	// A vector ALU scalar write with a scalar load in flight flushes through
	// the scalar bit bucket.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpSLoad, ir.Phys(ir.FileAddr, 2, 0), ir.Phys(ir.FileAddr, 0, 0), ir.Imm(16)))
	b.Append(ir.NewInstr(ir.OpMov, ir.Phys(ir.FileAddr, 4, 0), ir.Imm(1)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX10
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	require.Equal(t, []ir.Opcode{ir.OpSLoad, ir.OpSMov, ir.OpMov}, collectOps(b))
	//
	var flush *ir.Instruction
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		if insn.Op == ir.OpSMov {
			flush = insn
		}
		//
		return flush == nil
	})
	//
	assert.Equal(t, sgprNull, flush.Dst.Phys)
}

func Test_Hazard_06(t *testing.T) {
	// Writing architectural state from the vector ALU after another unit has
	// issued needs the dependency counter drain.
	p, b := physProgram()
	b.Append(ir.NewInstr(ir.OpSLoad, ir.Phys(ir.FileAddr, 2, 0), ir.Phys(ir.FileAddr, 0, 0), ir.Imm(16)))
	b.Append(ir.NewInstr(ir.OpMov, ir.Phys(ir.FileState, 126, 0), ir.Imm(0)))
	//
	tgt := target.Default()
	tgt.ChipClass = target.GFX10
	require.NoError(t, Schedule(p, &tgt, nil))
	//
	require.Equal(t, []ir.Opcode{ir.OpSLoad, ir.OpWaitDepCtr, ir.OpMov}, collectOps(b))
	//
	var drain *ir.Instruction
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		if insn.Op == ir.OpWaitDepCtr {
			drain = insn
		}
		//
		return drain == nil
	})
	//
	assert.Equal(t, uint64(0xfffe), drain.Imm)
}

// ============================================================================
// Test Helpers
// ============================================================================

// physProgram builds an empty single block program in post-allocation form.
func physProgram() (*ir.Program, *ir.Block) {
	p := ir.NewProgram(ir.StageCompute)
	//
	return p, p.NewBlock(ir.BlockTopLevel)
}

func gpr(n uint16) ir.Operand {
	return ir.Phys(ir.FileGeneral, n, 0)
}

func collectOps(b *ir.Block) []ir.Opcode {
	var ops []ir.Opcode
	//
	b.Each(func(_ ir.InstrID, insn *ir.Instruction) bool {
		ops = append(ops, insn.Op)
		//
		return true
	})
	//
	return ops
}
