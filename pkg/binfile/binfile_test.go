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
package binfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

func Test_Binfile_01(t *testing.T) {
	checkRoundTrip(t, fragmentProgram())
}

func Test_Binfile_02(t *testing.T) {
	// Branchy program keeps its CFG shape.
	p := ir.NewProgram(ir.StageCompute)
	b0 := p.NewBlock(ir.BlockTopLevel)
	b1 := p.NewBlock(ir.BlockUniform)
	b2 := p.NewBlock(ir.BlockTopLevel)
	b0.SetSuccessors(b1.Index, b2.Index)
	b1.SetSuccessors(b2.Index)
	//
	v := p.NewVirtual(1, ir.PrecFull)
	cond := ir.NewInstr(ir.OpFCmp, ir.Virt(v), ir.Virt(v), ir.ImmF32(0.5))
	b0.Append(ir.NewInstr(ir.OpMov, ir.Virt(v), ir.Imm(1)))
	b0.Append(cond)
	//
	br := ir.NewInstr(ir.OpBranch, ir.NullOperand(), ir.Virt(v))
	br.Ctrl.Target = 2
	b0.Append(br)
	b1.Append(ir.NewInstr(ir.OpIAdd, ir.Virt(v), ir.Virt(v), ir.Imm(1)))
	b2.Append(ir.NewInstr(ir.OpEnd, ir.NullOperand()))
	//
	back := checkRoundTrip(t, p)
	//
	assert.Equal(t, []uint32{1, 2}, back.Blocks[0].Succs)
	assert.Equal(t, []uint32{2}, back.Blocks[1].Succs)
	assert.Equal(t, ir.BlockUniform, back.Blocks[1].Kind)
}

func Test_Binfile_03(t *testing.T) {
	// Pinned registers and the shader key survive the trip.
	p := fragmentProgram()
	p.Key.DepthClip = true
	p.Key.TileFormats[0] = 0x1234
	p.Key.WaveSize = 32
	p.NewPinned(2, ir.PrecHalf, ir.PhysReg{File: ir.FileAddr, Number: 7})
	//
	back := checkRoundTrip(t, p)
	reg := back.Registers[len(back.Registers)-1]
	//
	assert.True(t, reg.Pinned)
	assert.Equal(t, ir.FileAddr, reg.Pin.File)
	assert.Equal(t, uint16(7), reg.Pin.Number)
	assert.Equal(t, uint8(2), reg.Lanes)
	assert.Equal(t, ir.PrecHalf, reg.Precision)
}

func Test_Binfile_04(t *testing.T) {
	// Truncated container.
	data := Write(fragmentProgram())
	//
	_, err := Read(data[:len(data)-3])
	//
	requireInputError(t, err, ir.Truncated)
}

func Test_Binfile_05(t *testing.T) {
	// Bad magic.
	data := Write(fragmentProgram())
	data[0] ^= 0xff
	//
	_, err := Read(data)
	//
	requireInputError(t, err, ir.BadVersion)
}

func Test_Binfile_06(t *testing.T) {
	// Unsupported container version.
	data := Write(fragmentProgram())
	data[4] = 0x7f
	//
	_, err := Read(data)
	//
	requireInputError(t, err, ir.BadVersion)
}

func Test_Binfile_07(t *testing.T) {
	// Reserved bytes must decode as zero.
	data := Write(fragmentProgram())
	data[6] = 1
	//
	_, err := Read(data)
	//
	requireInputError(t, err, ir.ReservedBits)
}

func Test_Binfile_08(t *testing.T) {
	// Out-of-range opcodes are rejected, not skipped.
	p := ir.NewProgram(ir.StageVertex)
	b := p.NewBlock(ir.BlockTopLevel)
	bad := ir.NewInstr(ir.OpMov, ir.Virt(0), ir.Imm(0))
	bad.Op = ir.Opcode(0x7fff)
	p.NewVirtual(1, ir.PrecFull)
	b.Append(bad)
	//
	_, err := Read(Write(p))
	//
	requireInputError(t, err, ir.UnknownOpcode)
}

// ============================================================================
// Test Helpers
// ============================================================================

func requireInputError(t *testing.T, err error, kind ir.InputErrorKind) {
	t.Helper()
	//
	require.Error(t, err)
	//
	input, ok := err.(*ir.InputError)
	require.True(t, ok, "expected input error, got %v", err)
	assert.Equal(t, kind, input.Kind)
}

func fragmentProgram() *ir.Program {
	p := ir.NewProgram(ir.StageFragment)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	p.Symbols.Uniforms = []ir.Variable{
		{Name: "u_colour", Location: 0, Type: ir.TypeF32, Lanes: 4},
	}
	p.Symbols.Outputs = []ir.Variable{
		{Name: "out_colour", Location: 0, Interp: ir.InterpSmooth, Type: ir.TypeF32, Lanes: 4},
	}
	//
	v0 := p.NewVirtual(4, ir.PrecFull)
	v1 := p.NewVirtual(4, ir.PrecFull)
	//
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(v0), ir.Uniform(0, 0)))
	//
	mul := ir.NewInstr(ir.OpFMul, ir.Virt(v1), ir.Virt(v0), ir.ImmF32(2.0))
	mul.DstMod.WriteMask = 0b1111
	b.Append(mul)
	//
	store := ir.NewInstr(ir.OpStoreTile, ir.NullOperand(), ir.Virt(v1))
	store.Mem = ir.MemInfo{Target: 0, Elem: ir.TypeF32, Lanes: 4}
	b.Append(store)
	b.Append(ir.NewInstr(ir.OpEnd, ir.NullOperand()))
	//
	return p
}

func checkRoundTrip(t *testing.T, p *ir.Program) *ir.Program {
	t.Helper()
	//
	back, err := Read(Write(p))
	require.NoError(t, err)
	// The trip preserves structure and content exactly.
	assert.Equal(t, p.Stage, back.Stage)
	assert.Equal(t, p.Key, back.Key)
	assert.Equal(t, p.Symbols, back.Symbols)
	assert.Equal(t, len(p.Registers), len(back.Registers))
	assert.Equal(t, ir.Disassemble(p), ir.Disassemble(back))
	// And is idempotent at the byte level.
	assert.Equal(t, Write(p), Write(back))
	//
	return back
}
