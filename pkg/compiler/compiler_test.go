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
package compiler

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

func Test_Compile_01(t *testing.T) {
	// The full pipeline takes a virtual-register program to bytes.
	p := simpleProgram()
	//
	tgt := target.Default()
	require.NoError(t, Compile(p, &tgt, nil))
	//
	assert.NotEmpty(t, p.Binary)
	assert.NotZero(t, p.Meta.WorkRegisterCount)
	// Allocation left no virtual operands behind.
	p.EachInstr(func(_ *ir.Block, _ ir.InstrID, insn *ir.Instruction) bool {
		assert.NotEqual(t, ir.OperandVirtual, insn.Dst.Kind)
		//
		return true
	})
}

func Test_Compile_02(t *testing.T) {
	// The cooperative stop flag cancels between passes.
	p := simpleProgram()
	//
	var stop atomic.Bool
	stop.Store(true)
	//
	tgt := target.Default()
	err := Compile(p, &tgt, &stop)
	//
	assert.ErrorIs(t, err, ir.ErrCancelled)
}

func Test_Result_01(t *testing.T) {
	// Metadata and binary round trip through the cache blob.
	p := ir.NewProgram(ir.StageFragment)
	p.Meta = ir.Metadata{
		FirstTag:          0x22,
		WorkRegisterCount: 12,
		UniformCutoff:     3,
		BlendPatchOffset:  -1,
		WritesPointSize:   false,
		CanDiscard:        true,
		StreamBufferMask:  0x5,
	}
	p.Binary = []byte{0xde, 0xad, 0xbe, 0xef}
	//
	meta, bin, err := UnmarshalResult(MarshalResult(p))
	require.NoError(t, err)
	//
	assert.Equal(t, p.Meta, meta)
	assert.Equal(t, p.Binary, bin)
}

func Test_Result_02(t *testing.T) {
	// Empty binaries are legal.
	p := ir.NewProgram(ir.StageVertex)
	p.Meta.BlendPatchOffset = -1
	//
	meta, bin, err := UnmarshalResult(MarshalResult(p))
	require.NoError(t, err)
	//
	assert.Equal(t, int64(-1), meta.BlendPatchOffset)
	assert.Empty(t, bin)
}

func Test_Result_03(t *testing.T) {
	// Version skew is detected, not misparsed.
	p := ir.NewProgram(ir.StageVertex)
	data := MarshalResult(p)
	data[0] = 0x7f
	//
	_, _, err := UnmarshalResult(data)
	//
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func Test_Result_04(t *testing.T) {
	// Truncation anywhere is an error.
	p := ir.NewProgram(ir.StageVertex)
	p.Binary = []byte{1, 2, 3, 4, 5}
	data := MarshalResult(p)
	//
	for _, cut := range []int{2, 10, len(data) - 2} {
		_, _, err := UnmarshalResult(data[:cut])
		assert.Error(t, err, "cut at %d", cut)
	}
}

// ============================================================================
// Test Helpers
// ============================================================================

// simpleProgram is a tiny compute shader over virtual registers.
func simpleProgram() *ir.Program {
	p := ir.NewProgram(ir.StageCompute)
	b := p.NewBlock(ir.BlockTopLevel)
	//
	v0 := p.NewVirtual(1, ir.PrecFull)
	v1 := p.NewVirtual(1, ir.PrecFull)
	//
	b.Append(ir.NewInstr(ir.OpMov, ir.Virt(v0), ir.Imm(1)))
	b.Append(ir.NewInstr(ir.OpIAdd, ir.Virt(v1), ir.Virt(v0), ir.Virt(v0)))
	b.Append(ir.NewInstr(ir.OpEnd, ir.NullOperand()))
	//
	return p
}
