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
	"encoding/binary"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

type writer struct {
	data []byte
}

// Write serialises a program into its binary container.
func Write(program *ir.Program) []byte {
	w := &writer{data: make([]byte, 0, 1024)}
	//
	w.u32(Magic)
	w.u16(Version)
	w.u16(0)
	// Header.
	w.u8(uint8(program.Stage))
	w.u8(0)
	w.str("main")
	w.u16(uint16(len(program.Symbols.Uniforms)))
	w.u16(uint16(len(program.Symbols.Attributes)))
	w.u16(uint16(len(program.Symbols.Outputs)))
	w.u32(uint32(len(program.Registers)))
	w.u32(uint32(len(program.Blocks)))
	w.key(&program.Key)
	//
	w.variables(program.Symbols.Uniforms)
	w.variables(program.Symbols.Attributes)
	w.variables(program.Symbols.Outputs)
	//
	for i := range program.Registers {
		w.register(&program.Registers[i])
	}
	//
	for _, block := range program.Blocks {
		w.u8(uint8(block.Kind))
		w.u8(uint8(len(block.Succs)))
		//
		for _, s := range block.Succs {
			w.u32(s)
		}
		//
		w.u32(uint32(block.Len()))
		//
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			w.instruction(insn)
			return true
		})
	}
	//
	return w.data
}

func (w *writer) instruction(insn *ir.Instruction) {
	w.u16(uint16(insn.Op))
	w.u8(insn.DstMod.WriteMask)
	//
	satRound := uint8(insn.DstMod.Round) & 0x7
	if insn.DstMod.Saturate {
		satRound |= 0x80
	}
	//
	w.u8(satRound)
	w.u8(uint8(insn.ImmKind))
	w.u8(0)
	//
	w.operand(&insn.Dst)
	//
	for i := 0; i < 4; i++ {
		w.operand(&insn.Srcs[i])
	}
	//
	if insn.ImmKind != ir.ImmNone {
		w.u64(insn.Imm)
	}
	//
	switch insn.Op.Info().Class {
	case ir.ClassLoad, ir.ClassStore:
		w.u8(insn.Mem.Dims)
		w.u8(insn.Mem.Lanes)
		w.u8(insn.Mem.Target)
		w.u8(uint8(insn.Mem.Elem))
		w.u32(uint32(insn.Mem.Offset))
	case ir.ClassTex:
		w.u8(insn.Tex.Texture)
		w.u8(insn.Tex.Sampler)
		w.bool8(insn.Tex.Lod)
		w.u8(0)
	case ir.ClassCtrl:
		w.u32(insn.Ctrl.Target)
	case ir.ClassSync:
		w.u8(insn.Sync.Token)
		w.u8(uint8(insn.Sync.Mode))
	}
}

func (w *writer) operand(op *ir.Operand) {
	switch op.Kind {
	case ir.OperandNull:
		w.u8(tagNull)
		return
	case ir.OperandVirtual:
		w.u8(tagVirtual)
		w.u32(op.Virtual)
	case ir.OperandPhys:
		w.u8(tagPhys)
		w.u8(uint8(op.Phys.File))
		w.u16(op.Phys.Number)
		w.u8(op.Phys.Offset)
	case ir.OperandImm:
		w.u8(tagImm)
		w.u64(op.Imm)
	case ir.OperandUniform:
		w.u8(tagUniform)
		w.u16(op.Buffer)
		w.u16(op.Offset)
	}
	// Modifiers.
	flags := uint8(0)
	if op.Mod.Abs {
		flags |= 1
	}
	//
	if op.Mod.Neg {
		flags |= 2
	}
	//
	flags |= uint8(op.Mod.Extend) << 2
	w.u8(flags)
	//
	swz := uint16(0)
	for lane := 0; lane < 4; lane++ {
		swz |= uint16(op.Mod.Swizzle[lane]&7) << (3 * lane)
	}
	//
	w.u16(swz)
	w.u8(op.Mod.Size)
}

func (w *writer) key(key *ir.ShaderKey) {
	w.bool8(key.DepthClip)
	w.bool8(key.BlendConstant)
	w.u8(key.WaveSize)
	w.u8(0)
	//
	for _, f := range key.TileFormats {
		w.u16(f)
	}
}

func (w *writer) variables(vars []ir.Variable) {
	for i := range vars {
		w.str(vars[i].Name)
		w.u32(vars[i].Location)
		w.u8(uint8(vars[i].Interp))
		w.u8(uint8(vars[i].Type))
		w.u8(vars[i].Lanes)
		w.u8(0)
	}
}

func (w *writer) register(reg *ir.Register) {
	w.u8(reg.Lanes)
	w.u8(uint8(reg.Precision))
	w.bool8(reg.Pinned)
	w.u8(0)
	w.u8(uint8(reg.Pin.File))
	w.u16(reg.Pin.Number)
	w.u8(reg.Pin.Offset)
}

// ----------------------------------------------------------------------------
// Primitive writers
// ----------------------------------------------------------------------------

func (w *writer) u8(v uint8) {
	w.data = append(w.data, v)
}

func (w *writer) bool8(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) {
	w.data = binary.LittleEndian.AppendUint16(w.data, v)
}

func (w *writer) u32(v uint32) {
	w.data = binary.LittleEndian.AppendUint32(w.data, v)
}

func (w *writer) u64(v uint64) {
	w.data = binary.LittleEndian.AppendUint64(w.data, v)
}

func (w *writer) str(s string) {
	w.u16(uint16(len(s)))
	w.data = append(w.data, s...)
}
