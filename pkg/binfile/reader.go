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

// Package binfile reads and writes the structured IR binary exchanged with
// the front end.  The container is length-prefixed little-endian: a version
// tag, a header (stage, entry symbol, variable counts), the variable table,
// the register table, and the blocks with their instructions in pre-order
// CFG layout.  Serialise then deserialise is the identity on well-formed
// programs.
package binfile

import (
	"encoding/binary"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// Magic identifies an IR container ("FJRD", little endian).
const Magic uint32 = 0x44524a46

// Version is the container version this package reads and writes.
const Version uint16 = 1

// Operand kind tags on the wire.
const (
	tagNull uint8 = iota
	tagVirtual
	tagPhys
	tagImm
	tagUniform
	numOperandTags
)

type reader struct {
	data   []byte
	offset uint64
	err    error
}

// Read deserialises a program from its binary container.  All failures are
// ir.InputError values.
func Read(data []byte) (*ir.Program, error) {
	r := &reader{data: data}
	//
	if magic := r.u32(); magic != Magic {
		return nil, r.fail(ir.BadVersion, "bad magic")
	}
	//
	if version := r.u16(); version != Version {
		return nil, r.fail(ir.BadVersion, "unsupported version")
	}
	//
	r.reserved16()
	// Header.
	stage := ir.Stage(r.u8())
	r.reserved8()
	//
	if stage > ir.StageGeometry {
		return nil, r.fail(ir.UnsupportedStage, "stage out of range")
	}
	//
	program := ir.NewProgram(stage)
	r.str() // entry symbol, informational
	//
	var (
		numUniforms = r.u16()
		numAttribs  = r.u16()
		numOutputs  = r.u16()
		numRegs     = r.u32()
		numBlocks   = r.u32()
	)
	//
	program.NumOutputs = uint32(numOutputs)
	r.key(&program.Key)
	// Variable tables.
	program.Symbols.Uniforms = r.variables(uint(numUniforms))
	program.Symbols.Attributes = r.variables(uint(numAttribs))
	program.Symbols.Outputs = r.variables(uint(numOutputs))
	// Register table.
	for i := uint32(0); i < numRegs && r.err == nil; i++ {
		r.register(program)
	}
	// Blocks.  All are created up front so branch targets resolve.
	kinds := make([]ir.BlockKind, numBlocks)
	succs := make([][]uint32, numBlocks)
	counts := make([]uint32, numBlocks)
	starts := make([]uint64, numBlocks)
	//
	for b := uint32(0); b < numBlocks && r.err == nil; b++ {
		kinds[b] = ir.BlockKind(r.u8())
		nsuccs := r.u8()
		//
		if nsuccs > 2 {
			return nil, r.fail(ir.ReservedBits, "more than two successors")
		}
		//
		for s := uint8(0); s < nsuccs; s++ {
			target := r.u32()
			//
			if target >= numBlocks {
				return nil, r.fail(ir.UnknownLocation, "successor out of range")
			}
			//
			succs[b] = append(succs[b], target)
		}
		//
		counts[b] = r.u32()
		starts[b] = r.offset
		// Skip over instructions on this first pass.
		for i := uint32(0); i < counts[b] && r.err == nil; i++ {
			r.instruction(program)
		}
	}
	//
	if r.err != nil {
		return nil, r.err
	}
	// Second pass: rebuild blocks and decode for real.
	r2 := &reader{data: data}
	//
	for b := uint32(0); b < numBlocks; b++ {
		program.NewBlock(kinds[b])
	}
	//
	for b := uint32(0); b < numBlocks; b++ {
		block := program.Blocks[b]
		r2.offset = starts[b]
		//
		for i := uint32(0); i < counts[b]; i++ {
			block.Append(r2.instruction(program))
		}
		//
		block.SetSuccessors(succs[b]...)
	}
	//
	if r2.err != nil {
		return nil, r2.err
	}
	//
	return program, nil
}

func (r *reader) instruction(program *ir.Program) ir.Instruction {
	op := ir.Opcode(r.u16())
	//
	if !op.Valid() {
		r.fail(ir.UnknownOpcode, "opcode out of range")
		return ir.Instruction{}
	}
	//
	insn := ir.NewInstr(op, ir.NullOperand())
	insn.DstMod.WriteMask = r.u8()
	//
	satRound := r.u8()
	insn.DstMod.Saturate = satRound&0x80 != 0
	insn.DstMod.Round = ir.RoundMode(satRound & 0x7)
	//
	if satRound&0x78 != 0 {
		r.fail(ir.ReservedBits, "destination modifier")
	}
	//
	insn.ImmKind = ir.ImmKind(r.u8())
	r.reserved8()
	//
	insn.Dst = r.operand()
	//
	for i := 0; i < 4; i++ {
		insn.Srcs[i] = r.operand()
	}
	//
	if insn.ImmKind != ir.ImmNone {
		insn.Imm = r.u64()
	}
	//
	switch op.Info().Class {
	case ir.ClassLoad, ir.ClassStore:
		insn.Mem.Dims = r.u8()
		insn.Mem.Lanes = r.u8()
		insn.Mem.Target = r.u8()
		insn.Mem.Elem = ir.Type(r.u8())
		insn.Mem.Offset = int32(r.u32())
	case ir.ClassTex:
		insn.Tex.Texture = r.u8()
		insn.Tex.Sampler = r.u8()
		insn.Tex.Lod = r.u8() != 0
		r.reserved8()
	case ir.ClassCtrl:
		insn.Ctrl.Target = r.u32()
	case ir.ClassSync:
		insn.Sync.Token = r.u8()
		insn.Sync.Mode = ir.SyncMode(r.u8())
	}
	//
	return insn
}

func (r *reader) operand() ir.Operand {
	kind := r.u8()
	//
	if kind >= numOperandTags {
		r.fail(ir.ReservedBits, "operand kind")
		return ir.NullOperand()
	}
	//
	var op ir.Operand
	//
	switch kind {
	case tagNull:
		return ir.NullOperand()
	case tagVirtual:
		op = ir.Virt(r.u32())
	case tagPhys:
		file := ir.RegFile(r.u8())
		number := r.u16()
		offset := r.u8()
		op = ir.Phys(file, number, offset)
	case tagImm:
		op = ir.Imm(r.u64())
	case tagUniform:
		buffer := r.u16()
		offset := r.u16()
		op = ir.Uniform(buffer, offset)
	}
	// Modifiers.
	flags := r.u8()
	op.Mod.Abs = flags&1 != 0
	op.Mod.Neg = flags&2 != 0
	op.Mod.Extend = ir.ExtendMode((flags >> 2) & 3)
	//
	if flags&0xf0 != 0 {
		r.fail(ir.ReservedBits, "source modifier")
	}
	//
	swz := r.u16()
	for lane := 0; lane < 4; lane++ {
		op.Mod.Swizzle[lane] = uint8((swz >> (3 * lane)) & 7)
	}
	//
	op.Mod.Size = r.u8()
	//
	return op
}

func (r *reader) key(key *ir.ShaderKey) {
	key.DepthClip = r.u8() != 0
	key.BlendConstant = r.u8() != 0
	key.WaveSize = r.u8()
	r.reserved8()
	//
	for i := range key.TileFormats {
		key.TileFormats[i] = r.u16()
	}
}

func (r *reader) variables(n uint) []ir.Variable {
	vars := make([]ir.Variable, 0, n)
	//
	for i := uint(0); i < n && r.err == nil; i++ {
		v := ir.Variable{
			Name:     r.str(),
			Location: r.u32(),
			Interp:   ir.Interpolation(r.u8()),
			Type:     ir.Type(r.u8()),
			Lanes:    r.u8(),
		}
		//
		r.reserved8()
		vars = append(vars, v)
	}
	//
	return vars
}

func (r *reader) register(program *ir.Program) {
	var (
		lanes  = r.u8()
		prec   = ir.Precision(r.u8())
		pinned = r.u8()
	)
	//
	r.reserved8()
	//
	file := ir.RegFile(r.u8())
	number := r.u16()
	offset := r.u8()
	//
	if pinned != 0 {
		program.NewPinned(lanes, prec, ir.PhysReg{File: file, Number: number, Offset: offset})
	} else {
		program.NewVirtual(lanes, prec)
	}
}

// ----------------------------------------------------------------------------
// Primitive readers
// ----------------------------------------------------------------------------

func (r *reader) u8() uint8 {
	if r.err != nil || r.offset+1 > uint64(len(r.data)) {
		r.fail(ir.Truncated, "u8")
		return 0
	}
	//
	v := r.data[r.offset]
	r.offset++
	//
	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil || r.offset+2 > uint64(len(r.data)) {
		r.fail(ir.Truncated, "u16")
		return 0
	}
	//
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	//
	return v
}

func (r *reader) u32() uint32 {
	if r.err != nil || r.offset+4 > uint64(len(r.data)) {
		r.fail(ir.Truncated, "u32")
		return 0
	}
	//
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	//
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil || r.offset+8 > uint64(len(r.data)) {
		r.fail(ir.Truncated, "u64")
		return 0
	}
	//
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	//
	return v
}

func (r *reader) str() string {
	n := uint64(r.u16())
	//
	if r.err != nil || r.offset+n > uint64(len(r.data)) {
		r.fail(ir.Truncated, "string")
		return ""
	}
	//
	s := string(r.data[r.offset : r.offset+n])
	r.offset += n
	//
	return s
}

func (r *reader) reserved8() {
	if v := r.u8(); v != 0 {
		r.fail(ir.ReservedBits, "reserved byte")
	}
}

func (r *reader) reserved16() {
	if v := r.u16(); v != 0 {
		r.fail(ir.ReservedBits, "reserved half word")
	}
}

func (r *reader) fail(kind ir.InputErrorKind, detail string) error {
	if r.err == nil {
		r.err = &ir.InputError{Kind: kind, Offset: r.offset, Detail: detail}
	}
	//
	return r.err
}
