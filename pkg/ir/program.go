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

// Stage identifies the shader stage being compiled.
type Stage uint8

const (
	// StageVertex is a vertex shader.
	StageVertex Stage = iota
	// StageFragment is a fragment shader.
	StageFragment
	// StageCompute is a compute shader.
	StageCompute
	// StageTessellation is a tessellation shader.
	StageTessellation
	// StageGeometry is a geometry shader.
	StageGeometry
	//
	numStages
)

func (s Stage) String() string {
	names := [numStages]string{"vertex", "fragment", "compute", "tessellation", "geometry"}
	//
	if s >= numStages {
		return "??"
	}
	//
	return names[s]
}

// Precision is the storage precision of a register.
type Precision uint8

const (
	// PrecHalf is 16-bit storage.
	PrecHalf Precision = iota
	// PrecFull is 32-bit storage.
	PrecFull
	// PrecHigh is extended precision storage.
	PrecHigh
	//
	NumPrecisions
)

// Register describes a virtual register: its width in 32-bit lanes, its
// precision, and an optional pre-colouring constraint pinning it to a fixed
// physical register.
type Register struct {
	// Owning virtual index.
	Virtual uint32
	// Number of 32-bit lanes occupied.
	Lanes uint8
	// Storage precision.
	Precision Precision
	// Live extent within its defining block, filled by Liveness.
	LiveStart uint32
	LiveEnd   uint32
	// Pre-colouring constraint.
	Pinned bool
	Pin    PhysReg
}

// Interpolation is the varying interpolation mode of a shader variable.
type Interpolation uint8

const (
	// InterpNone applies to non-varying variables.
	InterpNone Interpolation = iota
	// InterpSmooth is perspective-correct interpolation.
	InterpSmooth
	// InterpFlat is provoking-vertex replication.
	InterpFlat
	// InterpNoPerspective is linear interpolation.
	InterpNoPerspective
)

// Variable is a symbol table entry for a uniform, attribute or output.
type Variable struct {
	Name     string
	Location uint32
	Interp   Interpolation
	Type     Type
	// Number of lanes (vec width).
	Lanes uint8
}

// SymbolTable holds the shader's external variables with their driver
// locations.
type SymbolTable struct {
	Uniforms   []Variable
	Attributes []Variable
	Outputs    []Variable
}

// ShaderKey captures the host-visible compile time switches which alter code
// generation and participate in the cache hash.
type ShaderKey struct {
	// Clamp fragment depth output to [0,1].
	DepthClip bool
	// Framebuffer formats per render target, indexed by target.
	TileFormats [8]uint16
	// Constant blend colour is patched at load time.
	BlendConstant bool
	// Wave size override, zero for the target default.
	WaveSize uint8
}

// Metadata is the record handed to the runtime alongside the encoded byte
// stream.
type Metadata struct {
	// Initial clause tag, ORed with the instruction buffer base at load.
	FirstTag uint32
	// Per-thread register budget.
	WorkRegisterCount uint32
	// Number of uniform slots pushed by the driver.
	UniformCutoff uint32
	// Byte offset of the blend constant patch point, or -1.
	BlendPatchOffset int64
	WritesPointSize  bool
	CanDiscard       bool
	// Enabled transform feedback buffers (geometry stage only).
	StreamBufferMask uint8
}

// SysValSubgroupID is the fixed uniform slot through which the runtime
// passes the compute subgroup id.  The runtime collaborator maps the same
// slot when building push constants.
var SysValSubgroupID = Operand{Kind: OperandUniform, Buffer: 0, Offset: 0xfffc, Mod: SrcMod{Swizzle: SwizzleIdentity, Size: 32}}

// Program is the top level compilation unit: a reducible CFG of basic
// blocks over one instruction arena, plus the shader's symbol table and
// compile-time key.  All storage lives in the program and is released as a
// unit when the program is dropped.
type Program struct {
	// Shader stage.
	Stage Stage
	// Blocks in layout order.  Block zero is the entry.
	Blocks []*Block
	// External symbols.
	Symbols SymbolTable
	// Output register count, consumed by the register class builder.
	NumOutputs uint32
	// Compile-time switches.
	Key ShaderKey
	// Registers, indexed by virtual register number.
	Registers []Register
	// Scratch bytes consumed by spill slots.
	ScratchSize int32
	// Encoded byte stream, filled by the encoder.
	Binary []byte
	// Runtime metadata, filled by the encoder.
	Meta Metadata
	// Instruction arena.
	instrs []Instruction
}

// NewProgram constructs an empty program for a given stage.
func NewProgram(stage Stage) *Program {
	return &Program{
		Stage:  stage,
		instrs: make([]Instruction, 0, 64),
	}
}

// NewBlock appends a fresh, empty block to the program.
func (p *Program) NewBlock(kind BlockKind) *Block {
	block := &Block{
		Index:   uint32(len(p.Blocks)),
		Kind:    kind,
		head:    NoInstr,
		tail:    NoInstr,
		program: p,
	}
	//
	p.Blocks = append(p.Blocks, block)
	//
	return block
}

// NewVirtual allocates a fresh virtual register of the given width and
// precision, returning its index.
func (p *Program) NewVirtual(lanes uint8, prec Precision) uint32 {
	index := uint32(len(p.Registers))
	//
	p.Registers = append(p.Registers, Register{
		Virtual:   index,
		Lanes:     lanes,
		Precision: prec,
	})
	//
	return index
}

// NewPinned allocates a fresh virtual register pre-coloured to a fixed
// physical register.
func (p *Program) NewPinned(lanes uint8, prec Precision, pin PhysReg) uint32 {
	index := p.NewVirtual(lanes, prec)
	p.Registers[index].Pinned = true
	p.Registers[index].Pin = pin
	//
	return index
}

// Instr returns the instruction stored at a given arena index.
func (p *Program) Instr(id InstrID) *Instruction {
	return &p.instrs[id]
}

// NumInstrs returns the arena size, including tombstones.
func (p *Program) NumInstrs() uint {
	return uint(len(p.instrs))
}

// ReplaceSrc rewrites every source of an instruction which names a given
// virtual register, preserving modifiers.
func (p *Program) ReplaceSrc(id InstrID, virtual uint32, with Operand) {
	insn := &p.instrs[id]
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].Kind == OperandVirtual && insn.Srcs[i].Virtual == virtual {
			mod := insn.Srcs[i].Mod
			insn.Srcs[i] = with
			insn.Srcs[i].Mod = mod
		}
	}
}

// ReplaceDst rewrites the destination of an instruction.
func (p *Program) ReplaceDst(id InstrID, with Operand) {
	p.instrs[id].Dst = with
}

// EachInstr calls fn for every live instruction of every block, in layout
// order.
func (p *Program) EachInstr(fn func(*Block, InstrID, *Instruction) bool) {
	for _, block := range p.Blocks {
		stop := false
		//
		block.Each(func(id InstrID, insn *Instruction) bool {
			if !fn(block, id, insn) {
				stop = true
				return false
			}
			//
			return true
		})
		//
		if stop {
			return
		}
	}
}

func (p *Program) alloc(insn Instruction) InstrID {
	id := InstrID(len(p.instrs))
	p.instrs = append(p.instrs, insn)
	//
	return id
}
