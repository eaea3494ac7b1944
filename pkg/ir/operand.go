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

import "fmt"

// OperandKind discriminates the payload of an Operand.
type OperandKind uint8

const (
	// OperandNull marks an undefined operand (e.g. an unused source slot).
	OperandNull OperandKind = iota
	// OperandVirtual references a virtual register (pre register allocation).
	OperandVirtual
	// OperandPhys references a physical register (post register allocation).
	OperandPhys
	// OperandImm holds a raw 64-bit constant.
	OperandImm
	// OperandUniform references a uniform slot (buffer, offset).
	OperandUniform
)

// RegFile identifies a physical register file.
type RegFile uint8

const (
	// FileGeneral is the general purpose vector register file.
	FileGeneral RegFile = iota
	// FileAccum is the accumulator file.
	FileAccum
	// FileAddr is the address register file.
	FileAddr
	// FileFlag holds comparison results.
	FileFlag
	// FileStack is the scratch (spill) file.
	FileStack
	// FilePayload is the message payload file.
	FilePayload
	// FileState holds architectural state registers, the exec mask included.
	FileState
	//
	numRegFiles
)

// ExtendMode describes how a narrow source is widened on read.
type ExtendMode uint8

const (
	// ExtendNone reads the source at its natural width.
	ExtendNone ExtendMode = iota
	// ExtendZero zero-extends the source.
	ExtendZero
	// ExtendSign sign-extends the source.
	ExtendSign
)

// RoundMode selects the output rounding applied by the destination.
type RoundMode uint8

const (
	// RoundRTE rounds to nearest even.
	RoundRTE RoundMode = iota
	// RoundRTZ rounds towards zero.
	RoundRTZ
	// RoundRTP rounds towards positive infinity.
	RoundRTP
	// RoundRTN rounds towards negative infinity.
	RoundRTN
	// RoundToInt rounds to the nearest even integer.
	RoundToInt
)

// SwizzleMasked is the lane index meaning "undefined / masked" within a
// source swizzle.
const SwizzleMasked uint8 = 7

// SwizzleIdentity is the identity lane selection.
var SwizzleIdentity = [4]uint8{0, 1, 2, 3}

// PhysReg is a fully resolved register reference: a file, a register number
// within that file, and a sub-component byte offset.
type PhysReg struct {
	File   RegFile
	Number uint16
	Offset uint8
}

// Slot flattens this reference into a dense index suitable for scoreboard
// storage.  Registers within a file are assumed to number below 1024.
func (p PhysReg) Slot() uint {
	return uint(p.File)*1024 + uint(p.Number)
}

func (p PhysReg) String() string {
	names := [numRegFiles]string{"r", "acc", "a", "f", "stk", "p", "s"}
	//
	return fmt.Sprintf("%s%d", names[p.File], p.Number)
}

// SrcMod carries the per-source modifiers.
type SrcMod struct {
	// Absolute value applied before use.
	Abs bool
	// Negation applied before use (after Abs).
	Neg bool
	// Lane selection, one entry per destination lane.  Lane index 7 means
	// the lane is masked.
	Swizzle [4]uint8
	// Source size in bits (8, 16, 32 or 64).
	Size uint8
	// Widening mode for narrow reads.
	Extend ExtendMode
}

// DstMod carries the per-destination modifiers.
type DstMod struct {
	// Lane write mask, bits 0-3.
	WriteMask uint8
	// Clamp the result to [0, 1].
	Saturate bool
	// Output rounding mode.
	Round RoundMode
}

// DefaultSrcMod is the modifier state of a plain full-width source.
func DefaultSrcMod() SrcMod {
	return SrcMod{Swizzle: SwizzleIdentity, Size: 32}
}

// Operand is a reference to a value: a virtual register, a physical register,
// an immediate, a uniform slot, or nothing at all.
type Operand struct {
	Kind OperandKind
	// Virtual register index, valid for OperandVirtual.
	Virtual uint32
	// Physical register, valid for OperandPhys.
	Phys PhysReg
	// Immediate payload, valid for OperandImm.
	Imm uint64
	// Uniform slot, valid for OperandUniform.
	Buffer uint16
	Offset uint16
	// Source modifiers (ignored for destinations).
	Mod SrcMod
}

// NullOperand constructs the undefined marker.
func NullOperand() Operand {
	return Operand{Kind: OperandNull}
}

// Virt constructs a reference to a virtual register.
func Virt(index uint32) Operand {
	return Operand{Kind: OperandVirtual, Virtual: index, Mod: DefaultSrcMod()}
}

// Phys constructs a reference to a physical register.
func Phys(file RegFile, number uint16, offset uint8) Operand {
	return Operand{Kind: OperandPhys, Phys: PhysReg{file, number, offset}, Mod: DefaultSrcMod()}
}

// Imm constructs an immediate operand.
func Imm(value uint64) Operand {
	return Operand{Kind: OperandImm, Imm: value, Mod: DefaultSrcMod()}
}

// ImmF32 constructs a float immediate operand.
func ImmF32(value float32) Operand {
	return Imm(uint64(f32bits(value)))
}

// Uniform constructs a reference to a uniform slot.
func Uniform(buffer, offset uint16) Operand {
	return Operand{Kind: OperandUniform, Buffer: buffer, Offset: offset, Mod: DefaultSrcMod()}
}

// IsNull checks for the undefined marker.
func (p *Operand) IsNull() bool {
	return p.Kind == OperandNull
}

// IsConst checks whether this operand is a materialised constant (immediate
// or uniform slot).
func (p *Operand) IsConst() bool {
	return p.Kind == OperandImm || p.Kind == OperandUniform
}

// SameReg checks whether two operands name the same register, ignoring
// modifiers.  Operands of different kinds never match.
func (p *Operand) SameReg(o *Operand) bool {
	switch {
	case p.Kind != o.Kind:
		return false
	case p.Kind == OperandVirtual:
		return p.Virtual == o.Virtual
	case p.Kind == OperandPhys:
		return p.Phys.File == o.Phys.File && p.Phys.Number == o.Phys.Number
	}
	//
	return false
}
