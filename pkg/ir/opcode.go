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

// Opcode identifies a machine-level operation.  Opcodes are shared between
// all pipeline stages; whether a given opcode is legal for a given target is
// decided by the lowering passes, not here.
type Opcode uint16

// Class partitions instructions by payload shape.  Shared fields (destination,
// sources, scheduling annotation) live on the Instruction itself; class
// specific fields live in the matching payload struct.
type Class uint8

// Unit identifies the execution unit an opcode issues on.  The hazard rules
// are expressed in terms of units rather than individual opcodes.
type Unit uint8

// Type describes the value category an operation computes over.
type Type uint8

const (
	// ClassAlu covers arithmetic, logic and conversion operations.
	ClassAlu Class = iota
	// ClassLoad covers memory and tile reads.
	ClassLoad
	// ClassStore covers memory and tile writes.
	ClassStore
	// ClassTex covers texture sampling and fetching.
	ClassTex
	// ClassCtrl covers branches and program termination.
	ClassCtrl
	// ClassSync covers synchronisation and wait instructions.
	ClassSync
)

const (
	// UnitVALU is the vector arithmetic unit.
	UnitVALU Unit = iota
	// UnitSALU is the scalar arithmetic unit.
	UnitSALU
	// UnitVMEM is the vector memory unit.
	UnitVMEM
	// UnitSMEM is the scalar memory unit.
	UnitSMEM
	// UnitLDS is the local data share unit.
	UnitLDS
	// UnitDPP marks cross-lane permutation issues.
	UnitDPP
	// UnitBranch is the control-flow unit.
	UnitBranch
)

const (
	// TypeVoid marks operations without a value result.
	TypeVoid Type = iota
	// TypeF32 is a 32-bit float.
	TypeF32
	// TypeF16 is a 16-bit float.
	TypeF16
	// TypeI32 is a signed 32-bit integer.
	TypeI32
	// TypeU32 is an unsigned 32-bit integer.
	TypeU32
	// TypeI16 is a signed 16-bit integer.
	TypeI16
	// TypeU16 is an unsigned 16-bit integer.
	TypeU16
	// TypeI8 is a signed 8-bit integer.
	TypeI8
	// TypeU8 is an unsigned 8-bit integer.
	TypeU8
	// TypeB32 is an untyped 32-bit bit pattern.
	TypeB32
)

// Enumeration of all opcodes understood by the back end.
const (
	OpNop Opcode = iota
	OpSNop
	OpUndef
	OpHalt
	OpSync
	OpWaitDepCtr
	OpWaitVscnt
	//
	OpMov
	OpSMov
	OpFAdd
	OpFMul
	OpFma
	OpFFract
	OpFRsqrt
	OpFSqrt
	OpFSin
	OpFCos
	OpSinPt1
	OpSinPt2
	OpFTrunc
	OpF2I32
	OpI2F32
	OpFDot2
	OpFDot3
	OpFDot4
	OpFSum3
	OpFSum4
	OpFCmp
	//
	OpIAdd
	OpISub
	OpIMul
	OpIShl
	OpIShr
	OpIAshr
	OpIAnd
	OpIOr
	OpIXor
	OpINot
	OpShlAdd
	OpSwap
	//
	OpReadLane
	OpWriteLane
	OpPermLane
	OpDppMov
	//
	OpLoad
	OpStore
	OpSLoad
	OpLdsLoad
	OpLdsStore
	OpLoadTile
	OpStoreTile
	OpPack
	OpUnpack
	OpTexSample
	OpTexFetch
	//
	OpBranch
	OpJump
	OpEnd
	OpDiscard
	//
	numOpcodes
)

// OpInfo captures the static properties of an opcode consulted by the
// lowering passes, the scheduler and the encoder.
type OpInfo struct {
	// Mnemonic used by the disassembler.
	Name string
	// Payload class.
	Class Class
	// Issuing unit.
	Unit Unit
	// Number of source operands.
	NumSrcs uint8
	// Bitmask of source slots which accept an immediate operand directly.
	ConstSrcs uint8
	// Whether the target may issue this opcode with a multi-lane write mask.
	Vectorisable bool
	// Whether results arrive out of order (tracked via SBID rather than an
	// ordered distance).
	OutOfOrder bool
	// Whether the instruction advances the ordered address counter.  Sync
	// and placeholder instructions do not.
	NonAdvancing bool
	// Result type, TypeVoid for stores and control flow.
	Dst Type
	// Common source type.
	Src Type
}

var opInfos = [numOpcodes]OpInfo{
	OpNop:        {Name: "nop", Class: ClassSync, Unit: UnitVALU, NumSrcs: 0, NonAdvancing: false},
	OpSNop:       {Name: "s_nop", Class: ClassSync, Unit: UnitSALU, NumSrcs: 0},
	OpUndef:      {Name: "undef", Class: ClassSync, Unit: UnitVALU, NonAdvancing: true},
	OpHalt:       {Name: "halt", Class: ClassSync, Unit: UnitBranch, NonAdvancing: true},
	OpSync:       {Name: "sync", Class: ClassSync, Unit: UnitVALU, NonAdvancing: true},
	OpWaitDepCtr: {Name: "s_waitcnt_depctr", Class: ClassSync, Unit: UnitSALU, NonAdvancing: true},
	OpWaitVscnt:  {Name: "s_waitcnt_vscnt", Class: ClassSync, Unit: UnitSALU, NonAdvancing: true},
	//
	OpMov:    {Name: "mov", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, ConstSrcs: 0b1, Vectorisable: true, Dst: TypeB32, Src: TypeB32},
	OpSMov:   {Name: "s_mov", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 1, ConstSrcs: 0b1, Dst: TypeB32, Src: TypeB32},
	OpFAdd:   {Name: "add.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeF32, Src: TypeF32},
	OpFMul:   {Name: "mul.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeF32, Src: TypeF32},
	OpFma:    {Name: "fma.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 3, ConstSrcs: 0b100, Vectorisable: true, Dst: TypeF32, Src: TypeF32},
	OpFFract: {Name: "fract.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpFRsqrt: {Name: "rsqrt.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, OutOfOrder: true, Dst: TypeF32, Src: TypeF32},
	OpFSqrt:  {Name: "sqrt.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpFSin:   {Name: "sin.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpFCos:   {Name: "cos.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpSinPt1: {Name: "sin_pt_1.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, OutOfOrder: true, Dst: TypeF32, Src: TypeF32},
	OpSinPt2: {Name: "sin_pt_2.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, OutOfOrder: true, Dst: TypeF32, Src: TypeF32},
	OpFTrunc: {Name: "trunc.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpF2I32:  {Name: "f2i32", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeI32, Src: TypeF32},
	OpI2F32:  {Name: "i2f32", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeI32},
	OpFDot2:  {Name: "dot2.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, Dst: TypeF32, Src: TypeF32},
	OpFDot3:  {Name: "dot3.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, Dst: TypeF32, Src: TypeF32},
	OpFDot4:  {Name: "dot4.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, Dst: TypeF32, Src: TypeF32},
	OpFSum3:  {Name: "sum3.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpFSum4:  {Name: "sum4.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeF32, Src: TypeF32},
	OpFCmp:   {Name: "cmp.f", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeF32},
	//
	OpIAdd:   {Name: "add.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeU32, Src: TypeU32},
	OpISub:   {Name: "sub.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeU32},
	OpIMul:   {Name: "mul.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeU32},
	OpIShl:   {Name: "lshl.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeU32},
	OpIShr:   {Name: "lshr.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeU32},
	OpIAshr:  {Name: "ashr.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeI32, Src: TypeI32},
	OpIAnd:   {Name: "and.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeU32, Src: TypeU32},
	OpIOr:    {Name: "or.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeU32, Src: TypeU32},
	OpIXor:   {Name: "xor.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Vectorisable: true, Dst: TypeU32, Src: TypeU32},
	OpINot:   {Name: "not.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 1, Dst: TypeU32, Src: TypeU32},
	OpShlAdd: {Name: "lshl_add.i", Class: ClassAlu, Unit: UnitSALU, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeU32, Src: TypeU32},
	OpSwap:   {Name: "xchg", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 2, Dst: TypeB32, Src: TypeB32},
	//
	OpReadLane:  {Name: "readlane", Class: ClassAlu, Unit: UnitDPP, NumSrcs: 2, ConstSrcs: 0b10, Dst: TypeB32, Src: TypeB32},
	OpWriteLane: {Name: "writelane", Class: ClassAlu, Unit: UnitDPP, NumSrcs: 3, ConstSrcs: 0b110, Dst: TypeB32, Src: TypeB32},
	OpPermLane:  {Name: "permlane", Class: ClassAlu, Unit: UnitDPP, NumSrcs: 2, Dst: TypeB32, Src: TypeB32},
	OpDppMov:    {Name: "dpp_mov", Class: ClassAlu, Unit: UnitDPP, NumSrcs: 1, Dst: TypeB32, Src: TypeB32},
	//
	OpLoad:      {Name: "ldgb.untyped", Class: ClassLoad, Unit: UnitVMEM, NumSrcs: 3, OutOfOrder: true, Dst: TypeB32, Src: TypeU32},
	OpStore:     {Name: "stgb.untyped", Class: ClassStore, Unit: UnitVMEM, NumSrcs: 4, OutOfOrder: true, Src: TypeB32},
	OpSLoad:     {Name: "s_load", Class: ClassLoad, Unit: UnitSMEM, NumSrcs: 2, ConstSrcs: 0b10, OutOfOrder: true, Dst: TypeB32, Src: TypeU32},
	OpLdsLoad:   {Name: "ds_load", Class: ClassLoad, Unit: UnitLDS, NumSrcs: 1, OutOfOrder: true, Dst: TypeB32, Src: TypeU32},
	OpLdsStore:  {Name: "ds_store", Class: ClassStore, Unit: UnitLDS, NumSrcs: 2, OutOfOrder: true, Src: TypeB32},
	OpLoadTile:  {Name: "ld_tile", Class: ClassLoad, Unit: UnitVMEM, NumSrcs: 1, OutOfOrder: true, Dst: TypeB32, Src: TypeU32},
	OpStoreTile: {Name: "st_tile", Class: ClassStore, Unit: UnitVMEM, NumSrcs: 2, OutOfOrder: true, Src: TypeB32},
	OpPack:      {Name: "pack", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Dst: TypeB32, Src: TypeB32},
	OpUnpack:    {Name: "unpack", Class: ClassAlu, Unit: UnitVALU, NumSrcs: 1, Vectorisable: true, Dst: TypeB32, Src: TypeB32},
	OpTexSample: {Name: "tex", Class: ClassTex, Unit: UnitVMEM, NumSrcs: 3, OutOfOrder: true, Dst: TypeF32, Src: TypeF32},
	OpTexFetch:  {Name: "txf", Class: ClassTex, Unit: UnitVMEM, NumSrcs: 3, OutOfOrder: true, Dst: TypeF32, Src: TypeI32},
	//
	OpBranch:  {Name: "br", Class: ClassCtrl, Unit: UnitBranch, NumSrcs: 1},
	OpJump:    {Name: "jmp", Class: ClassCtrl, Unit: UnitBranch},
	OpEnd:     {Name: "end", Class: ClassCtrl, Unit: UnitBranch},
	OpDiscard: {Name: "discard", Class: ClassCtrl, Unit: UnitBranch, NumSrcs: 1},
}

// Info returns the static descriptor for this opcode.
func (op Opcode) Info() *OpInfo {
	return &opInfos[op]
}

// Valid checks whether this opcode is within the known range.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

func (op Opcode) String() string {
	if !op.Valid() {
		return "??"
	}
	//
	return opInfos[op].Name
}

// Ord returns 1 when this opcode advances the ordered address counter, and 0
// for synchronisation, undef and placeholder instructions.
func (op Opcode) Ord() uint {
	if opInfos[op].NonAdvancing {
		return 0
	}
	//
	return 1
}
