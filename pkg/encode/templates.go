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

// Package encode packs scheduled instructions into the native word stream.
//
// Every instruction opens with a template byte [id:5|mode:2|ext:1] followed
// by a destination byte [reg:6|size:1|lit:1].  Sources follow one byte each
// as [payload:6|kind:2]; kind selects a vector register, a scalar register,
// an inline constant, or a trailing 32-bit literal.  When the extension bit
// is set, two extension bytes carry the upper register bits (reassembled in
// reverse source order) and the modifier bits.  The scheduling annotation
// byte closes the word, and the whole is padded to 4, 6 or 8 bytes.  Words
// which cannot fit the 8-byte form are an upstream lowering bug and fail
// with an EncodeError.
package encode

import (
	"math"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// form selects the base word shape for an opcode.
type form uint8

const (
	// formAlu is the promotable 4/6/8-byte arithmetic shape.
	formAlu form = iota
	// formXfer packs like formAlu but ids the exchange / cross-lane /
	// conversion group, which overflows the arithmetic id space.
	formXfer
	// formMem is the fixed 8-byte memory shape.
	formMem
	// formCtrl is the fixed 4-byte control shape.
	formCtrl
	// formSync is the fixed 4-byte synchronisation shape.
	formSync
)

// Source kind field values.
const (
	kindVector  = 0
	kindScalar  = 1
	kindInline  = 2
	kindLiteral = 3
)

// template is the per-opcode encoding selector.  Template ids are dense per
// form, so each stays within the 5-bit field.
type template struct {
	id   uint8
	form form
}

var templates = [...]template{
	ir.OpNop:        {id: 0, form: formSync},
	ir.OpSNop:       {id: 1, form: formSync},
	ir.OpUndef:      {id: 2, form: formSync},
	ir.OpHalt:       {id: 3, form: formSync},
	ir.OpSync:       {id: 4, form: formSync},
	ir.OpWaitDepCtr: {id: 5, form: formSync},
	ir.OpWaitVscnt:  {id: 6, form: formSync},
	//
	ir.OpMov:    {id: 0, form: formAlu},
	ir.OpSMov:   {id: 1, form: formAlu},
	ir.OpFAdd:   {id: 2, form: formAlu},
	ir.OpFMul:   {id: 3, form: formAlu},
	ir.OpFma:    {id: 4, form: formAlu},
	ir.OpFFract: {id: 5, form: formAlu},
	ir.OpFRsqrt: {id: 6, form: formAlu},
	ir.OpFSqrt:  {id: 7, form: formAlu},
	ir.OpFSin:   {id: 8, form: formAlu},
	ir.OpFCos:   {id: 9, form: formAlu},
	ir.OpSinPt1: {id: 10, form: formAlu},
	ir.OpSinPt2: {id: 11, form: formAlu},
	ir.OpFTrunc: {id: 12, form: formAlu},
	ir.OpF2I32:  {id: 13, form: formAlu},
	ir.OpI2F32:  {id: 14, form: formAlu},
	ir.OpFDot2:  {id: 15, form: formAlu},
	ir.OpFDot3:  {id: 16, form: formAlu},
	ir.OpFDot4:  {id: 17, form: formAlu},
	ir.OpFSum3:  {id: 18, form: formAlu},
	ir.OpFSum4:  {id: 19, form: formAlu},
	ir.OpFCmp:   {id: 20, form: formAlu},
	ir.OpIAdd:   {id: 21, form: formAlu},
	ir.OpISub:   {id: 22, form: formAlu},
	ir.OpIMul:   {id: 23, form: formAlu},
	ir.OpIShl:   {id: 24, form: formAlu},
	ir.OpIShr:   {id: 25, form: formAlu},
	ir.OpIAshr:  {id: 26, form: formAlu},
	ir.OpIAnd:   {id: 27, form: formAlu},
	ir.OpIOr:    {id: 28, form: formAlu},
	ir.OpIXor:   {id: 29, form: formAlu},
	ir.OpINot:   {id: 30, form: formAlu},
	ir.OpShlAdd: {id: 31, form: formAlu},
	ir.OpSwap:      {id: 0, form: formXfer},
	ir.OpReadLane:  {id: 1, form: formXfer},
	ir.OpWriteLane: {id: 2, form: formXfer},
	ir.OpPermLane:  {id: 3, form: formXfer},
	ir.OpDppMov:    {id: 4, form: formXfer},
	ir.OpPack:      {id: 5, form: formXfer},
	ir.OpUnpack:    {id: 6, form: formXfer},
	//
	ir.OpLoad:      {id: 0, form: formMem},
	ir.OpStore:     {id: 1, form: formMem},
	ir.OpSLoad:     {id: 2, form: formMem},
	ir.OpLdsLoad:   {id: 3, form: formMem},
	ir.OpLdsStore:  {id: 4, form: formMem},
	ir.OpLoadTile:  {id: 5, form: formMem},
	ir.OpStoreTile: {id: 6, form: formMem},
	ir.OpTexSample: {id: 7, form: formMem},
	ir.OpTexFetch:  {id: 8, form: formMem},
	//
	ir.OpBranch:  {id: 0, form: formCtrl},
	ir.OpJump:    {id: 1, form: formCtrl},
	ir.OpEnd:     {id: 2, form: formCtrl},
	ir.OpDiscard: {id: 3, form: formCtrl},
}

// inlineFloats is the constant ROM reachable through the inline source
// kind at ids 32 and up; ids below 32 encode the integers 0..31 directly.
var inlineFloats = []float32{
	0.0, 0.5, 1.0, 2.0, 4.0,
	-0.5, -1.0, -2.0, -4.0,
	0.25, 0.15915494, // 1/2pi
	3.1415927,
}

// inlineID maps an immediate to its inline constant id, when one exists.
func inlineID(imm uint64) (uint8, bool) {
	if imm < 32 {
		return uint8(imm), true
	}
	//
	if imm <= math.MaxUint32 {
		for i, f := range inlineFloats {
			if math.Float32bits(f) == uint32(imm) {
				return uint8(32 + i), true
			}
		}
	}
	//
	return 0, false
}

// elemClass compresses a lane type into the 3-bit memory element field.
func elemClass(t ir.Type) uint8 {
	switch t {
	case ir.TypeF32:
		return 0
	case ir.TypeF16:
		return 1
	case ir.TypeI32:
		return 2
	case ir.TypeU32, ir.TypeB32, ir.TypeVoid:
		return 3
	case ir.TypeI16:
		return 4
	case ir.TypeU16:
		return 5
	case ir.TypeI8:
		return 6
	default:
		return 7
	}
}
