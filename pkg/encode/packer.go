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
package encode

import (
	"math"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// BlendBuffer is the uniform buffer through which the runtime patches the
// constant blend colour; the byte offset of its literal is reported in the
// metadata record.
const BlendBuffer uint16 = 15

// WordLen predicts the encoded length of an instruction from its template,
// before packing.  Packing emits exactly this many bytes or fails.
func WordLen(insn *ir.Instruction) (int, error) {
	t := templates[insn.Op]
	//
	switch t.form {
	case formMem:
		return 8, nil
	case formCtrl, formSync:
		return 4, nil
	}
	//
	ext, lit, srcBytes, err := aluShape(insn)
	if err != nil {
		return 0, err
	}
	//
	raw := 2 + srcBytes + 1
	//
	if ext {
		raw += 2
	}
	//
	if lit {
		raw += 4
	}
	//
	switch {
	case raw <= 4:
		return 4, nil
	case raw <= 6:
		return 6, nil
	case raw <= 8:
		return 8, nil
	default:
		return 0, &ir.EncodeError{Op: insn.Op, Field: "length", Value: uint64(raw)}
	}
}

// aluShape decides the promotion flags for the arithmetic shape: whether
// the extension bytes are needed, whether a literal trails the word, and
// how many source bytes are emitted.
func aluShape(insn *ir.Instruction) (ext, lit bool, srcBytes int, err error) {
	if insn.Dst.Kind == ir.OperandPhys && insn.Dst.Phys.Number > 63 {
		ext = true
	}
	//
	if insn.DstMod.Saturate {
		ext = true
	}
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		src := &insn.Srcs[i]
		//
		switch src.Kind {
		case ir.OperandPhys:
			srcBytes++
			//
			if src.Phys.Number > 63 {
				ext = true
			}
			//
			if src.Mod.Neg || src.Mod.Abs || src.Mod.Extend == ir.ExtendSign {
				ext = true
			}
		case ir.OperandImm:
			if _, ok := inlineID(src.Imm); ok {
				srcBytes++
			} else if lit {
				return false, false, 0, &ir.EncodeError{Op: insn.Op, Field: "literal", Value: src.Imm}
			} else {
				lit = true
			}
		case ir.OperandUniform:
			if lit {
				return false, false, 0, &ir.EncodeError{Op: insn.Op, Field: "literal", Value: uint64(src.Offset)}
			}
			//
			lit = true
		case ir.OperandNull:
			srcBytes++
		}
	}
	//
	return ext, lit, srcBytes, nil
}

// packInstr encodes one scheduled instruction.  Returns the word, and the
// byte offset of its trailing literal (or -1).
func packInstr(insn *ir.Instruction) ([]byte, int, error) {
	t := templates[insn.Op]
	//
	switch t.form {
	case formMem:
		w, err := packMem(insn, t)
		return w, -1, err
	case formCtrl:
		w, err := packCtrl(insn, t)
		return w, -1, err
	case formSync:
		return packSync(insn, t), -1, nil
	default:
		return packAlu(insn, t)
	}
}

// head assembles the template byte [id:5|mode:2|ext:1].
func head(t template, mode ir.SyncMode, ext bool) byte {
	b := t.id&0x1f | byte(mode)<<5
	//
	if ext {
		b |= 0x80
	}
	//
	return b
}

// dstByte assembles the destination byte [reg:6|size:1|lit:1].
func dstByte(insn *ir.Instruction, lit bool) byte {
	var b byte
	//
	if insn.Dst.Kind == ir.OperandPhys {
		b = byte(insn.Dst.Phys.Number & 0x3f)
	}
	//
	if halfType(insn.Op.Info().Dst) {
		b |= 0x40
	}
	//
	if lit {
		b |= 0x80
	}
	//
	return b
}

func halfType(t ir.Type) bool {
	switch t {
	case ir.TypeF16, ir.TypeI16, ir.TypeU16:
		return true
	default:
		return false
	}
}

// srcByte assembles one source byte [payload:6|kind:2].
func srcByte(src *ir.Operand) (byte, error) {
	switch src.Kind {
	case ir.OperandPhys:
		if src.Phys.Number > 255 {
			return 0, &ir.EncodeError{Field: "register", Value: uint64(src.Phys.Number)}
		}
		//
		kind := byte(kindVector)
		//
		if src.Phys.File != ir.FileGeneral && src.Phys.File != ir.FileAccum {
			kind = kindScalar
		}
		//
		return byte(src.Phys.Number&0x3f) | kind<<6, nil
	case ir.OperandImm:
		id, ok := inlineID(src.Imm)
		if !ok {
			return 0, &ir.EncodeError{Field: "immediate", Value: src.Imm}
		}
		//
		return id&0x3f | kindInline<<6, nil
	default:
		return 0, nil
	}
}

func packAlu(insn *ir.Instruction, t template) ([]byte, int, error) {
	length, err := WordLen(insn)
	if err != nil {
		return nil, -1, err
	}
	//
	ext, lit, _, err := aluShape(insn)
	if err != nil {
		return nil, -1, err
	}
	//
	var (
		word    = make([]byte, 0, 8)
		literal uint32
		litOff  = -1
	)
	//
	word = append(word, head(t, insn.Sched.Mode, ext))
	word = append(word, dstByte(insn, lit))
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		src := &insn.Srcs[i]
		//
		switch src.Kind {
		case ir.OperandImm:
			if _, ok := inlineID(src.Imm); !ok {
				if src.Imm > math.MaxUint32 {
					return nil, -1, &ir.EncodeError{Op: insn.Op, Field: "immediate", Value: src.Imm}
				}
				// The literal slot contributes no source byte.
				literal = uint32(src.Imm)
				continue
			}
		case ir.OperandUniform:
			literal = uint32(src.Buffer)<<16 | uint32(src.Offset)
			continue
		}
		//
		b, err := srcByte(src)
		if err != nil {
			return nil, -1, wrapOp(err, insn.Op)
		}
		//
		word = append(word, b)
	}
	//
	if ext {
		word = append(word, extBytes(insn)...)
	}
	//
	if lit {
		litOff = len(word)
		word = append(word,
			byte(literal), byte(literal>>8), byte(literal>>16), byte(literal>>24))
	}
	//
	note, _ := insn.Sched.Encode()
	word = append(word, note)
	//
	for len(word) < length {
		word = append(word, 0)
	}
	//
	return word, litOff, nil
}

// extBytes assembles the two extension bytes: the upper register bits in
// reverse source order, then the modifier bits.
func extBytes(insn *ir.Instruction) []byte {
	var hi, mods byte
	//
	for i := 0; i < 4; i++ {
		src := &insn.Srcs[i]
		//
		if src.Kind == ir.OperandPhys {
			hi |= byte(src.Phys.Number>>6&0x3) << (2 * (3 - i))
		}
	}
	//
	if insn.Dst.Kind == ir.OperandPhys {
		mods |= byte(insn.Dst.Phys.Number >> 6 & 0x3)
	}
	//
	if insn.Srcs[0].Mod.Neg {
		mods |= 1 << 2
	}
	//
	if insn.Srcs[1].Mod.Neg {
		mods |= 1 << 3
	}
	//
	if insn.Srcs[0].Mod.Abs {
		mods |= 1 << 4
	}
	//
	if insn.Srcs[1].Mod.Abs {
		mods |= 1 << 5
	}
	//
	if insn.DstMod.Saturate {
		mods |= 1 << 6
	}
	// Bit 7 is the integer sign-extend bit, shared with the accumulate
	// negation for three-source float ops.
	if insn.Srcs[0].Mod.Extend == ir.ExtendSign || insn.Srcs[2].Mod.Neg {
		mods |= 1 << 7
	}
	//
	return []byte{hi, mods}
}

func packMem(insn *ir.Instruction, t template) ([]byte, error) {
	var (
		word = make([]byte, 8)
		info = insn.Op.Info()
	)
	//
	word[0] = head(t, insn.Sched.Mode, false)
	word[1] = dstByte(insn, false)
	//
	if insn.Dst.Kind == ir.OperandPhys && insn.Dst.Phys.Number > 63 {
		return nil, &ir.EncodeError{Op: insn.Op, Field: "register", Value: uint64(insn.Dst.Phys.Number)}
	}
	//
	used := uint(0)
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		src := &insn.Srcs[i]
		//
		if src.Kind == ir.OperandPhys && src.Phys.Number > 63 {
			return nil, &ir.EncodeError{Op: insn.Op, Field: "register", Value: uint64(src.Phys.Number)}
		}
		//
		b, err := srcByte(src)
		if err != nil {
			return nil, wrapOp(err, insn.Op)
		}
		//
		word[2+i] = b
		//
		if src.Kind != ir.OperandNull {
			used = i + 1
		}
	}
	//
	switch info.Class {
	case ir.ClassTex:
		if insn.Tex.Texture > 15 {
			return nil, &ir.EncodeError{Op: insn.Op, Field: "texture", Value: uint64(insn.Tex.Texture)}
		}
		//
		if insn.Tex.Sampler > 7 {
			return nil, &ir.EncodeError{Op: insn.Op, Field: "sampler", Value: uint64(insn.Tex.Sampler)}
		}
		//
		word[6] = insn.Tex.Texture | insn.Tex.Sampler<<4
		//
		if insn.Tex.Lod {
			word[6] |= 0x80
		}
	default:
		if err := packMemInfo(insn, word, used); err != nil {
			return nil, err
		}
	}
	//
	note, _ := insn.Sched.Encode()
	word[7] = note
	//
	return word, nil
}

// packMemInfo fills the memory descriptor byte and the static offset.  The
// offset rides in the last source slot, which must be vacant.
func packMemInfo(insn *ir.Instruction, word []byte, used uint) error {
	mem := &insn.Mem
	//
	lanes := mem.Lanes
	if lanes == 0 {
		lanes = 1
	}
	//
	if mem.Dims > 7 || lanes > 4 {
		return &ir.EncodeError{Op: insn.Op, Field: "descriptor", Value: uint64(mem.Dims)}
	}
	//
	word[6] = mem.Dims&0x7 | (lanes-1)<<3 | elemClass(mem.Elem)<<5
	//
	switch {
	case mem.Target != 0:
		if used >= insn.NumSrcs() {
			return &ir.EncodeError{Op: insn.Op, Field: "target", Value: uint64(mem.Target)}
		}
		//
		word[2+insn.NumSrcs()-1] = mem.Target
	case mem.Offset != 0:
		if used >= insn.NumSrcs() {
			return &ir.EncodeError{Op: insn.Op, Field: "offset", Value: uint64(uint32(mem.Offset))}
		}
		//
		if mem.Offset < 0 || mem.Offset%4 != 0 || mem.Offset/4 > 255 {
			return &ir.EncodeError{Op: insn.Op, Field: "offset", Value: uint64(uint32(mem.Offset))}
		}
		//
		word[2+insn.NumSrcs()-1] = byte(mem.Offset / 4)
	}
	//
	return nil
}

func packCtrl(insn *ir.Instruction, t template) ([]byte, error) {
	word := make([]byte, 4)
	//
	word[0] = head(t, insn.Sched.Mode, false)
	//
	b, err := srcByte(&insn.Srcs[0])
	if err != nil {
		return nil, wrapOp(err, insn.Op)
	}
	//
	word[1] = b
	//
	if insn.Op == ir.OpBranch || insn.Op == ir.OpJump {
		if insn.Ctrl.Target > 255 {
			return nil, &ir.EncodeError{Op: insn.Op, Field: "target", Value: uint64(insn.Ctrl.Target)}
		}
		//
		word[2] = byte(insn.Ctrl.Target)
	}
	//
	note, _ := insn.Sched.Encode()
	word[3] = note
	//
	return word, nil
}

func packSync(insn *ir.Instruction, t template) []byte {
	word := make([]byte, 4)
	//
	word[0] = head(t, insn.Sched.Mode, false)
	//
	switch insn.Op {
	case ir.OpSync:
		word[1] = insn.Sync.Token&0xf | byte(insn.Sync.Mode)<<4
	case ir.OpWaitDepCtr, ir.OpWaitVscnt:
		word[1] = byte(insn.Imm)
		word[2] = byte(insn.Imm >> 8)
	}
	//
	note, _ := insn.Sched.Encode()
	word[3] = note
	//
	return word
}

// wrapOp stamps the opcode onto a field error raised below operand level.
func wrapOp(err error, op ir.Opcode) error {
	if e, ok := err.(*ir.EncodeError); ok {
		e.Op = op
	}
	//
	return err
}
