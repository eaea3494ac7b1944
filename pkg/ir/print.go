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

import (
	"fmt"
	"math"
	"strings"
)

var laneNames = [8]byte{'x', 'y', 'z', 'w', '4', '5', '6', '_'}

// Disassemble renders the whole program as text, one instruction per line,
// with block labels.  This is the format matched by the encoder tests.
func Disassemble(p *Program) string {
	var builder strings.Builder
	//
	for _, block := range p.Blocks {
		fmt.Fprintf(&builder, "block%d:\n", block.Index)
		//
		block.Each(func(id InstrID, insn *Instruction) bool {
			fmt.Fprintf(&builder, "   %s\n", p.InstrString(insn))
			return true
		})
	}
	//
	return builder.String()
}

// InstrString renders a single instruction.
func (p *Program) InstrString(insn *Instruction) string {
	var (
		builder strings.Builder
		info    = insn.Op.Info()
	)
	//
	builder.WriteString(p.mnemonic(insn))
	//
	first := true
	comma := func() {
		if first {
			builder.WriteString(" ")
			first = false
		} else {
			builder.WriteString(", ")
		}
	}
	//
	if !insn.Dst.IsNull() {
		comma()
		builder.WriteString(p.dstString(insn))
	}
	//
	// Memory operations list their resource ahead of the register sources.
	if info.Class == ClassLoad || info.Class == ClassStore {
		for i := uint(0); i < insn.NumSrcs(); i++ {
			if insn.Srcs[i].Kind == OperandUniform {
				comma()
				builder.WriteString(p.srcString(&insn.Srcs[i], info.Src))
			}
		}
	}
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].IsNull() {
			continue
		}
		//
		if insn.Srcs[i].Kind == OperandUniform &&
			(info.Class == ClassLoad || info.Class == ClassStore) {
			continue
		}
		//
		comma()
		builder.WriteString(p.srcString(&insn.Srcs[i], info.Src))
	}
	//
	switch insn.Op {
	case OpBranch, OpJump:
		comma()
		fmt.Fprintf(&builder, "block%d", insn.Ctrl.Target)
	case OpWaitVscnt, OpWaitDepCtr:
		comma()
		fmt.Fprintf(&builder, "%d", insn.Imm)
	case OpSync:
		comma()
		fmt.Fprintf(&builder, "sb%d", insn.Sync.Token)
	}
	//
	return builder.String()
}

func (p *Program) mnemonic(insn *Instruction) string {
	name := insn.Op.Info().Name
	// Memory operations carry their shape in the mnemonic.
	switch insn.Op.Info().Class {
	case ClassLoad, ClassStore:
		if insn.Op == OpLoad || insn.Op == OpStore {
			return fmt.Sprintf("%s.%dd.%s.%d", name, insn.Mem.Dims, typeName(insn.Mem.Elem), insn.Mem.Lanes)
		}
	}
	// ShlAdd spells its shift amount.
	if insn.Op == OpShlAdd {
		return fmt.Sprintf("lshl%d_add.i", insn.Imm>>32)
	}
	//
	return name
}

func (p *Program) dstString(insn *Instruction) string {
	var (
		builder strings.Builder
		dst     = &insn.Dst
	)
	//
	switch dst.Kind {
	case OperandVirtual:
		fmt.Fprintf(&builder, "v%d", dst.Virtual)
	case OperandPhys:
		builder.WriteString(dst.Phys.String())
	default:
		builder.WriteString("_")
	}
	//
	if mask := insn.DstMod.WriteMask; mask != 0 && mask != 0b1111 && mask != 0b1 {
		builder.WriteByte('.')
		//
		for lane := 0; lane < 4; lane++ {
			if mask&(1<<lane) != 0 {
				builder.WriteByte(laneNames[lane])
			}
		}
	}
	//
	if insn.DstMod.Saturate {
		builder.WriteString(".sat")
	}
	//
	return builder.String()
}

func (p *Program) srcString(src *Operand, typ Type) string {
	var builder strings.Builder
	//
	if src.Mod.Neg {
		builder.WriteString("(neg)")
	}
	//
	if src.Mod.Abs {
		builder.WriteString("(abs)")
	}
	//
	switch src.Kind {
	case OperandVirtual:
		fmt.Fprintf(&builder, "v%d", src.Virtual)
	case OperandPhys:
		builder.WriteString(src.Phys.String())
	case OperandImm:
		if typ == TypeF32 {
			value := float64(math.Float32frombits(uint32(src.Imm)))
			//
			if value == math.Trunc(value) {
				fmt.Fprintf(&builder, "(%.1f)", value)
			} else {
				fmt.Fprintf(&builder, "(%v)", value)
			}
		} else {
			fmt.Fprintf(&builder, "%d", src.Imm)
		}
	case OperandUniform:
		fmt.Fprintf(&builder, "g[%d]", src.Offset)
	default:
		builder.WriteString("_")
	}
	//
	if src.Kind == OperandVirtual || src.Kind == OperandPhys {
		if suffix := swizzleSuffix(src.Mod.Swizzle); suffix != "" {
			builder.WriteByte('.')
			builder.WriteString(suffix)
		}
	}
	//
	return builder.String()
}

func swizzleSuffix(swz [4]uint8) string {
	if swz == SwizzleIdentity {
		return ""
	}
	// Trailing masked lanes are omitted.
	last := 3
	for last > 0 && swz[last] == SwizzleMasked {
		last--
	}
	//
	var builder strings.Builder
	for i := 0; i <= last; i++ {
		builder.WriteByte(laneNames[swz[i]&7])
	}
	//
	return builder.String()
}

func typeName(t Type) string {
	switch t {
	case TypeF32:
		return "f32"
	case TypeF16:
		return "f16"
	case TypeI32:
		return "i32"
	case TypeU32:
		return "u32"
	case TypeI16:
		return "i16"
	case TypeU16:
		return "u16"
	case TypeI8:
		return "i8"
	case TypeU8:
		return "u8"
	default:
		return "b32"
	}
}
