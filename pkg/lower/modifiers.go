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
package lower

import (
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

const (
	signBit    = 0x80000000
	notSignBit = 0x7fffffff
)

// producerInfo tracks the unique (pre-RA) definition of a virtual register
// within one block, together with its use count across the program.
type producerInfo struct {
	block *ir.Block
	id    ir.InstrID
	uses  uint
	// Whether at least one use was folded away.
	folded bool
}

// canonicaliseModifiers folds explicit sign-manipulation patterns and mov
// swizzle chains into the consumer's source modifiers where the ALU can
// apply them for free, and fuses shift-then-add pairs into the dedicated
// lshl_add opcode.  Patterns that cannot be folded are left as their
// explicit xor/and form.
func canonicaliseModifiers(p *ir.Program, tgt *target.Descriptor) error {
	producers := collectProducers(p)
	//
	for _, block := range p.Blocks {
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			for i := uint(0); i < insn.NumSrcs(); i++ {
				foldSource(p, block, insn, i, producers)
			}
			//
			fuseShiftAdd(p, block, id, insn, producers)
			//
			return true
		})
	}
	// Drop producers whose uses were all folded away.
	for _, prod := range producers {
		if prod != nil && prod.folded && prod.uses == 0 {
			prod.block.Remove(prod.id)
		}
	}
	//
	return nil
}

func collectProducers(p *ir.Program) map[uint32]*producerInfo {
	producers := make(map[uint32]*producerInfo)
	//
	p.EachInstr(func(block *ir.Block, id ir.InstrID, insn *ir.Instruction) bool {
		if insn.Dst.Kind == ir.OperandVirtual {
			producers[insn.Dst.Virtual] = &producerInfo{block: block, id: id}
		}
		//
		for i := uint(0); i < insn.NumSrcs(); i++ {
			if insn.Srcs[i].Kind == ir.OperandVirtual {
				if prod := producers[insn.Srcs[i].Virtual]; prod != nil {
					prod.uses++
				}
			}
		}
		//
		return true
	})
	//
	return producers
}

// foldSource rewrites one consumer source through its producer when the
// producer is a foldable sign pattern or a plain mov.
func foldSource(p *ir.Program, block *ir.Block, insn *ir.Instruction, slot uint, producers map[uint32]*producerInfo) {
	src := &insn.Srcs[slot]
	//
	if src.Kind != ir.OperandVirtual {
		return
	}
	//
	prod := producers[src.Virtual]
	if prod == nil || prod.block != block {
		return
	}
	//
	producer := p.Instr(prod.id)
	//
	outer := src.Mod
	//
	switch {
	case producer.Op == ir.OpIXor && immSrc(producer, signBit):
		// Negation only folds into float readers.
		if insn.Op.Info().Src != ir.TypeF32 {
			return
		}
		//
		replaceThrough(src, producer, 0)
		composeSign(src, outer, true, false)
	case producer.Op == ir.OpIAnd && immSrc(producer, notSignBit):
		if insn.Op.Info().Src != ir.TypeF32 {
			return
		}
		//
		replaceThrough(src, producer, 0)
		composeSign(src, outer, false, true)
	case plainMov(producer):
		replaceThrough(src, producer, 0)
		composeSign(src, outer, false, false)
	default:
		return
	}
	//
	prod.uses--
	prod.folded = true
	// The folded source may itself reference a tracked register.
	if src.Kind == ir.OperandVirtual {
		if through := producers[src.Virtual]; through != nil {
			through.uses++
		}
	}
}

// fuseShiftAdd rewrites "lshl r, a, k; add r2, r, c" into the fused
// "lshl{k}_add r2, a, c" when the shifted value has no other use.
func fuseShiftAdd(p *ir.Program, block *ir.Block, id ir.InstrID, insn *ir.Instruction, producers map[uint32]*producerInfo) {
	if insn.Op != ir.OpIAdd {
		return
	}
	//
	for slot := uint(0); slot < 2; slot++ {
		src := &insn.Srcs[slot]
		//
		if src.Kind != ir.OperandVirtual {
			continue
		}
		//
		prod := producers[src.Virtual]
		if prod == nil || prod.block != block || prod.uses != 1 {
			continue
		}
		//
		shift := p.Instr(prod.id)
		//
		if shift.Op != ir.OpIShl || shift.Srcs[1].Kind != ir.OperandImm || shift.Srcs[1].Imm > 7 {
			continue
		}
		//
		other := insn.Srcs[1-slot]
		//
		insn.Op = ir.OpShlAdd
		insn.ImmKind = ir.ImmShift
		insn.Imm = shift.Srcs[1].Imm << 32
		insn.Srcs[0] = shift.Srcs[0]
		insn.Srcs[1] = other
		//
		prod.uses = 0
		prod.folded = true
		//
		return
	}
}

func immSrc(insn *ir.Instruction, value uint64) bool {
	return insn.Srcs[1].Kind == ir.OperandImm && insn.Srcs[1].Imm == value
}

// plainMov checks for a mov with no destination side effects which can be
// seen through.  Only virtual sources qualify: a physical source may be
// rewritten between the mov and its reader.
func plainMov(insn *ir.Instruction) bool {
	return insn.Op == ir.OpMov && !insn.DstMod.Saturate &&
		insn.DstMod.Round == ir.RoundRTE &&
		insn.Srcs[0].Kind == ir.OperandVirtual
}

// replaceThrough substitutes the producer's selected source into the
// consumer slot, composing the two swizzles.  Sign modifiers are composed
// separately, by composeSign.
func replaceThrough(src *ir.Operand, producer *ir.Instruction, through uint) {
	var (
		outer = src.Mod
		inner = producer.Srcs[through]
		swz   [4]uint8
	)
	//
	for lane := 0; lane < 4; lane++ {
		sel := outer.Swizzle[lane]
		//
		if sel == ir.SwizzleMasked {
			swz[lane] = ir.SwizzleMasked
		} else {
			swz[lane] = inner.Mod.Swizzle[sel&3]
		}
	}
	//
	*src = inner
	src.Mod.Swizzle = swz
}

// composeSign merges the consumer's sign modifiers over the value the
// producer delivers.  flip adds the producer's own negation, forceAbs its
// own magnitude.  Abs applies before Neg, so a consumer abs absorbs every
// sign flip underneath it and only its own negation survives.
func composeSign(src *ir.Operand, outer ir.SrcMod, flip, forceAbs bool) {
	if outer.Abs || forceAbs {
		src.Mod.Abs = true
		src.Mod.Neg = outer.Neg
		//
		return
	}
	//
	src.Mod.Neg = (src.Mod.Neg != outer.Neg) != flip
}
