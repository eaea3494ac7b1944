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
	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// clauseTagBase marks a header tag as a bundle-count class.
const clauseTagBase = 0x20

// clause accumulates one run of bundles between scheduling boundaries.
type clause struct {
	words [][]byte
	// Dependency mask, one bit per register number modulo 16, ORed over
	// every operand of every bundle.
	mask uint16
}

// tag encodes the clause's bundle-count class.  The first clause's tag is
// reported as Metadata.FirstTag for the runtime to OR with the instruction
// buffer base.
func (p *clause) tag() uint8 {
	n := len(p.words)
	if n > 31 {
		n = 31
	}
	//
	return clauseTagBase | uint8(n)
}

// header assembles the 32-bit clause header: bundle count, dependency mask
// and tag.
func (p *clause) header() []byte {
	var (
		h = uint32(len(p.words)) | uint32(p.mask)<<8 | uint32(p.tag())<<24
	)
	//
	return []byte{byte(h), byte(h >> 8), byte(h >> 16), byte(h >> 24)}
}

func (p *clause) add(insn *ir.Instruction, word []byte) {
	p.words = append(p.words, word)
	//
	if insn.Dst.Kind == ir.OperandPhys {
		p.mask |= 1 << (insn.Dst.Phys.Number % 16)
	}
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].Kind == ir.OperandPhys {
			p.mask |= 1 << (insn.Srcs[i].Phys.Number % 16)
		}
	}
}

// boundary reports whether an instruction must open a new clause: anything
// carrying a scheduling annotation is a boundary the hardware may stall on.
func boundary(insn *ir.Instruction) bool {
	return insn.Sched.RegDist != 0 || insn.Sched.Mode != ir.SyncNone
}

// Encode converts a scheduled program into the native byte stream, filling
// Program.Binary and the runtime metadata record.  Blocks are emitted in
// layout order; the encoder never reorders them relative to their
// control-flow predecessors.
func Encode(p *ir.Program, tgt *target.Descriptor) error {
	var (
		out     []byte
		claused = tgt.ChipClass == target.FJ1
		current *clause
		first   = true
	)
	//
	p.Meta.BlendPatchOffset = -1
	//
	flush := func() {
		if current == nil || len(current.words) == 0 {
			return
		}
		//
		if first {
			p.Meta.FirstTag = uint32(current.tag())
			first = false
		}
		//
		out = append(out, current.header()...)
		//
		for _, w := range current.words {
			out = append(out, w...)
		}
		//
		current = &clause{}
	}
	//
	if claused {
		current = &clause{}
	}
	//
	var failed error
	//
	p.EachInstr(func(block *ir.Block, id ir.InstrID, insn *ir.Instruction) bool {
		if insn.Op == ir.OpDiscard {
			p.Meta.CanDiscard = true
		}
		//
		word, litOff, err := packInstr(insn)
		if err != nil {
			failed = err
			return false
		}
		//
		if length, err := WordLen(insn); err != nil || len(word) != length {
			failed = ir.Internalf("packed %v to %d bytes, template predicts %d", insn.Op, len(word), length)
			return false
		}
		//
		if !claused {
			if litOff >= 0 {
				notePatch(p, insn, int64(len(out)+litOff))
			}
			//
			out = append(out, word...)
			return true
		}
		//
		if boundary(insn) || insn.Op.Info().Unit == ir.UnitBranch {
			flush()
		}
		//
		if litOff >= 0 {
			// Patch offsets inside a clause account for the pending header.
			notePatch(p, insn, int64(len(out))+4+int64(clauseLen(current))+int64(litOff))
		}
		//
		current.add(insn, word)
		//
		return true
	})
	//
	if failed != nil {
		return failed
	}
	//
	if claused {
		flush()
	}
	//
	p.Binary = out
	fillMeta(p)
	//
	return nil
}

func clauseLen(c *clause) int {
	n := 0
	for _, w := range c.words {
		n += len(w)
	}
	//
	return n
}

// notePatch records the byte position the runtime patches with the blend
// constant, keyed on the dedicated uniform buffer.
func notePatch(p *ir.Program, insn *ir.Instruction, offset int64) {
	if p.Meta.BlendPatchOffset >= 0 {
		return
	}
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].Kind == ir.OperandUniform && insn.Srcs[i].Buffer == BlendBuffer {
			p.Meta.BlendPatchOffset = offset
			return
		}
	}
}

// fillMeta derives the remaining metadata fields from the symbol table.
func fillMeta(p *ir.Program) {
	cutoff := uint32(0)
	//
	for _, u := range p.Symbols.Uniforms {
		if u.Location+1 > cutoff {
			cutoff = u.Location + 1
		}
	}
	//
	p.Meta.UniformCutoff = cutoff
	//
	if p.Stage == ir.StageVertex {
		for _, o := range p.Symbols.Outputs {
			if o.Name == "gl_PointSize" {
				p.Meta.WritesPointSize = true
			}
		}
	}
	//
	if p.Stage == ir.StageGeometry {
		for _, o := range p.Symbols.Outputs {
			p.Meta.StreamBufferMask |= 1 << (o.Location >> 4 & 0x7)
		}
	}
}
