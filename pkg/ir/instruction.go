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

import "math"

// InstrID indexes an instruction within its program's arena.
type InstrID uint32

// NoInstr is the nil instruction index.
const NoInstr InstrID = math.MaxUint32

// ImmKind discriminates the interpretation of an instruction's immediate
// payload.
type ImmKind uint8

const (
	// ImmNone means the payload is unused.
	ImmNone ImmKind = iota
	// ImmRaw is a raw 64-bit constant.
	ImmRaw
	// ImmTruthTable is a 2-input lookup table for logic ops.
	ImmTruthTable
	// ImmShift is a shift amount.
	ImmShift
	// ImmBitField is a bit-field mask.
	ImmBitField
)

// SyncMode is the unordered half of a scheduling annotation.
type SyncMode uint8

const (
	// SyncNone marks no unordered dependency.
	SyncNone SyncMode = iota
	// SyncSet allocates the token at this instruction.
	SyncSet
	// SyncSrc waits for the token's sources to be read.
	SyncSrc
	// SyncDst waits for the token's destination to land.
	SyncDst
)

// SchedNote is the software scoreboard annotation attached to every
// instruction by the hazard scheduler.  The encoded form is a byte holding
// [regdist:4|sbid:4] plus two mode bits in a shared side field; RegDist zero
// means "no ordered dependency".
type SchedNote struct {
	// Ordered distance to the nearest producer, zero when none.
	RegDist uint8
	// Unordered token, valid when Mode is not SyncNone.
	SBID uint8
	// Unordered mode.
	Mode SyncMode
}

// Encode packs this annotation into its byte plus side-field form.
func (p SchedNote) Encode() (byte, uint8) {
	return byte(p.RegDist&0xf)<<4 | byte(p.SBID&0xf), uint8(p.Mode)
}

// MemInfo carries the load/store payload: which memory segment is addressed
// and the static byte offset.
type MemInfo struct {
	// Source slot count forming the address (dimensionality).
	Dims uint8
	// Static byte offset added to the computed address.
	Offset int32
	// Render target index for tile access.
	Target uint8
	// Lane type of the accessed data.
	Elem Type
	// Number of lanes transferred.
	Lanes uint8
}

// TexInfo carries the texture payload.
type TexInfo struct {
	// Texture and sampler indices.
	Texture uint8
	Sampler uint8
	// Explicit LOD present in the last source.
	Lod bool
}

// CtrlInfo carries the control-flow payload.
type CtrlInfo struct {
	// Branch target block, by index.
	Target uint32
}

// SyncInfo carries the synchronisation payload.
type SyncInfo struct {
	// Token being waited on.
	Token uint8
	// Mode of the wait.
	Mode SyncMode
}

// Instruction is a single machine-level operation.  The shared fields live
// here; class-specific fields live in the payload struct selected by the
// opcode's class.  Instructions are immutable once the encoder begins.
type Instruction struct {
	Op Opcode
	// Destination, OperandNull when the opcode produces no result.
	Dst Operand
	// Source operands; slots beyond the opcode's NumSrcs are null.
	Srcs [4]Operand
	// Destination modifiers.
	DstMod DstMod
	// Immediate payload and its interpretation.
	ImmKind ImmKind
	Imm     uint64
	// Class payloads, exactly one valid per the opcode's class.
	Mem  MemInfo
	Tex  TexInfo
	Ctrl CtrlInfo
	Sync SyncInfo
	// Scheduling annotation, filled by the hazard scheduler.
	Sched SchedNote
	// Intrusive list links within the owning block.
	prev, next InstrID
	// Tombstone flag, cleared by Block.Sweep.
	dead bool
}

// NumSrcs returns the number of populated source slots.
func (p *Instruction) NumSrcs() uint {
	return uint(p.Op.Info().NumSrcs)
}

// Dead reports whether this instruction has been tombstoned.
func (p *Instruction) Dead() bool {
	return p.dead
}

// Writes checks whether this instruction defines the given virtual register.
func (p *Instruction) Writes(virtual uint32) bool {
	return p.Dst.Kind == OperandVirtual && p.Dst.Virtual == virtual
}

// Reads checks whether any source of this instruction reads the given
// virtual register.
func (p *Instruction) Reads(virtual uint32) bool {
	for i := uint(0); i < p.NumSrcs(); i++ {
		if p.Srcs[i].Kind == OperandVirtual && p.Srcs[i].Virtual == virtual {
			return true
		}
	}
	//
	return false
}

// NewInstr constructs a bare instruction for a given opcode with identity
// modifiers and a full write mask.
func NewInstr(op Opcode, dst Operand, srcs ...Operand) Instruction {
	insn := Instruction{
		Op:     op,
		Dst:    dst,
		DstMod: DstMod{WriteMask: 0b1},
		prev:   NoInstr,
		next:   NoInstr,
	}
	//
	copy(insn.Srcs[:], srcs)
	//
	for i := len(srcs); i < 4; i++ {
		insn.Srcs[i] = NullOperand()
	}
	//
	return insn
}

func f32bits(v float32) uint32 {
	return math.Float32bits(v)
}
