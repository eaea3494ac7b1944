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
package sched

import (
	"math"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// Issue distances required between hazardous instruction pairs.
const (
	vccReadDist  = 5
	dppCrossDist = 2
	laneRWDist   = 4
	vmemSgprDist = 5
)

// sgprNull is the scalar bit bucket used to flush the scalar write queue.
var sgprNull = ir.PhysReg{File: ir.FileState, Number: 125}

// hazards tracks the rolling issue window consulted by the mitigation
// rules.  Ordered addresses of the most recent hazardous producers are kept
// per rule; math.MinInt64 marks "never seen".
type hazards struct {
	tgt *target.Descriptor
	// Last VALU write to the flag file (VCC).
	valuFlag int64
	// Last VALU write to the general file.
	valuVec int64
	// Last VALU write to a scalar file.
	valuScalar int64
	// Outstanding accesses feeding the mitigation rules.
	vmemOutstanding bool
	smemOutstanding bool
	// The most recent vector ALU issue was a comparison.
	lastVopc bool
	// A non-VALU instruction has issued since the exec mask was written.
	execRead bool
}

func newHazards(tgt *target.Descriptor) *hazards {
	return &hazards{
		tgt:        tgt,
		valuFlag:   math.MinInt64,
		valuVec:    math.MinInt64,
		valuScalar: math.MinInt64,
	}
}

// nopRules reports whether the target needs explicit distance padding.
func (p *hazards) nopRules() bool {
	c := p.tgt.ChipClass
	return c >= target.GFX9 && c <= target.GFX10_3
}

// queueRules reports whether the target has the memory queue flush hazards.
func (p *hazards) queueRules() bool {
	c := p.tgt.ChipClass
	return c == target.GFX10 || c == target.GFX10_3
}

// mitigate inserts whatever padding the instruction at id needs before it
// may issue at ordered address jp.  Returns the number of ordered slots
// inserted; the caller must refetch its instruction pointer afterwards.
func (p *hazards) mitigate(prog *ir.Program, block *ir.Block, id ir.InstrID, jp int64) int64 {
	var (
		insn  = prog.Instr(id)
		info  = insn.Op.Info()
		delta = int64(0)
	)
	//
	if p.nopRules() {
		need := int64(0)
		//
		if readsFile(insn, ir.FileFlag) && jp-p.valuFlag < vccReadDist {
			need = max64(need, vccReadDist-(jp-p.valuFlag))
		}
		//
		if info.Unit == ir.UnitDPP && readsFile(insn, ir.FileGeneral) {
			dist := laneRWDist
			if insn.Op == ir.OpDppMov {
				dist = dppCrossDist
			}
			//
			if jp-p.valuVec < int64(dist) {
				need = max64(need, int64(dist)-(jp-p.valuVec))
			}
		}
		//
		if info.Unit == ir.UnitVMEM && readsFile(insn, ir.FileAddr) && jp-p.valuScalar < vmemSgprDist {
			need = max64(need, vmemSgprDist-(jp-p.valuScalar))
		}
		//
		for i := int64(0); i < need; i++ {
			block.InsertBefore(id, ir.NewInstr(ir.OpSNop, ir.NullOperand()))
		}
		//
		delta += need
	}
	//
	if !p.queueRules() {
		return delta
	}
	//
	insn = prog.Instr(id)
	//
	if p.vmemOutstanding && writesScalar(insn) {
		block.InsertBefore(id, ir.NewInstr(ir.OpNop, ir.NullOperand()))
		p.vmemOutstanding = false
		delta++
	}
	//
	insn = prog.Instr(id)
	//
	if p.lastVopc && insn.Op == ir.OpPermLane && insn.Srcs[0].Kind == ir.OperandPhys {
		// A plain nop is discarded in front of permlane; copy the operand
		// onto itself instead.
		reg := insn.Srcs[0].Phys
		block.InsertBefore(id, ir.NewInstr(ir.OpMov,
			ir.Phys(reg.File, reg.Number, reg.Offset),
			ir.Phys(reg.File, reg.Number, reg.Offset)))
		//
		p.lastVopc = false
		delta++
	}
	//
	insn = prog.Instr(id)
	//
	if p.execRead && info.Unit == ir.UnitVALU && insn.Dst.Kind == ir.OperandPhys &&
		insn.Dst.Phys.File == ir.FileState {
		wait := ir.NewInstr(ir.OpWaitDepCtr, ir.NullOperand())
		wait.ImmKind, wait.Imm = ir.ImmRaw, 0xfffe
		//
		block.InsertBefore(id, wait)
		p.execRead = false
	}
	//
	insn = prog.Instr(id)
	//
	if p.smemOutstanding && info.Unit == ir.UnitVALU && writesScalar(insn) {
		flush := ir.NewInstr(ir.OpSMov,
			ir.Phys(sgprNull.File, sgprNull.Number, 0),
			ir.Imm(0))
		//
		block.InsertBefore(id, flush)
		p.smemOutstanding = false
		delta++
	}
	//
	return delta
}

// observe records the instruction into the rolling window after it issues.
func (p *hazards) observe(insn *ir.Instruction, jp int64) {
	info := insn.Op.Info()
	//
	switch info.Unit {
	case ir.UnitVALU, ir.UnitDPP:
		if insn.Dst.Kind == ir.OperandPhys {
			switch insn.Dst.Phys.File {
			case ir.FileFlag:
				p.valuFlag = jp
				p.valuScalar = jp
			case ir.FileGeneral:
				p.valuVec = jp
			case ir.FileAddr, ir.FileState:
				p.valuScalar = jp
			}
		}
		//
		p.lastVopc = insn.Op == ir.OpFCmp
	default:
		p.execRead = true
	}
	//
	switch info.Unit {
	case ir.UnitVMEM:
		p.vmemOutstanding = true
	case ir.UnitSMEM:
		p.smemOutstanding = true
	}
	//
	if insn.Op == ir.OpWaitVscnt {
		p.vmemOutstanding = false
	}
}

func readsFile(insn *ir.Instruction, file ir.RegFile) bool {
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].Kind == ir.OperandPhys && insn.Srcs[i].Phys.File == file {
			return true
		}
	}
	//
	return false
}

func writesScalar(insn *ir.Instruction) bool {
	if insn.Dst.Kind != ir.OperandPhys {
		return false
	}
	//
	switch insn.Dst.Phys.File {
	case ir.FileAddr, ir.FileFlag:
		return true
	default:
		return false
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	//
	return b
}
