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
)

// waitRef is one unordered wait an instruction must perform before issue.
type waitRef struct {
	sbid uint8
	mode ir.SyncMode
}

// jpShift records one run of ordered padding: every instruction whose
// pre-insertion address is at or after the event moves forward by the given
// number of slots.
type jpShift struct {
	at    int64
	slots int64
}

// annotate is the final rewriting pass.  It replays each block against its
// fixed point entry scoreboard, selects every instruction's scheduling
// annotation, and inserts SYNC and mitigation instructions where an
// annotation alone cannot express the constraint.
func (s *state) annotate() {
	var (
		hz = newHazards(s.tgt)
		// Ordered slots added by inserted instructions so far.
		offset = int64(0)
	)
	//
	for i, block := range s.program.Blocks {
		var (
			sb = s.rebase(s.in[i].Clone())
			jp = s.entryJp[i] + offset
			// A memory access outstanding across the incoming edge must be
			// drained before the first access of this block.
			drain = i > 0 && s.pendingIn(i)
		)
		//
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			info := insn.Op.Info()
			jp += int64(insn.Op.Ord())
			//
			if drain && (info.Unit == ir.UnitVMEM || info.Unit == ir.UnitLDS) {
				wait := ir.NewInstr(ir.OpWaitVscnt, ir.NullOperand())
				wait.ImmKind, wait.Imm = ir.ImmRaw, 0
				//
				block.InsertBefore(id, wait)
				insn = s.program.Instr(id)
				drain = false
			}
			//
			maxJp, waits := s.gather(sb, insn)
			//
			delta := hz.mitigate(s.program, block, id, jp)
			if delta > 0 {
				s.shifts = append(s.shifts, jpShift{at: jp - offset, slots: delta})
			}
			//
			jp += delta
			offset += delta
			insn = s.program.Instr(id)
			//
			var note ir.SchedNote
			//
			if maxJp != math.MinInt64 {
				if d := jp - maxJp; d >= 1 {
					if d > int64(s.tgt.MaxRegDist) {
						d = int64(s.tgt.MaxRegDist)
					}
					//
					note.RegDist = uint8(d)
				}
				//
				s.clearOrdered(sb, maxJp)
			}
			// One unordered wait folds into the instruction itself; an
			// out-of-order instruction's own SET claims that slot, so all of
			// its waits become separate SYNCs.
			if info.OutOfOrder {
				note.SBID = s.flat[s.token(id)]
				note.Mode = ir.SyncSet
			} else if len(waits) > 0 {
				best := 0
				for w := 1; w < len(waits); w++ {
					if maxSync(waits[w].mode, waits[best].mode) == waits[w].mode &&
						waits[w].mode != waits[best].mode {
						best = w
					}
				}
				//
				note.SBID = waits[best].sbid
				note.Mode = waits[best].mode
				waits = append(waits[:best], waits[best+1:]...)
			}
			//
			for _, w := range waits {
				sync := ir.NewInstr(ir.OpSync, ir.NullOperand())
				sync.Sync = ir.SyncInfo{Token: w.sbid, Mode: w.mode}
				//
				block.InsertBefore(id, sync)
			}
			//
			if len(waits) > 0 {
				insn = s.program.Instr(id)
			}
			//
			insn.Sched = note
			//
			if note.Mode != ir.SyncNone && note.Mode != ir.SyncSet {
				waits = append(waits, waitRef{sbid: note.SBID, mode: note.Mode})
			}
			//
			s.clearWaited(sb, waits)
			s.step(sb, id, insn, jp)
			hz.observe(insn, jp)
			//
			return true
		})
	}
}

// rebase moves a fixed point scoreboard's ordered addresses into the
// post-insertion frame.  The fixed point ran before any padding existed;
// padding inserted at or before a producer pushes it forward, while the
// padding behind it leaves it in place.  Without the rebase a distance
// measured against the running jp counts padding that sits before the
// producer and overstates the wait.
func (s *state) rebase(sb *Scoreboard) *Scoreboard {
	if len(s.shifts) == 0 {
		return sb
	}
	//
	for slot, ok := sb.dirty.NextSet(0); ok; slot, ok = sb.dirty.NextSet(slot + 1) {
		dep := &sb.deps[slot]
		//
		if dep.Ord != OrdNull {
			dep.Jp += s.shiftAt(dep.Jp)
		}
	}
	//
	return sb
}

// shiftAt totals the padding inserted at or before the given pre-insertion
// address.
func (s *state) shiftAt(jp int64) int64 {
	total := int64(0)
	//
	for _, ev := range s.shifts {
		if ev.at <= jp {
			total += ev.slots
		}
	}
	//
	return total
}

// pendingIn reports whether any predecessor exits with an outstanding LDS
// or VMEM access.
func (s *state) pendingIn(block int) bool {
	for _, q := range s.program.Blocks[block].Preds {
		if s.memPending[q] {
			return true
		}
	}
	//
	return false
}

// gather collects the constraints an instruction must satisfy before issue:
// the newest ordered producer address (math.MinInt64 when none) and the
// unordered token waits, deduplicated by hardware SBID.
func (s *state) gather(sb *Scoreboard, insn *ir.Instruction) (int64, []waitRef) {
	var (
		maxJp = int64(math.MinInt64)
		waits []waitRef
	)
	//
	add := func(token uint32, mode ir.SyncMode) {
		sbid := s.flat[s.tokens.Find(token)]
		//
		for i := range waits {
			if waits[i].sbid == sbid {
				waits[i].mode = maxSync(waits[i].mode, mode)
				return
			}
		}
		//
		waits = append(waits, waitRef{sbid: sbid, mode: mode})
	}
	// Reads wait on the slot's writer only.
	for i := uint(0); i < insn.NumSrcs(); i++ {
		if insn.Srcs[i].Kind != ir.OperandPhys {
			continue
		}
		//
		dep := sb.Get(insn.Srcs[i].Phys)
		//
		if dep.Ord == OrdDst && dep.Jp > maxJp {
			maxJp = dep.Jp
		}
		//
		if dep.Unord == ir.SyncSet {
			add(dep.Token, ir.SyncDst)
		}
	}
	// Writes wait on the previous writer and on any pending readers.
	if insn.Dst.Kind == ir.OperandPhys {
		dep := sb.Get(insn.Dst.Phys)
		//
		if dep.Ord != OrdNull && dep.Jp > maxJp {
			maxJp = dep.Jp
		}
		//
		switch dep.Unord {
		case ir.SyncSet:
			add(dep.Token, ir.SyncDst)
		case ir.SyncSrc:
			add(dep.Token, ir.SyncSrc)
		}
	}
	//
	return maxJp, waits
}

// clearOrdered drops every ordered dependency at or before the waited
// address; the distance annotation retires them all at once.
func (s *state) clearOrdered(sb *Scoreboard, upTo int64) {
	for slot, ok := sb.dirty.NextSet(0); ok; slot, ok = sb.dirty.NextSet(slot + 1) {
		dep := &sb.deps[slot]
		//
		if dep.Ord != OrdNull && dep.Jp <= upTo {
			dep.Ord, dep.Jp = OrdNull, 0
		}
	}
}

// clearWaited drops every unordered dependency satisfied by the given
// waits.  A DST wait implies the producer's sources were read as well.
func (s *state) clearWaited(sb *Scoreboard, waits []waitRef) {
	if len(waits) == 0 {
		return
	}
	//
	for slot, ok := sb.dirty.NextSet(0); ok; slot, ok = sb.dirty.NextSet(slot + 1) {
		dep := &sb.deps[slot]
		//
		if dep.Unord == ir.SyncNone {
			continue
		}
		//
		sbid := s.flat[s.tokens.Find(dep.Token)]
		//
		for _, w := range waits {
			if w.sbid != sbid {
				continue
			}
			//
			if w.mode == ir.SyncDst || (w.mode == ir.SyncSrc && dep.Unord == ir.SyncSrc) {
				dep.Unord, dep.Token = ir.SyncNone, 0
				break
			}
		}
	}
}
