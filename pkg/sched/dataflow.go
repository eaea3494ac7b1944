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
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

type state struct {
	program *ir.Program
	tgt     *target.Descriptor
	tokens  Unifier
	// Stable out-of-order token per producing instruction.
	tokenOf map[ir.InstrID]uint32
	// Ordered address of each block's entry and exit, in layout order.
	entryJp []int64
	exitJp  []int64
	// Fixed point scoreboards.
	in  []*Scoreboard
	out []*Scoreboard
	// Whether a block's last reachable path contains an outstanding LDS or
	// VMEM access, for the branch crossing rule.
	memPending []bool
	// Flattened token map, valid after the fixed point.
	flat []uint8
	// Ordered padding inserted during annotation, used to rebase fixed
	// point addresses into the post-insertion frame.
	shifts []jpShift
}

// Schedule runs the global hazard analysis and rewrites the program with
// scoreboard annotations and mitigation instructions.
func Schedule(p *ir.Program, tgt *target.Descriptor, stop *atomic.Bool) error {
	var (
		start = time.Now()
		s     = &state{
			program: p,
			tgt:     tgt,
			tokenOf: make(map[ir.InstrID]uint32),
		}
	)
	//
	s.number()
	//
	if err := s.fixedPoint(stop); err != nil {
		return err
	}
	//
	s.flat = s.tokens.Flatten(tgt.NumSbids)
	s.annotate()
	//
	log.Debugf("sched took %v (%d tokens)", time.Since(start), s.tokens.Len())
	//
	return nil
}

// number assigns every block its entry and exit ordered address: the prefix
// sum of ord over the layout order.
func (s *state) number() {
	var (
		n  = len(s.program.Blocks)
		jp = int64(0)
	)
	//
	s.entryJp = make([]int64, n)
	s.exitJp = make([]int64, n)
	s.in = make([]*Scoreboard, n)
	s.out = make([]*Scoreboard, n)
	s.memPending = make([]bool, n)
	//
	for i, block := range s.program.Blocks {
		s.entryJp[i] = jp
		//
		block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
			jp += int64(insn.Op.Ord())
			return true
		})
		//
		s.exitJp[i] = jp
	}
}

// fixedPoint iterates the forward dataflow until the per-block scoreboards
// stop changing.  Merges only grow the token relation and ordered
// addresses, so termination is quick in practice.
func (s *state) fixedPoint(stop *atomic.Bool) error {
	for i := range s.program.Blocks {
		s.in[i] = NewScoreboard()
		s.out[i] = NewScoreboard()
	}
	//
	for changed := true; changed; {
		changed = false
		//
		if stop != nil && stop.Load() {
			return ir.ErrCancelled
		}
		//
		for i, block := range s.program.Blocks {
			in := NewScoreboard()
			pending := false
			//
			for _, q := range block.Preds {
				// Ordered addresses are absolute over the layout, so the
				// transport delta between frames is zero; the call keeps
				// the merge shape explicit.
				in.MergeFrom(s.out[q], 0, &s.tokens)
				pending = pending || s.memPending[q]
			}
			//
			out := in.Clone()
			pending = s.simulate(block, out, pending)
			//
			if !out.Equal(s.out[i]) || !in.Equal(s.in[i]) || pending != s.memPending[i] {
				s.in[i] = in
				s.out[i] = out
				s.memPending[i] = pending
				changed = true
			}
		}
	}
	//
	return nil
}

// simulate updates a scoreboard across one block without mutating the
// program.  Returns whether an LDS or VMEM access is outstanding at exit.
func (s *state) simulate(block *ir.Block, sb *Scoreboard, pending bool) bool {
	jp := s.entryJp[block.Index]
	//
	block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
		jp += int64(insn.Op.Ord())
		s.step(sb, id, insn, jp)
		//
		switch insn.Op.Info().Unit {
		case ir.UnitVMEM, ir.UnitLDS:
			pending = true
		}
		//
		if insn.Op == ir.OpWaitVscnt {
			pending = false
		}
		//
		return true
	})
	//
	return pending
}

// step installs the scoreboard effects of one instruction: source reads add
// SRC dependencies on the reader, destination writes shadow the slot with a
// DST (in-order) or SET (out-of-order) dependency.
func (s *state) step(sb *Scoreboard, id ir.InstrID, insn *ir.Instruction, jp int64) {
	info := insn.Op.Info()
	//
	for i := uint(0); i < insn.NumSrcs(); i++ {
		src := &insn.Srcs[i]
		//
		if src.Kind != ir.OperandPhys {
			continue
		}
		//
		read := sb.Get(src.Phys)
		//
		if info.OutOfOrder {
			read = Merge(read, Dependency{Unord: ir.SyncSrc, Token: s.token(id)}, &s.tokens)
		} else {
			read = Merge(read, Dependency{Ord: OrdSrc, Jp: jp}, &s.tokens)
		}
		//
		sb.SetSlot(src.Phys, read)
	}
	//
	if insn.Dst.Kind == ir.OperandPhys {
		token := uint32(0)
		//
		if info.OutOfOrder {
			token = s.token(id)
		}
		//
		sb.InstallWrite(insn.Dst.Phys, jp, info.OutOfOrder, token)
	}
}

// token returns the stable temporary token for an out-of-order producer.
func (s *state) token(id ir.InstrID) uint32 {
	if t, ok := s.tokenOf[id]; ok {
		return t
	}
	//
	t := s.tokens.Fresh()
	s.tokenOf[id] = t
	//
	return t
}
