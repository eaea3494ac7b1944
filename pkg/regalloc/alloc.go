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
package regalloc

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// noNode marks "no spill candidate".
const noNode = ^uint(0)

// Allocate colours every virtual register of the program, spilling through
// the scratch file on failure and retrying within the target's spill
// budget.  On success every operand holds a physical register reference.
func Allocate(p *ir.Program, tgt *target.Descriptor, stop *atomic.Bool) error {
	var (
		table = Classes(tgt)
		start = time.Now()
	)
	//
	for iter := uint32(0); iter <= tgt.SpillBudget; iter++ {
		if stop != nil && stop.Load() {
			return ir.ErrCancelled
		}
		//
		if err := ir.Liveness(p); err != nil {
			return err
		}
		//
		graph := NewGraph(p)
		//
		if err := checkPins(p, graph, table); err != nil {
			return err
		}
		//
		colors, spill := colour(p, graph, table, tgt, uint(iter))
		//
		if spill == noNode {
			rewrite(p, colors)
			log.Debugf("regalloc took %v (%d spill rounds)", time.Since(start), iter)
			//
			return nil
		}
		//
		if p.Registers[spill].Pinned {
			return &ir.RAError{Kind: ir.InvalidPreColor, Detail: "pinned register needs spilling"}
		}
		//
		spillRegister(p, uint32(spill))
	}
	//
	return &ir.RAError{Kind: ir.OutOfRegisters, Detail: "spill budget exhausted"}
}

// checkPins rejects programs in which two interfering pre-coloured nodes
// overlap in the register file.
func checkPins(p *ir.Program, graph *Graph, table *ClassTable) error {
	for v := range p.Registers {
		reg := &p.Registers[v]
		//
		if !reg.Pinned {
			continue
		}
		//
		var err error
		//
		graph.Neighbours(uint(v), func(o uint) {
			other := &p.Registers[o]
			//
			if err != nil || !other.Pinned || other.Pin.File != reg.Pin.File {
				return
			}
			//
			b := table.Of(table.IDFor(reg.Precision, reg.Lanes))
			c := table.Of(table.IDFor(other.Precision, other.Lanes))
			//
			if Overlap(b, uint(reg.Pin.Number), c, uint(other.Pin.Number)) {
				err = &ir.RAError{Kind: ir.InvalidPreColor, Detail: reg.Pin.String()}
			}
		})
		//
		if err != nil {
			return err
		}
	}
	//
	return nil
}

// pressureLimit selects the register budget: the highest virtual register
// index observed, rounded up to the hardware step, clamped to the file
// size.
func pressureLimit(p *ir.Program, tgt *target.Descriptor) uint {
	const step = 4
	//
	limit := uint(len(p.Registers))
	limit = (limit + step - 1) / step * step
	//
	if limit < step {
		limit = step
	}
	//
	if limit > uint(tgt.NumVgprs) {
		limit = uint(tgt.NumVgprs)
	}
	//
	return limit
}

// colour runs one simplify/select round.  It returns the assigned base per
// node, or the node chosen for spilling when selection failed.
func colour(p *ir.Program, graph *Graph, table *ClassTable, tgt *target.Descriptor, round uint) ([]uint, uint) {
	var (
		n       = graph.Len()
		limit   = pressureLimit(p, tgt)
		removed = make([]bool, n)
		stack   = make([]uint, 0, n)
	)
	// Simplify: push trivially colourable nodes; when stuck, push the worst
	// spill candidate optimistically.
	for pushed := uint(0); pushed < n; {
		found := false
		//
		for v := uint(0); v < n; v++ {
			if removed[v] || p.Registers[v].Pinned {
				continue
			}
			//
			if qDegree(p, graph, table, v, removed) < limit {
				removed[v] = true
				stack = append(stack, v)
				pushed++
				found = true
			}
		}
		//
		if !found {
			candidate := spillCandidate(p, graph, removed)
			//
			if candidate == noNode {
				break
			}
			//
			removed[candidate] = true
			stack = append(stack, candidate)
			pushed++
		}
	}
	// Pinned nodes are coloured first, at their pins.
	colors := make([]uint, n)
	placed := make([]bool, n)
	//
	for v := uint(0); v < n; v++ {
		if p.Registers[v].Pinned {
			colors[v] = uint(p.Registers[v].Pin.Number)
			placed[v] = true
		}
	}
	// Select: pop and place each node at the lowest legal base, starting the
	// search at a round-robin offset so retries spread across banks.  This
	// spreads pressure; correctness does not depend on it.
	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		base, ok := place(p, graph, table, v, colors, placed, limit, round)
		//
		if !ok {
			return nil, v
		}
		//
		colors[v] = base
		placed[v] = true
	}
	//
	return colors, noNode
}

// qDegree computes the q-weighted degree of a node against its still
// present neighbours.
func qDegree(p *ir.Program, graph *Graph, table *ClassTable, v uint, removed []bool) uint {
	var (
		degree = uint(0)
		vc     = table.IDFor(p.Registers[v].Precision, p.Registers[v].Lanes)
	)
	//
	graph.Neighbours(v, func(o uint) {
		if !removed[o] {
			oc := table.IDFor(p.Registers[o].Precision, p.Registers[o].Lanes)
			degree += table.Q(vc, oc)
		}
	})
	//
	return degree
}

// spillCandidate picks the remaining node maximising degree divided by live
// range length.
func spillCandidate(p *ir.Program, graph *Graph, removed []bool) uint {
	var (
		best      = noNode
		bestScore = float64(-1)
	)
	//
	for v := uint(0); v < graph.Len(); v++ {
		if removed[v] || p.Registers[v].Pinned {
			continue
		}
		//
		score := float64(graph.Degree(v)) / float64(graph.RangeLen(v))
		//
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	//
	return best
}

// place finds a legal base for one node given its already placed
// neighbours.
func place(p *ir.Program, graph *Graph, table *ClassTable, v uint, colors []uint, placed []bool, limit, round uint) (uint, bool) {
	var (
		class = table.Of(table.IDFor(p.Registers[v].Precision, p.Registers[v].Lanes))
		start = (round * 8) % limit
	)
	//
	for probe := uint(0); probe < limit; probe++ {
		base := Align(class, (start+probe)%limit)
		//
		if base+uint(class.Lanes) > limit {
			continue
		}
		//
		legal := true
		graph.Neighbours(v, func(o uint) {
			if !legal || !placed[o] {
				return
			}
			//
			oc := table.Of(table.IDFor(p.Registers[o].Precision, p.Registers[o].Lanes))
			//
			if Overlap(class, base, oc, colors[o]) {
				legal = false
			}
		})
		//
		if legal {
			return base, true
		}
	}
	//
	return 0, false
}

// rewrite installs the colouring into every operand and records the work
// register count for the runtime.
func rewrite(p *ir.Program, colors []uint) {
	high := uint(0)
	//
	p.EachInstr(func(block *ir.Block, id ir.InstrID, insn *ir.Instruction) bool {
		if insn.Dst.Kind == ir.OperandVirtual {
			insn.Dst = physFor(p, colors, insn.Dst)
		}
		//
		for i := uint(0); i < insn.NumSrcs(); i++ {
			if insn.Srcs[i].Kind == ir.OperandVirtual {
				insn.Srcs[i] = physFor(p, colors, insn.Srcs[i])
			}
		}
		//
		return true
	})
	//
	for v := range p.Registers {
		if top := colors[v] + uint(p.Registers[v].Lanes); top > high {
			high = top
		}
	}
	//
	p.Meta.WorkRegisterCount = uint32(high)
}

func physFor(p *ir.Program, colors []uint, op ir.Operand) ir.Operand {
	var (
		reg  = &p.Registers[op.Virtual]
		file = ir.FileGeneral
	)
	//
	if reg.Pinned {
		file = reg.Pin.File
	}
	//
	out := ir.Phys(file, uint16(colors[op.Virtual]), 0)
	out.Mod = op.Mod
	//
	return out
}
