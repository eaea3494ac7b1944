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
	"github.com/bits-and-blooms/bitset"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// Graph is the interference graph: one node per virtual register, adjacency
// stored as one bitset row per node.
type Graph struct {
	adj []*bitset.BitSet
	// Live range length per node, in instructions, for the spill heuristic.
	rangeLen []uint
}

// NewGraph builds the interference graph from live-range intersections: two
// registers interfere when both are live across the same instruction.
// Liveness must be current.
func NewGraph(p *ir.Program) *Graph {
	n := uint(len(p.Registers))
	//
	g := &Graph{
		adj:      make([]*bitset.BitSet, n),
		rangeLen: make([]uint, n),
	}
	//
	for i := range g.adj {
		g.adj[i] = bitset.New(n)
	}
	//
	for _, block := range p.Blocks {
		g.scanBlock(p, block)
	}
	//
	for v := uint32(0); v < uint32(n); v++ {
		reg := &p.Registers[v]
		g.rangeLen[v] = uint(reg.LiveEnd-reg.LiveStart) + 1
	}
	//
	return g
}

// scanBlock walks the block backwards from its live-out set, recording
// pairwise interference at every definition point.
func (g *Graph) scanBlock(p *ir.Program, block *ir.Block) {
	live := block.LiveOut.Clone()
	// Gather instruction ids for the backwards walk.
	ids := make([]ir.InstrID, 0, block.Len())
	block.Each(func(id ir.InstrID, insn *ir.Instruction) bool {
		ids = append(ids, id)
		return true
	})
	//
	for i := len(ids) - 1; i >= 0; i-- {
		insn := p.Instr(ids[i])
		//
		if insn.Dst.Kind == ir.OperandVirtual {
			def := uint(insn.Dst.Virtual)
			// The definition interferes with everything live across it.
			for v, ok := live.NextSet(0); ok; v, ok = live.NextSet(v + 1) {
				if v != def {
					g.AddEdge(def, v)
				}
			}
			//
			live.Clear(def)
		}
		//
		for s := uint(0); s < insn.NumSrcs(); s++ {
			if insn.Srcs[s].Kind == ir.OperandVirtual {
				live.Set(uint(insn.Srcs[s].Virtual))
			}
		}
	}
}

// AddEdge records symmetric interference between two nodes.
func (g *Graph) AddEdge(a, b uint) {
	g.adj[a].Set(b)
	g.adj[b].Set(a)
}

// Interferes checks for an edge.
func (g *Graph) Interferes(a, b uint) bool {
	return g.adj[a].Test(b)
}

// Degree returns the number of neighbours of a node.
func (g *Graph) Degree(a uint) uint {
	return g.adj[a].Count()
}

// Neighbours iterates the adjacency row of a node.
func (g *Graph) Neighbours(a uint, fn func(uint)) {
	for v, ok := g.adj[a].NextSet(0); ok; v, ok = g.adj[a].NextSet(v + 1) {
		fn(v)
	}
}

// RangeLen returns the live range length used by the spill heuristic.
func (g *Graph) RangeLen(a uint) uint {
	return g.rangeLen[a]
}

// Len returns the node count.
func (g *Graph) Len() uint {
	return uint(len(g.adj))
}
