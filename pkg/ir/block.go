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
	"github.com/bits-and-blooms/bitset"
)

// BlockKind is a bitset of structural properties of a basic block.
type BlockKind uint8

const (
	// BlockTopLevel marks blocks outside any control construct.
	BlockTopLevel BlockKind = 1 << iota
	// BlockUniform marks blocks with dynamically uniform control flow.
	BlockUniform
	// BlockLoopHeader marks loop entry blocks.
	BlockLoopHeader
	// BlockLoopExit marks loop exit blocks.
	BlockLoopExit
	// BlockDiscard marks blocks which can terminate the invocation.
	BlockDiscard
)

// Block is a basic block: an ordered list of instructions (stored as an
// intrusive list over the program's instruction arena) together with its CFG
// edges and per-block liveness sets.  A block has at most two successors:
// the fallthrough and the branch target.
type Block struct {
	// Index of this block within its program.
	Index uint32
	// Structural properties.
	Kind BlockKind
	// Predecessor / successor block indices.
	Preds []uint32
	Succs []uint32
	// Liveness sets over virtual registers, computed by Liveness.
	Def     *bitset.BitSet
	Use     *bitset.BitSet
	LiveIn  *bitset.BitSet
	LiveOut *bitset.BitSet
	// Intrusive list endpoints.
	head, tail InstrID
	// Number of live (non-tombstoned) instructions.
	count uint
	// Owning program, for arena access.
	program *Program
}

// Head returns the first instruction of this block, or NoInstr when empty.
func (p *Block) Head() InstrID {
	return p.head
}

// Tail returns the last instruction of this block, or NoInstr when empty.
func (p *Block) Tail() InstrID {
	return p.tail
}

// Len returns the number of live instructions in this block.
func (p *Block) Len() uint {
	return p.count
}

// Append allocates the given instruction at the end of this block, returning
// its arena index.
func (p *Block) Append(insn Instruction) InstrID {
	id := p.program.alloc(insn)
	//
	p.attach(id, p.tail, NoInstr)
	//
	return id
}

// InsertBefore allocates the given instruction immediately before an
// existing one.  This is constant time.
func (p *Block) InsertBefore(at InstrID, insn Instruction) InstrID {
	id := p.program.alloc(insn)
	prev := p.program.instrs[at].prev
	//
	p.attach(id, prev, at)
	//
	return id
}

// InsertAfter allocates the given instruction immediately after an existing
// one.  This is constant time.
func (p *Block) InsertAfter(at InstrID, insn Instruction) InstrID {
	id := p.program.alloc(insn)
	next := p.program.instrs[at].next
	//
	p.attach(id, at, next)
	//
	return id
}

// Remove tombstones an instruction.  The storage is reclaimed by the next
// Sweep; until then iteration skips it.
func (p *Block) Remove(id InstrID) {
	insn := &p.program.instrs[id]
	//
	if insn.dead {
		return
	}
	//
	insn.dead = true
	p.count--
	//
	if insn.prev != NoInstr {
		p.program.instrs[insn.prev].next = insn.next
	} else {
		p.head = insn.next
	}
	//
	if insn.next != NoInstr {
		p.program.instrs[insn.next].prev = insn.prev
	} else {
		p.tail = insn.prev
	}
}

// Sweep finalises all tombstones created since the last sweep.  Arena
// storage is not compacted (indices remain stable); dead entries are simply
// unreachable from any block.
func (p *Block) Sweep() {
	// Tombstoned instructions are already unlinked, so there is nothing
	// structural left to do per block.  Kept as an explicit pass boundary.
}

// Each calls fn for every live instruction in order.  Returning false stops
// the iteration.
func (p *Block) Each(fn func(InstrID, *Instruction) bool) {
	for id := p.head; id != NoInstr; {
		insn := &p.program.instrs[id]
		next := insn.next
		//
		if !fn(id, insn) {
			return
		}
		//
		id = next
	}
}

// SetSuccessors installs the outgoing edges of this block and mirrors them
// into the targets' predecessor lists.  At most two successors are allowed.
func (p *Block) SetSuccessors(succs ...uint32) {
	if len(succs) > 2 {
		panic("block has more than two successors")
	}
	// Unlink existing edges.
	for _, s := range p.Succs {
		p.program.Blocks[s].removePred(p.Index)
	}
	//
	p.Succs = append(p.Succs[:0], succs...)
	//
	for _, s := range succs {
		p.program.Blocks[s].Preds = append(p.program.Blocks[s].Preds, p.Index)
	}
}

func (p *Block) removePred(pred uint32) {
	for i, q := range p.Preds {
		if q == pred {
			p.Preds = append(p.Preds[:i], p.Preds[i+1:]...)
			return
		}
	}
}

func (p *Block) attach(id, prev, next InstrID) {
	insn := &p.program.instrs[id]
	insn.prev, insn.next = prev, next
	//
	if prev != NoInstr {
		p.program.instrs[prev].next = id
	} else {
		p.head = id
	}
	//
	if next != NoInstr {
		p.program.instrs[next].prev = id
	} else {
		p.tail = id
	}
	//
	p.count++
}
