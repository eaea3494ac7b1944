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
	"github.com/bits-and-blooms/bitset"

	"github.com/fjordgpu/go-fjord/pkg/ir"
)

// slotCount covers every (file, number) pair PhysReg.Slot can produce.
const slotCount = 7 * 1024

// Scoreboard is the parallel map from physical register slot to its current
// dependency.  Stored dense, with a dirty set so cloning and comparing only
// touch populated slots.
type Scoreboard struct {
	deps  []Dependency
	dirty *bitset.BitSet
}

// NewScoreboard constructs an empty scoreboard.
func NewScoreboard() *Scoreboard {
	return &Scoreboard{
		deps:  make([]Dependency, slotCount),
		dirty: bitset.New(slotCount),
	}
}

// Clone copies this scoreboard, as done at block boundaries.
func (p *Scoreboard) Clone() *Scoreboard {
	out := &Scoreboard{
		deps:  make([]Dependency, slotCount),
		dirty: p.dirty.Clone(),
	}
	//
	for s, ok := p.dirty.NextSet(0); ok; s, ok = p.dirty.NextSet(s + 1) {
		out.deps[s] = p.deps[s]
	}
	//
	return out
}

// Get returns the dependency currently installed for a register.
func (p *Scoreboard) Get(reg ir.PhysReg) Dependency {
	return p.deps[reg.Slot()]
}

// SetSlot installs a dependency, shadowing the previous one.
func (p *Scoreboard) SetSlot(reg ir.PhysReg, dep Dependency) {
	p.deps[reg.Slot()] = dep
	p.dirty.Set(reg.Slot())
}

// InstallWrite records a destination write.  In-order producers install an
// ordered DST dependency; out-of-order producers install a SET token.  An
// existing ordered dependency is preserved alongside the new one so that
// both the write-after-write and any latent source hazard remain visible.
func (p *Scoreboard) InstallWrite(reg ir.PhysReg, jp int64, outOfOrder bool, token uint32) {
	var (
		slot = reg.Slot()
		old  = p.deps[slot]
		dep  Dependency
	)
	//
	if outOfOrder {
		dep = Dependency{Unord: ir.SyncSet, Token: token}
		// Keep the ordered half of the shadowed entry alive.
		if old.Ord != OrdNull {
			dep.Ord, dep.Jp = old.Ord, old.Jp
		}
	} else {
		dep = Dependency{Ord: OrdDst, Jp: jp}
		// Keep the unordered half of the shadowed entry alive.
		if old.Unord != ir.SyncNone {
			dep.Unord, dep.Token = old.Unord, old.Token
		}
	}
	//
	p.deps[slot] = dep
	p.dirty.Set(slot)
}

// MergeFrom merges another scoreboard, transported by delta, into this one.
// Returns true when anything changed.
func (p *Scoreboard) MergeFrom(o *Scoreboard, delta int64, tokens *Unifier) bool {
	changed := false
	//
	for s, ok := o.dirty.NextSet(0); ok; s, ok = o.dirty.NextSet(s + 1) {
		in := Transport(o.deps[s], delta)
		//
		if !in.Live() {
			continue
		}
		//
		merged := Merge(p.deps[s], in, tokens)
		//
		if merged != p.deps[s] {
			p.deps[s] = merged
			p.dirty.Set(uint(s))
			changed = true
		}
	}
	//
	return changed
}

// Equal compares populated slots of two scoreboards.
func (p *Scoreboard) Equal(o *Scoreboard) bool {
	union := p.dirty.Union(o.dirty)
	//
	for s, ok := union.NextSet(0); ok; s, ok = union.NextSet(s + 1) {
		if p.deps[s] != o.deps[s] {
			return false
		}
	}
	//
	return true
}
