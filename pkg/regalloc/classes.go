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

// Package regalloc assigns a physical register to every virtual register by
// graph colouring: an interference graph is built from block-level liveness,
// pre-coloured nodes are pinned, and colouring failures spill through the
// scratch file and retry within the target's budget.
package regalloc

import (
	"sync"

	"github.com/fjordgpu/go-fjord/pkg/ir"
	"github.com/fjordgpu/go-fjord/pkg/target"
)

// ClassID indexes a register class within its class table.
type ClassID uint8

// Class is a register class, defined by its precision and width in 32-bit
// lanes.  A register of class (p, n) at base b conflicts with a register of
// class (p, m) at base c whenever |b - c| < max(n, m).
type Class struct {
	Precision ir.Precision
	Lanes     uint8
}

// Size returns the class width used by the colouring kernel's q-values.
func (c Class) Size() uint {
	return uint(c.Lanes)
}

// ClassTable is the per-target register class universe, built once and
// cached.
type ClassTable struct {
	classes []Class
	// Runeson-Nystrom pessimistic bound q(B, C) = size(B) + size(C) - 1,
	// indexed [B][C].  Zero when B and C never conflict.
	q [][]uint
	// Mixed precision co-residency permitted.
	mixed bool
}

var (
	classTables     = map[target.ChipClass]*ClassTable{}
	classTablesLock sync.Mutex
)

// Classes returns the (cached) class table for a target.
func Classes(tgt *target.Descriptor) *ClassTable {
	classTablesLock.Lock()
	defer classTablesLock.Unlock()
	//
	if table, ok := classTables[tgt.ChipClass]; ok {
		return table
	}
	//
	table := buildClasses(tgt)
	classTables[tgt.ChipClass] = table
	//
	return table
}

func buildClasses(tgt *target.Descriptor) *ClassTable {
	table := &ClassTable{mixed: tgt.Quirks.Has(target.MixedPrecision)}
	//
	for prec := ir.Precision(0); prec < ir.NumPrecisions; prec++ {
		for lanes := uint8(1); lanes <= 4; lanes++ {
			table.classes = append(table.classes, Class{prec, lanes})
		}
	}
	//
	n := len(table.classes)
	table.q = make([][]uint, n)
	//
	for b := 0; b < n; b++ {
		table.q[b] = make([]uint, n)
		//
		for c := 0; c < n; c++ {
			if !table.conflicts(ClassID(b), ClassID(c)) {
				continue
			}
			//
			table.q[b][c] = table.classes[b].Size() + table.classes[c].Size() - 1
		}
	}
	//
	return table
}

// IDFor resolves the class of a register description.
func (p *ClassTable) IDFor(prec ir.Precision, lanes uint8) ClassID {
	if lanes < 1 {
		lanes = 1
	}
	//
	return ClassID(uint8(prec)*4 + lanes - 1)
}

// Of returns the class for an id.
func (p *ClassTable) Of(id ClassID) Class {
	return p.classes[id]
}

// Q returns the pessimistic colourability bound between two classes.
func (p *ClassTable) Q(b, c ClassID) uint {
	return p.q[b][c]
}

// conflicts decides whether two classes can ever collide.  Same-precision
// classes share a file; cross-precision pairs are enumerated pair-wise only
// when the target forbids them from co-residing.
func (p *ClassTable) conflicts(b, c ClassID) bool {
	if p.classes[b].Precision == p.classes[c].Precision {
		return true
	}
	//
	return !p.mixed
}

// Overlap checks whether concrete placements of two classes collide.
func Overlap(b Class, base uint, c Class, cbase uint) bool {
	var lo, hi uint
	//
	if base > cbase {
		lo, hi = cbase, base
	} else {
		lo, hi = base, cbase
	}
	//
	span := uint(b.Lanes)
	if base > cbase {
		span = uint(c.Lanes)
	}
	//
	return hi-lo < span
}

// Align rounds a base up to the alignment its class requires: pairs start
// even, wider classes start at multiples of their width.
func Align(class Class, base uint) uint {
	step := uint(1)
	//
	switch {
	case class.Lanes == 2:
		step = 2
	case class.Lanes > 2:
		step = uint(class.Lanes)
	}
	//
	if rem := base % step; rem != 0 {
		base += step - rem
	}
	//
	return base
}
