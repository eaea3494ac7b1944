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

// Package sched guarantees inter-instruction data coherency on targets
// whose hardware does not track dependencies between instruction pairs.  A
// forward dataflow analysis over the CFG assigns every instruction either
// an ordered distance annotation (RegDist) or an out-of-order token
// reference (SBID with SET/SRC/DST mode), and inserts SYNC or NOP
// instructions where the architecture's coherency rules demand them.
package sched

import "github.com/fjordgpu/go-fjord/pkg/ir"

// OrdMode is the ordered half of a dependency.
type OrdMode uint8

const (
	// OrdNull marks no ordered dependency.
	OrdNull OrdMode = iota
	// OrdSrc marks a dependency on the producer's source reads.
	OrdSrc
	// OrdDst marks a dependency on the producer's result write.
	OrdDst
)

// Dependency records what a register slot currently depends on: an ordered
// producer at a given ordered address, and/or an unordered token.
type Dependency struct {
	// Ordered mode; OrdNull when the slot has no in-order producer.
	Ord OrdMode
	// Ordered address of the in-order producer.
	Jp int64
	// Unordered mode; SyncNone when the slot has no out-of-order producer.
	Unord ir.SyncMode
	// Out-of-order token id (pre-flattening namespace).
	Token uint32
}

// Live reports whether the dependency constrains anything.
func (p Dependency) Live() bool {
	return p.Ord != OrdNull || p.Unord != ir.SyncNone
}

// Merge combines two dependencies observed for the same slot along
// different paths: modes are ORed, the ordered address takes the maximum,
// and tokens collapse through the unifier.
func Merge(a, b Dependency, tokens *Unifier) Dependency {
	out := a
	//
	if b.Ord != OrdNull {
		if out.Ord == OrdNull || b.Jp > out.Jp {
			out.Jp = b.Jp
		}
		//
		out.Ord = maxOrd(out.Ord, b.Ord)
	}
	//
	if b.Unord != ir.SyncNone {
		if out.Unord == ir.SyncNone {
			out.Token = b.Token
		} else if out.Token != b.Token {
			tokens.Union(out.Token, b.Token)
		}
		//
		out.Unord = maxSync(out.Unord, b.Unord)
	}
	//
	return out
}

// Transport re-expresses a dependency in a successor's ordered address
// frame by shifting its producer address.  A dependency crossing a loop
// back-edge may end up with a producer address beyond the consumer, which
// reads back as an already satisfied distance.
func Transport(d Dependency, delta int64) Dependency {
	if d.Ord != OrdNull {
		d.Jp += delta
	}
	//
	return d
}

func maxOrd(a, b OrdMode) OrdMode {
	if b > a {
		return b
	}
	//
	return a
}

func maxSync(a, b ir.SyncMode) ir.SyncMode {
	// Priority SET > DST > SRC > NONE.
	rank := func(m ir.SyncMode) int {
		switch m {
		case ir.SyncSet:
			return 3
		case ir.SyncDst:
			return 2
		case ir.SyncSrc:
			return 1
		default:
			return 0
		}
	}
	//
	if rank(b) > rank(a) {
		return b
	}
	//
	return a
}
