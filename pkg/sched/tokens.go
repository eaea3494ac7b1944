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

// Unifier is the SBID equivalence relation: temporary token ids allocated
// along different paths collapse to one hardware token when the shader is
// laid out.  Append-only union-find with path compression.
type Unifier struct {
	parent []uint32
}

// Fresh allocates a new temporary token.
func (p *Unifier) Fresh() uint32 {
	id := uint32(len(p.parent))
	p.parent = append(p.parent, id)
	//
	return id
}

// Find resolves a token to its representative, compressing the path.
func (p *Unifier) Find(id uint32) uint32 {
	root := id
	for p.parent[root] != root {
		root = p.parent[root]
	}
	//
	for p.parent[id] != root {
		p.parent[id], id = root, p.parent[id]
	}
	//
	return root
}

// Union merges two tokens, returning the representative.
func (p *Unifier) Union(a, b uint32) uint32 {
	ra, rb := p.Find(a), p.Find(b)
	//
	if ra != rb {
		p.parent[rb] = ra
	}
	//
	return ra
}

// Len returns the number of temporaries allocated so far.
func (p *Unifier) Len() uint32 {
	return uint32(len(p.parent))
}

// Flatten maps every temporary token onto the hardware namespace of the
// given size, assigning representatives round-robin in first-seen order.
// The result is a dense lookup from temporary id to hardware SBID.
func (p *Unifier) Flatten(hardware uint8) []uint8 {
	var (
		flat     = make([]uint8, len(p.parent))
		assigned = make(map[uint32]uint8)
		next     = uint8(0)
	)
	//
	for id := range p.parent {
		root := p.Find(uint32(id))
		//
		sbid, ok := assigned[root]
		if !ok {
			sbid = next % hardware
			assigned[root] = sbid
			next++
		}
		//
		flat[id] = sbid
	}
	//
	return flat
}
