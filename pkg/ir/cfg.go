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

// Dominance holds the result of dominator analysis: the immediate dominator
// of every block, plus the reverse-postorder numbering used to compute it.
type Dominance struct {
	// Immediate dominator per block index.  The entry block dominates
	// itself.
	Idom []uint32
	// Reverse-postorder position per block index.
	RPO []uint32
	// Blocks in reverse-postorder.
	Order []uint32
}

// ReversePostorder numbers the blocks of a program by depth-first search
// from the entry, returning them in reverse-postorder.
func ReversePostorder(p *Program) []uint32 {
	var (
		seen  = make([]bool, len(p.Blocks))
		post  = make([]uint32, 0, len(p.Blocks))
		stack = []uint32{0}
		// Second stack entry marks "children done".
		state = make([]uint8, len(p.Blocks))
	)
	//
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		//
		if state[b] == 1 {
			stack = stack[:len(stack)-1]
			state[b] = 2
			post = append(post, b)
			//
			continue
		}
		//
		if seen[b] {
			stack = stack[:len(stack)-1]
			continue
		}
		//
		seen[b] = true
		state[b] = 1
		//
		for _, s := range p.Blocks[b].Succs {
			if !seen[s] {
				stack = append(stack, s)
			}
		}
	}
	// Reverse the postorder.
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	//
	return post
}

// ComputeDominance runs the Cooper-Harvey-Kennedy iterative dominator
// algorithm over the reverse-postorder numbering.
func ComputeDominance(p *Program) Dominance {
	var (
		order = ReversePostorder(p)
		rpo   = make([]uint32, len(p.Blocks))
		idom  = make([]uint32, len(p.Blocks))
		undef = uint32(len(p.Blocks))
	)
	//
	for i := range idom {
		idom[i] = undef
	}
	//
	for i, b := range order {
		rpo[b] = uint32(i)
	}
	//
	idom[0] = 0
	changed := true
	//
	for changed {
		changed = false
		//
		for _, b := range order {
			if b == 0 {
				continue
			}
			// Pick first processed predecessor.
			newIdom := undef
			//
			for _, q := range p.Blocks[b].Preds {
				if idom[q] == undef {
					continue
				}
				//
				if newIdom == undef {
					newIdom = q
				} else {
					newIdom = intersect(q, newIdom, idom, rpo)
				}
			}
			//
			if newIdom != undef && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	//
	return Dominance{Idom: idom, RPO: rpo, Order: order}
}

// Dominates checks whether block a dominates block b.
func (p *Dominance) Dominates(a, b uint32) bool {
	for {
		if a == b {
			return true
		}
		//
		if b == 0 {
			return a == 0
		}
		//
		b = p.Idom[b]
	}
}

func intersect(a, b uint32, idom, rpo []uint32) uint32 {
	for a != b {
		for rpo[a] > rpo[b] {
			a = idom[a]
		}
		//
		for rpo[b] > rpo[a] {
			b = idom[b]
		}
	}
	//
	return a
}
