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

// Package target describes the compilation target: its chip class, quirk
// set, register file sizes and wave width.  A Descriptor is passed
// explicitly through every pipeline stage; there is no global target state.
package target

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// ChipClass selects the hazard rule set applied by the scheduler.
type ChipClass uint8

// Known chip classes, in generation order.
const (
	GFX6 ChipClass = iota
	GFX7
	GFX8
	GFX9
	GFX10
	GFX10_3
	// FJ1 is the first Fjord VLIW generation.
	FJ1
	//
	numChipClasses
)

var chipNames = [numChipClasses]string{
	"gfx6", "gfx7", "gfx8", "gfx9", "gfx10", "gfx10.3", "fj1",
}

func (c ChipClass) String() string {
	if c >= numChipClasses {
		return "??"
	}
	//
	return chipNames[c]
}

// ParseChipClass maps a chip name back to its class.
func ParseChipClass(name string) (ChipClass, error) {
	for i, n := range chipNames {
		if n == name {
			return ChipClass(i), nil
		}
	}
	//
	return 0, fmt.Errorf("unknown chip class %q", name)
}

// Quirk is a target-specific deviation from the base ISA model.
type Quirk uint32

const (
	// NoBlendPacks means blend formats lack dedicated pack opcodes.
	NoBlendPacks Quirk = 1 << iota
	// NoTypedBlendLoads means blend formats cannot be loaded typed.
	NoTypedBlendLoads
	// NoTypedBlendStores means blend formats cannot be stored typed.
	NoTypedBlendStores
	// MissingLoads means some tile formats cannot be read back at all.
	MissingLoads
	// NoRoundToInt means the ALU lacks the round-to-integer output mode.
	NoRoundToInt
	// NoSwap means the ISA lacks a register exchange instruction.
	NoSwap
	// SerializedPermlane means permlane discards a preceding v_nop.
	SerializedPermlane
	// MixedPrecision allows half and full registers to co-reside in one
	// file; otherwise cross-precision conflicts are enumerated pair-wise.
	MixedPrecision
)

// Has checks one or more quirk bits.
func (q Quirk) Has(bits Quirk) bool {
	return q&bits == bits
}

// Descriptor is the full compilation target description.
type Descriptor struct {
	// Target name, informational.
	Name string `json:"name"`
	// Hazard rule selector.
	ChipClass ChipClass `json:"chipClass"`
	// Quirk bits.
	Quirks Quirk `json:"quirks"`
	// Register file sizes.
	NumSgprs uint32 `json:"numSgprs"`
	NumVgprs uint32 `json:"numVgprs"`
	// Threads per wave, 32 or 64.
	WaveSize uint32 `json:"waveSize"`
	// Whether 64-bit atomics are native.
	HasInt64Atomics bool `json:"hasInt64Atomics"`
	// Maximum ordered distance representable by an annotation.
	MaxRegDist uint8 `json:"maxRegDist"`
	// Number of SBID tokens.
	NumSbids uint8 `json:"numSbids"`
	// Spill iterations permitted before giving up.
	SpillBudget uint32 `json:"spillBudget"`
}

// Default returns the descriptor for the newest supported Fjord part.
func Default() Descriptor {
	return Descriptor{
		Name:            "fjord-fj1",
		ChipClass:       FJ1,
		Quirks:          NoBlendPacks | NoRoundToInt,
		NumSgprs:        106,
		NumVgprs:        256,
		WaveSize:        32,
		HasInt64Atomics: true,
		MaxRegDist:      7,
		NumSbids:        16,
		SpillBudget:     16,
	}
}

// FromYAML parses a descriptor from a YAML document, filling unset limits
// from the defaults.
func FromYAML(data []byte) (Descriptor, error) {
	desc := Default()
	//
	if err := yaml.UnmarshalStrict(data, &desc); err != nil {
		return desc, err
	}
	//
	if desc.WaveSize != 32 && desc.WaveSize != 64 {
		return desc, fmt.Errorf("wave size must be 32 or 64, got %d", desc.WaveSize)
	}
	//
	if desc.MaxRegDist == 0 || desc.MaxRegDist > 15 {
		return desc, fmt.Errorf("max ordered distance must be in 1..15, got %d", desc.MaxRegDist)
	}
	//
	return desc, nil
}

// ToYAML renders a descriptor back to YAML.
func (p *Descriptor) ToYAML() ([]byte, error) {
	return yaml.Marshal(p)
}
