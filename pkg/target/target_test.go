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
package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Target_01(t *testing.T) {
	// Default descriptor round trips through YAML.
	desc := Default()
	data, err := desc.ToYAML()
	require.NoError(t, err)
	//
	back, err := FromYAML(data)
	require.NoError(t, err)
	//
	assert.Equal(t, desc, back)
}

func Test_Target_02(t *testing.T) {
	// A partial document inherits the remaining limits from the default.
	desc, err := FromYAML([]byte("chipClass: 4\nnumVgprs: 128\n"))
	require.NoError(t, err)
	//
	assert.Equal(t, GFX10, desc.ChipClass)
	assert.Equal(t, uint32(128), desc.NumVgprs)
	assert.Equal(t, Default().NumSgprs, desc.NumSgprs)
	assert.Equal(t, Default().NumSbids, desc.NumSbids)
}

func Test_Target_03(t *testing.T) {
	// Unknown fields are rejected rather than ignored.
	_, err := FromYAML([]byte("chipClas: 4\n"))
	//
	assert.Error(t, err)
}

func Test_Target_04(t *testing.T) {
	// Wave size is constrained to the two hardware widths.
	_, err := FromYAML([]byte("waveSize: 48\n"))
	//
	assert.Error(t, err)
}

func Test_Target_05(t *testing.T) {
	// The annotation field only holds distances 1..15.
	_, err := FromYAML([]byte("maxRegDist: 16\n"))
	assert.Error(t, err)
	//
	_, err = FromYAML([]byte("maxRegDist: 0\n"))
	assert.Error(t, err)
}

func Test_Target_06(t *testing.T) {
	for c := GFX6; c < numChipClasses; c++ {
		back, err := ParseChipClass(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
	//
	_, err := ParseChipClass("gfx11")
	assert.Error(t, err)
}

func Test_Target_07(t *testing.T) {
	q := NoBlendPacks | NoRoundToInt
	//
	assert.True(t, q.Has(NoBlendPacks))
	assert.True(t, q.Has(NoBlendPacks|NoRoundToInt))
	assert.False(t, q.Has(NoSwap))
	assert.False(t, q.Has(NoBlendPacks|NoSwap))
}
