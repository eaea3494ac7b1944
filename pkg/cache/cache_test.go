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
package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Cache_01(t *testing.T) {
	// Keys are stable and sensitive to both inputs.
	k1 := Key([]byte("shader"), "build-1")
	k2 := Key([]byte("shader"), "build-1")
	//
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 40)
	assert.NotEqual(t, k1, Key([]byte("shader"), "build-2"))
	assert.NotEqual(t, k1, Key([]byte("other"), "build-1"))
}

func Test_Cache_02(t *testing.T) {
	// Put then Get round trips through memory.
	c, err := New(t.TempDir(), 4)
	require.NoError(t, err)
	//
	key := Key([]byte("ir"), "b")
	require.NoError(t, c.Put(key, []byte("binary")))
	//
	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("binary"), data)
}

func Test_Cache_03(t *testing.T) {
	// Entries survive on disk past the in-memory horizon.
	dir := t.TempDir()
	c, err := New(dir, 1)
	require.NoError(t, err)
	//
	k1 := Key([]byte("a"), "b")
	k2 := Key([]byte("c"), "b")
	require.NoError(t, c.Put(k1, []byte("one")))
	require.NoError(t, c.Put(k2, []byte("two")))
	// k1 was evicted from memory but comes back from disk.
	data, ok := c.Get(k1)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), data)
}

func Test_Cache_04(t *testing.T) {
	// A second cache over the same directory sees committed entries.
	dir := t.TempDir()
	c1, err := New(dir, 4)
	require.NoError(t, err)
	//
	key := Key([]byte("ir"), "b")
	require.NoError(t, c1.Put(key, []byte("binary")))
	//
	c2, err := New(dir, 4)
	require.NoError(t, err)
	//
	data, ok := c2.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("binary"), data)
	// Entries land under their final names only.
	names, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, key+".fjc", filepath.Base(names[0]))
}

func Test_Cache_05(t *testing.T) {
	// An empty directory disables the disk layer.
	c, err := New("", 1)
	require.NoError(t, err)
	//
	k1 := Key([]byte("a"), "b")
	k2 := Key([]byte("c"), "b")
	require.NoError(t, c.Put(k1, []byte("one")))
	require.NoError(t, c.Put(k2, []byte("two")))
	//
	_, ok := c.Get(k1)
	assert.False(t, ok)
}

func Test_Cache_06(t *testing.T) {
	// Missing keys miss.
	c, err := New(t.TempDir(), 4)
	require.NoError(t, err)
	//
	_, ok := c.Get(Key([]byte("never"), "stored"))
	assert.False(t, ok)
}

func Test_Cache_07(t *testing.T) {
	// Corrupt or foreign files in the directory do not break lookups.
	dir := t.TempDir()
	c, err := New(dir, 4)
	require.NoError(t, err)
	//
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("x"), 0o644))
	//
	key := Key([]byte("ir"), "b")
	require.NoError(t, c.Put(key, []byte("binary")))
	//
	data, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("binary"), data)
}
