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

// Package cache is the content-addressed compiled shader store.  Entries
// are keyed by the SHA-1 of the source IR blob and the build id, held in a
// bounded in-memory LRU and mirrored to disk through atomic temp-file
// renames.  The disk layer gives read-your-writes on one machine and
// nothing across machines.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Key derives the cache key for an IR blob compiled by a given build.
func Key(irBlob []byte, buildID string) string {
	h := sha1.New()
	h.Write(irBlob)
	h.Write([]byte(buildID))
	//
	return hex.EncodeToString(h.Sum(nil))
}

// Cache fronts the on-disk store with a bounded in-memory LRU.  Safe for
// concurrent use.
type Cache struct {
	dir string
	//
	mu  sync.Mutex
	lru *lru.Cache
}

// New opens (creating if needed) a cache rooted at dir, keeping up to
// entries results in memory.  An empty dir disables the disk layer.
func New(dir string, entries int) (*Cache, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "opening shader cache")
		}
	}
	//
	return &Cache{dir: dir, lru: lru.New(entries)}, nil
}

// Get looks a key up, memory first, then disk.  Disk hits are promoted
// into memory.
func (p *Cache) Get(key string) ([]byte, bool) {
	p.mu.Lock()
	//
	if v, ok := p.lru.Get(key); ok {
		p.mu.Unlock()
		return v.([]byte), true
	}
	//
	p.mu.Unlock()
	//
	if p.dir == "" {
		return nil, false
	}
	//
	data, err := os.ReadFile(p.path(key))
	if err != nil {
		return nil, false
	}
	//
	p.mu.Lock()
	p.lru.Add(key, data)
	p.mu.Unlock()
	//
	return data, true
}

// Put stores a compiled result under its key.  The disk write goes through
// a locked temp file renamed into place, so concurrent writers of the same
// key leave one intact entry.
func (p *Cache) Put(key string, data []byte) error {
	p.mu.Lock()
	p.lru.Add(key, data)
	p.mu.Unlock()
	//
	if p.dir == "" {
		return nil
	}
	//
	tmp, err := os.CreateTemp(p.dir, key+".tmp*")
	if err != nil {
		return errors.Wrap(err, "writing shader cache entry")
	}
	//
	defer os.Remove(tmp.Name())
	//
	if err := unix.Flock(int(tmp.Fd()), unix.LOCK_EX); err != nil {
		tmp.Close()
		return errors.Wrap(err, "locking shader cache entry")
	}
	//
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing shader cache entry")
	}
	//
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing shader cache entry")
	}
	//
	return errors.Wrap(os.Rename(tmp.Name(), p.path(key)), "committing shader cache entry")
}

func (p *Cache) path(key string) string {
	return filepath.Join(p.dir, key+".fjc")
}
