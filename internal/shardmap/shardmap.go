// Copyright 2026 The rqbit-fuse Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package shardmap implements a generic sharded concurrent map. It backs
// the inode table, the file handle table and the torrent status cache. The
// stream registry in internal/stream does not use it: that registry is a
// plain map behind a single mutex.
//
// Keys are hashed with xxhash to choose a shard; operations within a shard
// take that shard's own RWMutex, so writers to different shards never
// contend and readers never block writers working on a different shard.
package shardmap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 32

// Map is a concurrent map from K to V, sharded for low contention. The zero
// value is not usable; construct one with New.
type Map[K comparable, V any] struct {
	shards []*shard[K, V]
	mask   uint64
	keyFn  func(K) []byte
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New constructs a Map with the default shard count (32), hashing keys via
// keyFn (typically a cheap byte-serialization of K, e.g. strconv.AppendUint
// for integer inode/handle ids or []byte(s) for path strings).
func New[K comparable, V any](keyFn func(K) []byte) *Map[K, V] {
	return NewWithShards[K, V](defaultShardCount, keyFn)
}

// NewWithShards constructs a Map with an explicit shard count, which must be
// a power of two.
func NewWithShards[K comparable, V any](shardCount int, keyFn func(K) []byte) *Map[K, V] {
	if shardCount <= 0 || shardCount&(shardCount-1) != 0 {
		panic("shardmap: shardCount must be a positive power of two")
	}
	shards := make([]*shard[K, V], shardCount)
	for i := range shards {
		shards[i] = &shard[K, V]{m: make(map[K]V)}
	}
	return &Map[K, V]{shards: shards, mask: uint64(shardCount - 1), keyFn: keyFn}
}

func (m *Map[K, V]) shardFor(k K) *shard[K, V] {
	h := xxhash.Sum64(m.keyFn(k))
	return m.shards[h&m.mask]
}

// Store inserts or overwrites the value for k.
func (m *Map[K, V]) Store(k K, v V) {
	s := m.shardFor(k)
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

// Load returns the value for k, if present.
func (m *Map[K, V]) Load(k K) (V, bool) {
	s := m.shardFor(k)
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	return v, ok
}

// Contains reports whether k is present.
func (m *Map[K, V]) Contains(k K) bool {
	_, ok := m.Load(k)
	return ok
}

// Delete removes k, if present.
func (m *Map[K, V]) Delete(k K) {
	s := m.shardFor(k)
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// LoadAndDelete atomically removes and returns the value for k.
func (m *Map[K, V]) LoadAndDelete(k K) (V, bool) {
	s := m.shardFor(k)
	s.mu.Lock()
	v, ok := s.m[k]
	if ok {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return v, ok
}

// Update atomically loads the current value for k (the zero value if
// absent), applies fn, and stores the result. fn's second return value
// controls whether to store (true) or delete (false) the key.
func (m *Map[K, V]) Update(k K, fn func(V, bool) (V, bool)) {
	s := m.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[k]
	next, keep := fn(cur, ok)
	if keep {
		s.m[k] = next
	} else {
		delete(s.m, k)
	}
}

// Len returns the total number of entries across all shards. It takes each
// shard's read lock in turn rather than a single global lock, so the result
// may be stale by the time it is returned under concurrent writers.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}

// Range calls fn for every entry. Iteration order is unspecified and fn
// must not call back into the Map. Stops early if fn returns false.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for k, v := range s.m {
			if !fn(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
