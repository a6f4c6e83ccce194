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

package discovery

import (
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/shardmap"
)

// Status is the per-torrent state machine of §4.8: {Live, Paused, Error,
// Finished}, refreshed by discovery and by per-read status fetches.
type Status struct {
	State       rqbitapi.State
	Finished    bool
	PieceLength uint32
}

// GatesReads reports whether a ranged read against this torrent must pass
// the piece-availability gate: only a Paused, not-yet-finished torrent is
// gated, per §4.8.
func (s Status) GatesReads() bool {
	return s.State == rqbitapi.StatePaused && !s.Finished
}

func statusKey(torrentID string) []byte { return []byte(torrentID) }

// StatusCache is the sharded concurrent map of per-torrent Status values.
type StatusCache struct {
	m *shardmap.Map[string, Status]
}

// NewStatusCache builds an empty StatusCache.
func NewStatusCache() *StatusCache {
	return &StatusCache{m: shardmap.New[string, Status](statusKey)}
}

// Get returns the cached status for torrentID, if known.
func (c *StatusCache) Get(torrentID string) (Status, bool) {
	return c.m.Load(torrentID)
}

// Set stores or overwrites the status for torrentID.
func (c *StatusCache) Set(torrentID string, status Status) {
	c.m.Store(torrentID, status)
}

// Delete drops torrentID's status entry.
func (c *StatusCache) Delete(torrentID string) {
	c.m.Delete(torrentID)
}

// Len reports the number of tracked torrents.
func (c *StatusCache) Len() int {
	return c.m.Len()
}
