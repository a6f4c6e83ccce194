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

package inode

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
	"github.com/rqbit-fuse/rqbit-fuse/internal/shardmap"
)

func idKey(id ID) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func stringKey(s string) []byte { return []byte(s) }

// Manager owns the primary inode table and its two secondary indices. It is
// the sole authority on the namespace: every mutation of cross-torrent state
// goes through allocate/remove here, per the spec's "single flat table,
// index-based parent/child" design.
//
// MaxEntries, when non-zero, bounds the number of live entries; Allocate
// beyond that limit fails with a TooManyOpenFiles-shaped error (the taxonomy
// has no dedicated "table full" kind, so it reuses the closest fit: a
// resource-exhaustion error the adapter maps to EMFILE).
type Manager struct {
	nextIno atomic.Uint64

	primary     *shardmap.Map[ID, *Entry]
	pathIndex   *shardmap.Map[string, ID]
	torrentIdx  *shardmap.Map[string, ID]
	maxEntries  int
}

// NewManager constructs a Manager seeded with the root directory at
// RootID, whose parent is itself and whose canonical path is "/".
// maxEntries of 0 means unlimited.
func NewManager(maxEntries int) *Manager {
	m := &Manager{
		primary:    shardmap.New[ID, *Entry](idKey),
		pathIndex:  shardmap.New[string, ID](stringKey),
		torrentIdx: shardmap.New[string, ID](stringKey),
		maxEntries: maxEntries,
	}
	m.nextIno.Store(uint64(RootID) + 1)

	root := NewDirectory("/")
	root.Ino = RootID
	root.Parent = RootID
	root.CanonicalPath = "/"
	m.primary.Store(RootID, root)
	m.pathIndex.Store("/", RootID)
	return m
}

// Allocate assigns the next inode to entry, attaches it as a child of
// parent (stamping entry's canonical path from parent's path + entry's
// name), and inserts it into the primary table and the path index. If
// entry is a torrent's top-level directory, torrentID registers it in the
// torrent index too — never for files, which is the role rule §4.1 spells
// out.
func (m *Manager) Allocate(parent ID, entry *Entry, torrentID string) (ID, error) {
	if m.maxEntries > 0 && m.primary.Len() >= m.maxEntries {
		return 0, apperr.New(apperr.TooManyOpenFiles, "inode table at capacity (%d)", m.maxEntries)
	}

	parentEntry, ok := m.primary.Load(parent)
	if !ok {
		return 0, apperr.New(apperr.NotFound, "parent inode %d does not exist", parent)
	}
	if !parentEntry.IsDir() {
		return 0, apperr.New(apperr.NotDirectory, "parent inode %d is not a directory", parent)
	}

	canonicalPath := Join(parentEntry.CanonicalPath, entry.Name)
	if _, exists := m.pathIndex.Load(canonicalPath); exists {
		return 0, apperr.New(apperr.ValidationError, "duplicate path %q", canonicalPath)
	}

	ino := ID(m.nextIno.Add(1) - 1)
	if m.primary.Contains(ino) {
		// The monotonic counter is the only inode minter; a collision here
		// means a caller round-tripped an ID that was never ours.
		return 0, apperr.New(apperr.ValidationError, "inode counter collision at %d", ino)
	}

	entry.Ino = ino
	entry.Parent = parent
	entry.CanonicalPath = canonicalPath

	// The primary insert is the commit point; everything after it is
	// repairable bookkeeping, per §4.1.
	m.primary.Store(ino, entry)

	m.pathIndex.Store(canonicalPath, ino)
	if entry.IsDir() && torrentID != "" {
		m.torrentIdx.Store(torrentID, ino)
	}

	m.primary.Update(parent, func(p *Entry, ok bool) (*Entry, bool) {
		if ok {
			p.Children[ino] = struct{}{}
		}
		return p, ok
	})

	return ino, nil
}

// Get returns the entry for ino, if present.
func (m *Manager) Get(ino ID) (*Entry, bool) {
	return m.primary.Load(ino)
}

// Contains reports whether ino is present.
func (m *Manager) Contains(ino ID) bool {
	return m.primary.Contains(ino)
}

// LookupByPath normalizes path and resolves it to an inode, consulting the
// path index first and falling back to component-wise descent from root on
// a miss (e.g. a path whose exact normalized string was never indexed
// because intermediate directories came from a different normalization).
func (m *Manager) LookupByPath(path string) (ID, bool) {
	normalized := Normalize(path)
	if ino, ok := m.pathIndex.Load(normalized); ok {
		return ino, true
	}

	cur := RootID
	for _, component := range SplitComponents(normalized) {
		entry, ok := m.primary.Load(cur)
		if !ok || !entry.IsDir() {
			return 0, false
		}
		found := false
		for childIno := range entry.Children {
			child, ok := m.primary.Load(childIno)
			if ok && child.Name == component {
				cur = childIno
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return cur, true
}

// LookupTorrent returns the directory inode for torrentID, if known.
func (m *Manager) LookupTorrent(torrentID string) (ID, bool) {
	return m.torrentIdx.Load(torrentID)
}

// Children returns the (inode, entry) pairs directly beneath ino. It
// returns an error if ino is absent or not a Directory.
func (m *Manager) Children(ino ID) ([]struct {
	Ino   ID
	Entry *Entry
}, error) {
	entry, ok := m.primary.Load(ino)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "inode %d does not exist", ino)
	}
	if !entry.IsDir() {
		return nil, apperr.New(apperr.NotDirectory, "inode %d is not a directory", ino)
	}

	out := make([]struct {
		Ino   ID
		Entry *Entry
	}, 0, len(entry.Children))
	for childIno := range entry.Children {
		child, ok := m.primary.Load(childIno)
		if !ok {
			continue
		}
		out = append(out, struct {
			Ino   ID
			Entry *Entry
		}{childIno, child})
	}
	return out, nil
}

// Remove deletes ino and, recursively, all of its descendants. Root can
// never be removed. Index removals always use each entry's own stored
// canonical path, never a freshly reconstructed one, so a removal is
// correct even if an ancestor's path already changed underfoot.
func (m *Manager) Remove(ino ID) error {
	if ino == RootID {
		return apperr.New(apperr.PermissionDenied, "cannot remove root inode")
	}

	entry, ok := m.primary.Load(ino)
	if !ok {
		return apperr.New(apperr.NotFound, "inode %d does not exist", ino)
	}

	if entry.IsDir() {
		children := make([]ID, 0, len(entry.Children))
		for childIno := range entry.Children {
			children = append(children, childIno)
		}
		for _, childIno := range children {
			if err := m.Remove(childIno); err != nil {
				return err
			}
		}
	}

	m.primary.Update(entry.Parent, func(p *Entry, ok bool) (*Entry, bool) {
		if ok {
			delete(p.Children, ino)
		}
		return p, ok
	})

	m.pathIndex.Delete(entry.CanonicalPath)

	if entry.IsDir() {
		var ownerID string
		found := false
		m.torrentIdx.Range(func(torrentID string, mappedIno ID) bool {
			if mappedIno == ino {
				ownerID, found = torrentID, true
				return false
			}
			return true
		})
		if found {
			m.torrentIdx.Delete(ownerID)
		}
	}

	m.primary.Delete(ino)
	return nil
}

// ClearTorrents removes every torrent currently registered in the torrent
// index. It snapshots the ids first so that Remove's own index mutation
// during iteration cannot invalidate the walk — the two-phase
// snapshot-then-remove design §4.1 calls for.
func (m *Manager) ClearTorrents() error {
	var torrentIDs []string
	m.torrentIdx.Range(func(torrentID string, _ ID) bool {
		torrentIDs = append(torrentIDs, torrentID)
		return true
	})

	for _, torrentID := range torrentIDs {
		ino, ok := m.torrentIdx.Load(torrentID)
		if !ok {
			continue
		}
		if err := m.Remove(ino); err != nil {
			return fmt.Errorf("removing torrent %s (inode %d): %w", torrentID, ino, err)
		}
	}
	return nil
}

// Len returns the number of live entries, including the root.
func (m *Manager) Len() int {
	return m.primary.Len()
}

// Range calls fn for every live entry in the table, in no particular
// order, stopping early if fn returns false. Used by StatFS to total
// known file sizes and the debug invariant checker's callers.
func (m *Manager) Range(fn func(ino ID, entry *Entry) bool) {
	m.primary.Range(fn)
}

// CheckInvariants walks the entire table and verifies invariants 1-4 and 6
// from §3. For invariant 5 it checks only that the torrent index entry of a
// file's torrent is a directory, not that this directory is an ancestor of
// the file. It is intended for tests and debug builds only — it is O(n) and
// copies the table under every shard's lock in turn, exactly as Len reads it.
func (m *Manager) CheckInvariants() error {
	seenIno := make(map[ID]bool)
	var violation error

	snapshot := make(map[ID]*Entry)
	m.primary.Range(func(ino ID, entry *Entry) bool {
		snapshot[ino] = entry
		return true
	})

	check := func(ino ID, entry *Entry) bool {
		if violation != nil {
			return false
		}
		if seenIno[ino] {
			violation = fmt.Errorf("inode %d observed twice", ino)
			return false
		}
		seenIno[ino] = true

		if ino != RootID {
			parent, ok := m.primary.Load(entry.Parent)
			if !ok || !parent.IsDir() {
				violation = fmt.Errorf("inode %d: parent %d missing or not a directory", ino, entry.Parent)
				return false
			}
			if _, isChild := parent.Children[ino]; !isChild {
				violation = fmt.Errorf("inode %d: not present in parent %d's children set", ino, entry.Parent)
				return false
			}
			if want := Join(parent.CanonicalPath, entry.Name); entry.CanonicalPath != want {
				violation = fmt.Errorf("inode %d: canonical path %q, want %q", ino, entry.CanonicalPath, want)
				return false
			}
		}

		if entry.IsDir() {
			for childIno := range entry.Children {
				child, ok := m.primary.Load(childIno)
				if !ok || child.Parent != ino {
					violation = fmt.Errorf("inode %d: child %d has inconsistent parent", ino, childIno)
					return false
				}
			}
		}

		mappedIno, ok := m.pathIndex.Load(entry.CanonicalPath)
		if !ok || mappedIno != ino {
			violation = fmt.Errorf("inode %d: path index mismatch for %q", ino, entry.CanonicalPath)
			return false
		}

		if entry.Kind == KindFile && entry.TorrentID != "" {
			torrentDirIno, ok := m.torrentIdx.Load(entry.TorrentID)
			if ok {
				if dir, ok := m.primary.Load(torrentDirIno); !ok || !dir.IsDir() {
					violation = fmt.Errorf("inode %d: torrent index for %s does not point at a directory", ino, entry.TorrentID)
					return false
				}
			}
		}

		return true
	}
	for ino, entry := range snapshot {
		if !check(ino, entry) {
			break
		}
	}

	return violation
}
