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

// Package inode owns rqbit-fuse's namespace: the concurrent, atomic mapping
// from inode numbers, canonical paths and torrent ids to directory, file
// and symlink entries. The tree's parent/child edges are indices into a
// single flat table rather than owning references, so removal can proceed
// children-first without ever constructing a reference cycle.
package inode

import "fmt"

// ID is an inode number. It is unique within a mount's lifetime and never
// reused.
type ID uint64

// RootID is the inode number of the filesystem root, whose own parent is
// itself.
const RootID ID = 1

// Kind distinguishes the three closed variants an Entry can be.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
	KindSymlink
)

// Entry is the tagged union described in §3 of the spec: every variant
// carries its inode number, its parent inode, and its fully-resolved
// canonical path (stored, not reconstructed at read time).
type Entry struct {
	Ino           ID
	Name          string
	Parent        ID
	CanonicalPath string
	Kind          Kind

	// Directory-only.
	Children map[ID]struct{}

	// File-only.
	TorrentID string
	FileIndex int
	Size      uint64

	// Symlink-only.
	Target string
}

// NewDirectory builds a Directory entry. Children starts empty; the caller
// populates it via the manager as children are allocated.
func NewDirectory(name string) *Entry {
	return &Entry{Name: name, Kind: KindDirectory, Children: make(map[ID]struct{})}
}

// NewFile builds a File entry backed by one (torrent_id, file_index) pair.
func NewFile(name, torrentID string, fileIndex int, size uint64) *Entry {
	return &Entry{Name: name, Kind: KindFile, TorrentID: torrentID, FileIndex: fileIndex, Size: size}
}

// NewSymlink builds a Symlink entry pointing at target.
func NewSymlink(name, target string) *Entry {
	return &Entry{Name: name, Kind: KindSymlink, Target: target}
}

func (e *Entry) String() string {
	return fmt.Sprintf("inode(%d, %s, kind=%v, path=%q)", e.Ino, e.Name, e.Kind, e.CanonicalPath)
}

// IsDir reports whether the entry is a Directory.
func (e *Entry) IsDir() bool { return e.Kind == KindDirectory }
