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

package inode_test

import (
	"testing"

	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// InodeManagerSuite exercises the quantified invariants from §8 of the
// spec against a fresh Manager per test.
type InodeManagerSuite struct {
	suite.Suite
	m *inode.Manager
}

func (s *InodeManagerSuite) SetupTest() {
	s.m = inode.NewManager(0)
}

func TestInodeManagerSuite(t *testing.T) {
	suite.Run(t, new(InodeManagerSuite))
}

func (s *InodeManagerSuite) TestRootIsPreseeded() {
	root, ok := s.m.Get(inode.RootID)
	require.True(s.T(), ok)
	s.Equal("/", root.CanonicalPath)
	s.Equal(inode.RootID, root.Parent)
	s.True(root.IsDir())
}

func (s *InodeManagerSuite) TestAllocateAssignsDistinctInodes() {
	seen := map[inode.ID]bool{}
	for i := 0; i < 50; i++ {
		ino, err := s.m.Allocate(inode.RootID, inode.NewFile(nameFor(i), "T", i, 1000), "")
		require.NoError(s.T(), err)
		s.False(seen[ino], "inode %d allocated twice", ino)
		seen[ino] = true
	}
}

func nameFor(i int) string {
	return "f" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}

func (s *InodeManagerSuite) TestTorrentDirectoryRegistersInTorrentIndex() {
	dirIno, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "torrent-1")
	require.NoError(s.T(), err)

	found, ok := s.m.LookupTorrent("torrent-1")
	require.True(s.T(), ok)
	s.Equal(dirIno, found)

	entry, _ := s.m.Get(found)
	s.True(entry.IsDir())
}

func (s *InodeManagerSuite) TestFileNeverRegistersInTorrentIndex() {
	_, err := s.m.Allocate(inode.RootID, inode.NewFile("f.bin", "torrent-1", 0, 1000), "torrent-1")
	require.NoError(s.T(), err)

	_, ok := s.m.LookupTorrent("torrent-1")
	s.False(ok, "a file entry must never be reachable via the torrent index")
}

func (s *InodeManagerSuite) TestLookupByPathMatchesCanonicalPath() {
	dirIno, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "torrent-1")
	require.NoError(s.T(), err)
	fileIno, err := s.m.Allocate(dirIno, inode.NewFile("f.bin", "torrent-1", 0, 1000), "")
	require.NoError(s.T(), err)

	entry, ok := s.m.Get(fileIno)
	require.True(s.T(), ok)
	s.Equal("/T/f.bin", entry.CanonicalPath)

	found, ok := s.m.LookupByPath("/T/f.bin")
	require.True(s.T(), ok)
	s.Equal(fileIno, found)
}

func (s *InodeManagerSuite) TestChildEntryAppearsInParentChildren() {
	dirIno, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "torrent-1")
	require.NoError(s.T(), err)
	fileIno, err := s.m.Allocate(dirIno, inode.NewFile("f.bin", "torrent-1", 0, 1000), "")
	require.NoError(s.T(), err)

	parent, _ := s.m.Get(dirIno)
	_, ok := parent.Children[fileIno]
	s.True(ok)
}

func (s *InodeManagerSuite) TestRemovingOneTorrentLeavesAnotherIntact() {
	dir1, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T1"), "t1")
	require.NoError(s.T(), err)
	file1, err := s.m.Allocate(dir1, inode.NewFile("a.bin", "t1", 0, 10), "")
	require.NoError(s.T(), err)

	dir2, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T2"), "t2")
	require.NoError(s.T(), err)
	file2, err := s.m.Allocate(dir2, inode.NewFile("b.bin", "t2", 0, 20), "")
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.m.Remove(dir1))

	s.False(s.m.Contains(dir1))
	s.False(s.m.Contains(file1))
	s.True(s.m.Contains(dir2))
	s.True(s.m.Contains(file2))

	entry2, ok := s.m.Get(dir2)
	require.True(s.T(), ok)
	s.Equal("T2", entry2.Name)
}

func (s *InodeManagerSuite) TestRootCannotBeRemoved() {
	err := s.m.Remove(inode.RootID)
	s.Error(err)
	s.True(s.m.Contains(inode.RootID))
}

func (s *InodeManagerSuite) TestAllocateThenRemoveLeavesLenUnchanged() {
	before := s.m.Len()
	ino, err := s.m.Allocate(inode.RootID, inode.NewFile("f.bin", "t", 0, 10), "")
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.m.Remove(ino))
	s.Equal(before, s.m.Len())
}

func (s *InodeManagerSuite) TestClearTorrentsRemovesAllTorrents() {
	for i := 0; i < 5; i++ {
		torrentID := nameFor(i)
		dirIno, err := s.m.Allocate(inode.RootID, inode.NewDirectory(torrentID), torrentID)
		require.NoError(s.T(), err)
		_, err = s.m.Allocate(dirIno, inode.NewFile("f.bin", torrentID, 0, 10), "")
		require.NoError(s.T(), err)
	}

	require.NoError(s.T(), s.m.ClearTorrents())
	s.Equal(1, s.m.Len(), "only root should remain")
}

func (s *InodeManagerSuite) TestCheckInvariantsOnHealthyTree() {
	dirIno, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "t")
	require.NoError(s.T(), err)
	_, err = s.m.Allocate(dirIno, inode.NewFile("f.bin", "t", 0, 10), "")
	require.NoError(s.T(), err)

	s.NoError(s.m.CheckInvariants())
}

func (s *InodeManagerSuite) TestDuplicatePathIsRejected() {
	_, err := s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "t")
	require.NoError(s.T(), err)
	_, err = s.m.Allocate(inode.RootID, inode.NewDirectory("T"), "t2")
	s.Error(err)
}

func TestNormalizeIdempotentAndCorrect(t *testing.T) {
	cases := map[string]string{
		"/":        "/",
		"/a//b":    "/a/b",
		"/a/../b":  "/b",
		"/..":      "/",
		"":         "/",
		"a/b":      "/a/b",
		"/a/./b":   "/a/b",
		"/a/b/../": "/a",
	}
	for in, want := range cases {
		got := inode.Normalize(in)
		assert.Equal(t, want, got, "Normalize(%q)", in)
		assert.Equal(t, got, inode.Normalize(got), "Normalize not idempotent for %q", in)
	}
}

// Scenario A from §8: list and lookup.
func TestScenarioAListAndLookup(t *testing.T) {
	m := inode.NewManager(0)

	torrentDir, err := m.Allocate(inode.RootID, inode.NewDirectory("T"), "1")
	require.NoError(t, err)
	_, err = m.Allocate(torrentDir, inode.NewFile("f.bin", "1", 0, 1000), "")
	require.NoError(t, err)

	children, err := m.Children(inode.RootID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "T", children[0].Entry.Name)

	fileChildren, err := m.Children(torrentDir)
	require.NoError(t, err)
	require.Len(t, fileChildren, 1)
	assert.Equal(t, "f.bin", fileChildren[0].Entry.Name)
	assert.Equal(t, uint64(1000), fileChildren[0].Entry.Size)
}
