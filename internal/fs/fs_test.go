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

package fs

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/bridge"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/handle"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
)

// harness wires a FileSystem directly against an httptest stub server,
// skipping the actual kernel mount so upcalls can be driven in-process.
type harness struct {
	fs      *FileSystem
	inodes  *inode.Manager
	handles *handle.Table
	status  *discovery.StatusCache
	worker  *bridge.Worker
}

func newHarness(t *testing.T, mux *http.ServeMux, pieceGate bool) *harness {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := rqbitapi.NewClient(rqbitapi.Options{BaseURL: srv.URL, RequestTimeout: time.Second, RetryAttempts: 1})
	inodes := inode.NewManager(0)
	handles := handle.NewTable(0)
	streams := stream.NewFromClient(client)
	worker := bridge.New(client, streams, 0)
	status := discovery.NewStatusCache()

	go worker.Run()
	t.Cleanup(worker.Shutdown)

	fsys := newFileSystem(inodes, handles, worker, nil, status, time.Second, pieceGate)
	return &harness{fs: fsys, inodes: inodes, handles: handles, status: status, worker: worker}
}

func (h *harness) addTorrent(t *testing.T, name, torrentID string, fileName string, size uint64) (torrentIno, fileIno inode.ID) {
	t.Helper()
	torrentIno, err := h.inodes.Allocate(inode.RootID, inode.NewDirectory(name), torrentID)
	require.NoError(t, err)
	fileIno, err = h.inodes.Allocate(torrentIno, inode.NewFile(fileName, torrentID, 0, size), "")
	require.NoError(t, err)
	return torrentIno, fileIno
}

// Scenario A from §8: list and lookup.
func TestScenarioALookupAndGetattr(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), false)
	_, fileIno := h.addTorrent(t, "T", "1", "f.bin", 1000)

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "T"}
	require.NoError(t, h.fs.LookUpInode(context.Background(), lookup))

	attrOp := &fuseops.GetInodeAttributesOp{Inode: fuseops.InodeID(fileIno)}
	require.NoError(t, h.fs.GetInodeAttributes(context.Background(), attrOp))
	assert.Equal(t, uint64(1000), attrOp.Attributes.Size)
	assert.Equal(t, uint32(0o444), uint32(attrOp.Attributes.Mode.Perm()))
}

func TestReadDirListsChildrenSortedByName(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), false)
	torrentIno, err := h.inodes.Allocate(inode.RootID, inode.NewDirectory("T"), "1")
	require.NoError(t, err)
	_, err = h.inodes.Allocate(torrentIno, inode.NewFile("b.bin", "1", 1, 10), "")
	require.NoError(t, err)
	_, err = h.inodes.Allocate(torrentIno, inode.NewFile("a.bin", "1", 0, 10), "")
	require.NoError(t, err)

	op := &fuseops.ReadDirOp{Inode: fuseops.InodeID(torrentIno), Dst: make([]byte, 4096)}
	require.NoError(t, h.fs.ReadDir(context.Background(), op))
	assert.Greater(t, op.BytesRead, 0)
	aPos := bytes.Index(op.Dst[:op.BytesRead], []byte("a.bin"))
	bPos := bytes.Index(op.Dst[:op.BytesRead], []byte("b.bin"))
	require.GreaterOrEqual(t, aPos, 0)
	assert.Less(t, aPos, bPos)
}

// Scenario B from §8: a read of 200 bytes at offset 100 opens a stream with
// the open-ended Range: bytes=100- and returns 200 bytes.
func TestScenarioBRangedRead(t *testing.T) {
	var gotRange string
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/1/stream/0", func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 200))
	})

	h := newHarness(t, mux, false)
	_, fileIno := h.addTorrent(t, "T", "1", "f.bin", 1000)

	openOp := &fuseops.OpenFileOp{Inode: fuseops.InodeID(fileIno)}
	require.NoError(t, h.fs.OpenFile(context.Background(), openOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  fuseops.InodeID(fileIno),
		Handle: openOp.Handle,
		Offset: 100,
		Dst:    make([]byte, 200),
	}
	require.NoError(t, h.fs.ReadFile(context.Background(), readOp))
	assert.Equal(t, 200, readOp.BytesRead)
	assert.Equal(t, "bytes=100-", gotRange)
}

func TestReadPastEOFReturnsZeroBytes(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), false)
	_, fileIno := h.addTorrent(t, "T", "1", "f.bin", 100)

	openOp := &fuseops.OpenFileOp{Inode: fuseops.InodeID(fileIno)}
	require.NoError(t, h.fs.OpenFile(context.Background(), openOp))

	readOp := &fuseops.ReadFileOp{Inode: fuseops.InodeID(fileIno), Handle: openOp.Handle, Offset: 100, Dst: make([]byte, 10)}
	require.NoError(t, h.fs.ReadFile(context.Background(), readOp))
	assert.Equal(t, 0, readOp.BytesRead)
}

func TestReadSpanningEOFReturnsOnlyRemainingBytes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/1/stream/0", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		w.Write(make([]byte, 20))
	})

	h := newHarness(t, mux, false)
	_, fileIno := h.addTorrent(t, "T", "1", "f.bin", 100)

	openOp := &fuseops.OpenFileOp{Inode: fuseops.InodeID(fileIno)}
	require.NoError(t, h.fs.OpenFile(context.Background(), openOp))

	readOp := &fuseops.ReadFileOp{Inode: fuseops.InodeID(fileIno), Handle: openOp.Handle, Offset: 80, Dst: make([]byte, 100)}
	require.NoError(t, h.fs.ReadFile(context.Background(), readOp))
	assert.Equal(t, 20, readOp.BytesRead)
}

// Scenario E from §8: a paused, unfinished torrent with a missing piece at
// the requested offset fails fast with EIO, without ever issuing a ranged
// GET.
func TestScenarioEPausedTorrentMissingPieceFailsFast(t *testing.T) {
	streamHit := false
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents/1/haves", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Bitfield-Len", "1")
		w.Write([]byte{0x00}) // bit 0 missing
	})
	mux.HandleFunc("/torrents/1/stream/0", func(w http.ResponseWriter, r *http.Request) {
		streamHit = true
		w.WriteHeader(http.StatusOK)
	})

	h := newHarness(t, mux, true)
	_, fileIno := h.addTorrent(t, "T", "1", "f.bin", 1000)
	h.status.Set("1", discovery.Status{State: rqbitapi.StatePaused, Finished: false, PieceLength: 16384})

	openOp := &fuseops.OpenFileOp{Inode: fuseops.InodeID(fileIno)}
	require.NoError(t, h.fs.OpenFile(context.Background(), openOp))

	start := time.Now()
	readOp := &fuseops.ReadFileOp{Inode: fuseops.InodeID(fileIno), Handle: openOp.Handle, Offset: 0, Dst: make([]byte, 1)}
	err := h.fs.ReadFile(context.Background(), readOp)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, syscall.EIO, err, "piece gate must map to EIO")
	assert.Less(t, elapsed, 200*time.Millisecond)
	assert.False(t, streamHit, "no ranged GET must be issued when the piece gate rejects the read")
}

func TestReadWithStaleHandleReturnsEBADF(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), false)
	op := &fuseops.ReadFileOp{Inode: fuseops.InodeID(99), Handle: fuseops.HandleID(12345), Dst: make([]byte, 10)}
	err := h.fs.ReadFile(context.Background(), op)
	require.Error(t, err)
	assert.Equal(t, syscall.EBADF, err)
}

func TestOpenDirectoryFileReturnsEISDIR(t *testing.T) {
	h := newHarness(t, http.NewServeMux(), false)
	torrentIno, _ := h.addTorrent(t, "T", "1", "f.bin", 10)

	op := &fuseops.OpenFileOp{Inode: fuseops.InodeID(torrentIno)}
	err := h.fs.OpenFile(context.Background(), op)
	require.Error(t, err)
	assert.Equal(t, syscall.EISDIR, err)
}
