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

// Package fs wires the inode table, handle table, bridge worker and
// discovery loop into a jacobsa/fuse fuseutil.FileSystem: the read-only
// adapter the kernel actually talks to. Every upcall is a thin translation
// from fuseops types to the internal packages' own vocabulary. Errors from
// the internal packages reach the kernel through apperr.Of(err).Errno();
// checks made in the adapter itself return fuse errnos such as fuse.ENOENT
// and fuse.EISDIR directly.
package fs

import (
	"context"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/bridge"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/handle"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
)

// FileSystem implements fuseutil.FileSystem over a running rqbit client. It
// embeds NotImplementedFileSystem so every mutating or POSIX-extra op
// (Mkdir, Create, Write, Xattr, Rename, ...) answers ENOSYS by default,
// matching the read-only contract of §1.
type FileSystem struct {
	fuseutil.NotImplementedFileSystem

	inodes  *inode.Manager
	handles *handle.Table
	bridge  *bridge.Worker
	loop    *discovery.Loop
	status  *discovery.StatusCache

	readTimeout time.Duration
	pieceGate   bool

	uid, gid  uint32
	mountedAt time.Time

	log *logger.Logger
}

var _ fuseutil.FileSystem = &FileSystem{}

// newFileSystem builds a FileSystem. readTimeout bounds how long a
// ReadFile upcall waits on the bridge worker before giving up, per §4.5.
// pieceGate toggles whether paused, unfinished torrents are checked against
// the downloaded-pieces bitfield before a read is allowed through, per
// §4.8's "configurable on/off" requirement.
func newFileSystem(inodes *inode.Manager, handles *handle.Table, worker *bridge.Worker, loop *discovery.Loop, status *discovery.StatusCache, readTimeout time.Duration, pieceGate bool) *FileSystem {
	return &FileSystem{
		inodes:      inodes,
		handles:     handles,
		bridge:      worker,
		loop:        loop,
		status:      status,
		readTimeout: readTimeout,
		pieceGate:   pieceGate,
		uid:         uint32(os.Getuid()),
		gid:         uint32(os.Getgid()),
		mountedAt:   time.Now(),
		log:         logger.New("fs"),
	}
}

// Server wraps fs in a fuse.Server ready for fuse.Mount.
func (fs *FileSystem) Server() fuse.Server {
	return fuseutil.NewFileSystemServer(fs)
}

func errno(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Of(err).Errno()
}

// Init is a no-op: there is no negotiation rqbit-fuse needs beyond the
// kernel's own defaults.
func (fs *FileSystem) Init(ctx context.Context, op *fuseops.InitOp) error {
	return nil
}

// statFSBlockSize matches attrCacheTTL's "keep it simple" spirit: one
// value, used for every block-count figure StatFS reports.
const statFSBlockSize = 4096

// StatFS answers statfs(2)/statvfs(2). rqbit-fuse is read-only and has no
// real notion of free space, so it reports zero free/available blocks and a
// block count derived from the sum of every known file's size — a static,
// conservative answer rather than an ENOSYS a caller would have to special
// case.
func (fs *FileSystem) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	var totalSize uint64
	var inodeCount uint64
	fs.inodes.Range(func(ino inode.ID, entry *inode.Entry) bool {
		inodeCount++
		if entry.Kind == inode.KindFile {
			totalSize += entry.Size
		}
		return true
	})

	op.BlockSize = statFSBlockSize
	op.IoSize = statFSBlockSize
	op.Blocks = (totalSize + statFSBlockSize - 1) / statFSBlockSize
	op.BlocksFree = 0
	op.BlocksAvailable = 0
	op.Inodes = inodeCount
	op.InodesFree = 0
	return nil
}

// LookUpInode resolves (parent, name) to a child entry, per §4.1's
// component-wise descent.
func (fs *FileSystem) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	children, err := fs.inodes.Children(inode.ID(op.Parent))
	if err != nil {
		return errno(err)
	}

	for _, c := range children {
		if c.Entry.Name != op.Name {
			continue
		}
		op.Entry.Child = fuseops.InodeID(c.Ino)
		op.Entry.Attributes = fs.toAttributes(c.Entry)
		op.Entry.AttributesExpiration = time.Now().Add(attrCacheTTL)
		op.Entry.EntryExpiration = op.Entry.AttributesExpiration
		return nil
	}
	return fuse.ENOENT
}

// GetInodeAttributes answers stat(2)-family calls.
func (fs *FileSystem) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	entry, ok := fs.inodes.Get(inode.ID(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = fs.toAttributes(entry)
	op.AttributesExpiration = time.Now().Add(attrCacheTTL)
	return nil
}

// ReadSymlink answers readlink(2) from the entry's stored target. rqbit
// itself never produces symlinks in a torrent's file list today, but the
// upcall is wired for completeness and for any future torrent layout that
// does.
func (fs *FileSystem) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	entry, ok := fs.inodes.Get(inode.ID(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	if entry.Kind != inode.KindSymlink {
		return fuse.EINVAL
	}
	op.Target = entry.Target
	return nil
}

// ForgetInode is a no-op: the inode table's own lifetime is governed by the
// discovery loop tearing down departed torrents, not by the kernel's
// reference counting.
func (fs *FileSystem) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

// OpenDir allows opening any directory inode that exists; ReadDir does the
// real work.
func (fs *FileSystem) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	entry, ok := fs.inodes.Get(inode.ID(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	if !entry.IsDir() {
		return fuse.ENOTDIR
	}

	// Opening the root directory is the kernel's signal that a listing is
	// imminent; fold an out-of-band discovery cycle in here so `ls` on a
	// freshly mounted or freshly changed torrent set sees current state
	// without waiting out the poll interval, per §4.7's manual-trigger rule.
	if op.Inode == fuseops.RootInodeID && fs.loop != nil {
		fs.loop.TriggerNow(ctx)
	}

	handleID, err := fs.handles.Allocate(inode.ID(op.Inode), "", uint32(op.Flags))
	if err != nil {
		return errno(err)
	}
	op.Handle = fuseops.HandleID(handleID)
	return nil
}

// ReleaseDirHandle closes a directory handle minted by OpenDir.
func (fs *FileSystem) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.handles.Remove(handle.ID(op.Handle))
	return nil
}

// OpenFile allows opening any file inode that exists, tracking the
// (inode, torrent id) pair future ReadFile calls will reference.
func (fs *FileSystem) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	entry, ok := fs.inodes.Get(inode.ID(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	if entry.IsDir() {
		return fuse.EISDIR
	}

	handleID, err := fs.handles.Allocate(inode.ID(op.Inode), entry.TorrentID, uint32(op.Flags))
	if err != nil {
		return errno(err)
	}
	op.Handle = fuseops.HandleID(handleID)
	return nil
}

// ReadFile implements the read path of §4.4/§4.8: look up the handle's
// backing (torrent, file index), pass the piece-availability gate if the
// torrent is paused and unfinished, then read through the bridge worker.
func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	rec, ok := fs.handles.Get(handle.ID(op.Handle))
	if !ok {
		// A handle that vanished out from under a read means its torrent
		// was torn down by discovery mid-flight (§4.7/§4.8 Scenario F);
		// apperr.BadHandle is the taxonomy's EBADF.
		return errno(apperr.New(apperr.BadHandle, "handle %d is not open", op.Handle))
	}

	entry, ok := fs.inodes.Get(rec.Inode)
	if !ok {
		return fuse.ENOENT
	}
	if entry.IsDir() {
		return fuse.EISDIR
	}

	if op.Offset < 0 || uint64(op.Offset) >= entry.Size {
		op.BytesRead = 0
		return nil
	}

	size := len(op.Dst)
	if remaining := entry.Size - uint64(op.Offset); uint64(size) > remaining {
		size = int(remaining)
	}
	if size == 0 {
		return nil
	}

	if status, ok := fs.status.Get(entry.TorrentID); fs.pieceGate && ok && status.GatesReads() {
		if err := fs.bridge.CheckPiecesAvailable(ctx, entry.TorrentID, op.Offset, size, status.PieceLength, fs.readTimeout); err != nil {
			return errno(err)
		}
	}

	data, err := fs.bridge.ReadFile(ctx, entry.TorrentID, entry.FileIndex, op.Offset, size, fs.readTimeout)
	if err != nil {
		return errno(err)
	}

	op.BytesRead = copy(op.Dst, data)
	return nil
}

// ReleaseFileHandle closes a file handle minted by OpenFile.
func (fs *FileSystem) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.handles.Remove(handle.ID(op.Handle))
	return nil
}

// FlushFile is a no-op: there is nothing buffered on the write side of a
// read-only filesystem to flush.
func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

// GetXattr and ListXattr report no extended attributes, per §1's
// Non-goals.
func (fs *FileSystem) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	return fuse.ENOSYS
}

func (fs *FileSystem) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	return fuse.ENOSYS
}
