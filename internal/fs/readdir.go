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
	"context"
	"sort"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
)

// ReadDir serves a directory listing from the inode table's children set,
// per §4.1. Entries are sorted by name so that a listing is stable across
// repeated reads even though the underlying children set is unordered and
// the discovery loop may have added siblings between calls.
func (fs *FileSystem) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entry, ok := fs.inodes.Get(inode.ID(op.Inode))
	if !ok {
		return fuse.ENOENT
	}
	if !entry.IsDir() {
		return fuse.ENOTDIR
	}

	children, err := fs.inodes.Children(inode.ID(op.Inode))
	if err != nil {
		return errno(err)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Entry.Name < children[j].Entry.Name
	})

	if op.Offset > fuseops.DirOffset(len(children)) {
		return nil
	}
	children = children[op.Offset:]

	for i, c := range children {
		dirent := fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(c.Ino),
			Name:   c.Entry.Name,
			Type:   direntType(c.Entry.Kind),
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dirent)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func direntType(kind inode.Kind) fuseutil.DirentType {
	switch kind {
	case inode.KindDirectory:
		return fuseutil.DT_Directory
	case inode.KindSymlink:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}
