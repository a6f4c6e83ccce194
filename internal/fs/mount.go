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
	"fmt"
	"strings"
	"time"

	"github.com/jacobsa/fuse"

	"github.com/rqbit-fuse/rqbit-fuse/clock"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/bridge"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/handle"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
)

// Options configures a Mount end to end: the upstream rqbit client, the
// namespace table sizing, and the discovery loop's pacing.
type Options struct {
	APIClient *rqbitapi.Client

	MaxInodes  int
	MaxHandles int

	ReadTimeout time.Duration

	// PieceGate toggles the piece-availability gate of §4.8. Callers that
	// build Options directly (rather than through cmd, which always derives
	// this from cfg.Config) should set it explicitly; the zero value
	// disables the gate.
	PieceGate bool

	Discovery discovery.Config
}

// Mount owns every component wired together for one mounted filesystem:
// the namespace, handle table, bridge worker, discovery loop and the
// resulting fuse.MountedFileSystem. It is the single object cmd/mount.go
// needs to hold for the lifetime of a mount.
type Mount struct {
	fs   *FileSystem
	loop *discovery.Loop

	worker *bridge.Worker

	mfs *fuse.MountedFileSystem

	log *logger.Logger

	cancel context.CancelFunc
}

// New wires inode.Manager, handle.Table, stream.Manager, bridge.Worker and
// discovery.Loop together per §3's ownership summary, without mounting
// anything yet.
func New(opts Options) *Mount {
	inodes := inode.NewManager(opts.MaxInodes)
	handles := handle.NewTable(opts.MaxHandles)
	streams := stream.NewFromClient(opts.APIClient)
	worker := bridge.New(opts.APIClient, streams, 0)
	status := discovery.NewStatusCache()

	discoveryCfg := fillDiscoveryDefaults(opts.Discovery)
	loop := discovery.New(discoveryCfg, opts.APIClient, inodes, handles, streams, worker, status, clock.RealClock{})

	readTimeout := opts.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	return &Mount{
		fs:     newFileSystem(inodes, handles, worker, loop, status, readTimeout, opts.PieceGate),
		loop:   loop,
		worker: worker,
		log:    logger.New("mount"),
	}
}

// fillDiscoveryDefaults fills in any unset field of cfg from
// discovery.DefaultConfig, field by field, rather than swapping the whole
// struct for defaults the moment one field is left zero.
func fillDiscoveryDefaults(got discovery.Config) discovery.Config {
	d := discovery.DefaultConfig()
	if got.Interval == 0 {
		got.Interval = d.Interval
	}
	if got.Debounce == 0 {
		got.Debounce = d.Debounce
	}
	if got.BridgeTimeout == 0 {
		got.BridgeTimeout = d.BridgeTimeout
	}
	if got.StatusRefreshRate == 0 {
		got.StatusRefreshRate = d.StatusRefreshRate
	}
	return got
}

// Mount starts the bridge worker and discovery loop, then mounts the
// filesystem at dir. It blocks until the kernel has accepted the mount.
func (m *Mount) Mount(dir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	go m.worker.Run()
	go m.loop.Run(ctx)

	mountCfg := &fuse.MountConfig{
		FSName:     "rqbitfuse",
		Subtype:    "rqbitfuse",
		VolumeName: "rqbitfuse",
		ErrorLogger: logger.NewLegacyLogger(logger.LevelError, "fuse", "fuse: "),
		DebugLogger: logger.NewLegacyLogger(logger.LevelTrace, "fuse", "fuse_debug: "),
	}
	mfs, err := fuse.Mount(dir, m.fs.Server(), mountCfg)
	if err != nil {
		cancel()
		m.worker.Shutdown()
		m.loop.Shutdown()
		return fmt.Errorf("mounting at %s: %w", dir, err)
	}
	m.mfs = mfs
	m.log.Info("mounted", "dir", dir)
	return nil
}

// Join blocks until the mount is unmounted, forwarding the kernel-side
// fuse.MountedFileSystem.Join error if any.
func (m *Mount) Join(ctx context.Context) error {
	return m.mfs.Join(ctx)
}

// Unmount tears the mount down: first the kernel mount point (retrying
// briefly on "resource busy", which a FUSE mount point commonly reports
// immediately after heavy read activity), then the background loop and
// bridge worker.
func (m *Mount) Unmount(ctx context.Context) error {
	delay := 10 * time.Millisecond
	var err error
	for {
		err = m.mfs.Unmount()
		if err == nil {
			break
		}
		if !strings.Contains(err.Error(), "resource busy") {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("unmount: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * 1.3)
	}
	if err != nil {
		return fmt.Errorf("unmount: %w", err)
	}

	if err := m.mfs.Join(ctx); err != nil {
		m.log.Error("join after unmount", "error", err)
	}

	if m.cancel != nil {
		m.cancel()
	}
	m.loop.Shutdown()
	m.worker.Shutdown()
	return nil
}
