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

// Package discovery implements the background reconciliation loop of §4.7:
// polling the upstream torrent list, building and tearing down inode
// subtrees as torrents come and go, and refreshing the per-torrent status
// cache the piece-availability gate (§4.8) reads from.
package discovery

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rqbit-fuse/rqbit-fuse/clock"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/bridge"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/handle"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
)

// Config bounds the loop's pacing and bridge call timeouts.
type Config struct {
	Interval     time.Duration
	Debounce     time.Duration
	BridgeTimeout time.Duration
	// StatusRefreshRate caps how many per-torrent stats/v1 fetches the
	// opportunistic refresh step issues per second, so a fleet of thousands
	// of torrents cannot turn one discovery tick into a request storm.
	StatusRefreshRate rate.Limit
}

// DefaultConfig returns the §4.7 defaults: a 10s poll interval, a 2s
// debounce window for the manual trigger on root readdir, and bridge calls
// bounded to 5s.
func DefaultConfig() Config {
	return Config{
		Interval:          10 * time.Second,
		Debounce:          2 * time.Second,
		BridgeTimeout:     5 * time.Second,
		StatusRefreshRate: 20,
	}
}

// Loop is the sole writer of cross-torrent namespace state, per §4.7 and
// §9's "global mutable state: none at module scope" rule — all of its state
// lives on this value, reached by the filesystem adapter via shared
// reference.
type Loop struct {
	cfg Config

	client  *rqbitapi.Client
	inodes  *inode.Manager
	handles *handle.Table
	streams *stream.Manager
	bridge  *bridge.Worker
	status  *StatusCache
	clock   clock.Clock
	log     *logger.Logger

	statusLimiter *rate.Limiter

	knownMu sync.Mutex
	known   map[string]inode.ID // torrent id -> its directory inode

	lastRunNanos atomic.Int64

	stop chan struct{}
	done chan struct{}
}

// New builds a Loop. clk is injectable so tests can drive the poll interval
// with clock.FakeClock/SimulatedClock instead of the wall clock.
func New(cfg Config, client *rqbitapi.Client, inodes *inode.Manager, handles *handle.Table, streams *stream.Manager, worker *bridge.Worker, status *StatusCache, clk clock.Clock) *Loop {
	return &Loop{
		cfg:           cfg,
		client:        client,
		inodes:        inodes,
		handles:       handles,
		streams:       streams,
		bridge:        worker,
		status:        status,
		clock:         clk,
		log:           logger.New("discovery"),
		statusLimiter: rate.NewLimiter(cfg.StatusRefreshRate, 1),
		known:         make(map[string]inode.ID),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run polls every cfg.Interval until Shutdown is called. It is meant to run
// in its own goroutine for the lifetime of the mount.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		if err := l.reconcileOnce(ctx); err != nil {
			l.log.Error("discovery cycle failed", "error", err)
		}
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-l.clock.After(l.cfg.Interval):
		}
	}
}

// Shutdown signals Run to stop after its current cycle and waits for it to
// return.
func (l *Loop) Shutdown() {
	close(l.stop)
	<-l.done
}

// TriggerNow runs an out-of-band reconciliation cycle, subject to the
// debounce window: concurrent triggers (e.g. several simultaneous
// root-directory readdirs) fold into at most one extra cycle per window.
func (l *Loop) TriggerNow(ctx context.Context) {
	now := l.clock.Now().UnixNano()
	last := l.lastRunNanos.Load()
	if time.Duration(now-last) < l.cfg.Debounce {
		return
	}
	if !l.lastRunNanos.CompareAndSwap(last, now) {
		// Another goroutine just won the race; its cycle covers this trigger.
		return
	}
	if err := l.reconcileOnce(ctx); err != nil {
		l.log.Error("triggered discovery cycle failed", "error", err)
	}
}

func (l *Loop) reconcileOnce(ctx context.Context) error {
	l.lastRunNanos.Store(l.clock.Now().UnixNano())

	summaries, err := l.client.ListTorrents(ctx)
	if err != nil {
		return err
	}

	upstream := make(map[string]rqbitapi.TorrentSummary, len(summaries))
	for _, s := range summaries {
		upstream[strconv.Itoa(s.ID)] = s
	}

	l.knownMu.Lock()
	var added []string
	for id := range upstream {
		if _, ok := l.known[id]; !ok {
			added = append(added, id)
		}
	}
	var removed []string
	for id := range l.known {
		if _, ok := upstream[id]; !ok {
			removed = append(removed, id)
		}
	}
	l.knownMu.Unlock()

	for _, id := range removed {
		l.tearDown(ctx, id)
	}

	if len(added) > 0 {
		group, gctx := errgroup.WithContext(ctx)
		for _, id := range added {
			id := id
			group.Go(func() error {
				return l.addTorrent(gctx, id)
			})
		}
		if err := group.Wait(); err != nil {
			l.log.Error("adding torrents failed", "error", err)
		}
	}

	l.refreshStatus(ctx)
	return nil
}

// addTorrent fetches torrentID's details and builds its inode subtree: one
// directory for the torrent, one subdirectory per path-component prefix,
// one file entry per leaf, per §4.7 step 3. The torrent's root directory is
// linked into "/" first and its files populate afterward, so a readdir("/")
// racing this call can observe the new directory before its children exist;
// every Allocate call commits its child to the parent's listing immediately,
// so there is no detached-subtree staging area to build against instead.
func (l *Loop) addTorrent(ctx context.Context, torrentID string) error {
	details, err := l.client.TorrentDetails(ctx, torrentID)
	if err != nil {
		return err
	}

	rootIno, err := l.inodes.Allocate(inode.RootID, inode.NewDirectory(details.Name), torrentID)
	if err != nil {
		return err
	}

	dirs := map[string]inode.ID{"": rootIno}
	for fileIdx, f := range details.Files {
		if len(f.Components) == 0 {
			continue
		}
		parentIno := rootIno
		for i := 0; i < len(f.Components)-1; i++ {
			key := strings.Join(f.Components[:i+1], "/")
			if ino, ok := dirs[key]; ok {
				parentIno = ino
				continue
			}
			dirIno, err := l.inodes.Allocate(parentIno, inode.NewDirectory(f.Components[i]), "")
			if err != nil {
				return err
			}
			dirs[key] = dirIno
			parentIno = dirIno
		}

		leafName := f.Components[len(f.Components)-1]
		fileEntry := inode.NewFile(leafName, torrentID, fileIdx, f.Length)
		if _, err := l.inodes.Allocate(parentIno, fileEntry, ""); err != nil {
			return err
		}
	}

	l.status.Set(torrentID, Status{State: rqbitapi.StateLive, PieceLength: details.PieceLength})

	l.knownMu.Lock()
	l.known[torrentID] = rootIno
	l.knownMu.Unlock()

	l.log.Info("torrent added", "torrent_id", torrentID, "name", details.Name, "files", len(details.Files))
	return nil
}

// tearDown removes torrentID per §4.7 step 4: close its streams, bulk-close
// its handles, remove its inode subtree, and drop its status entry. The
// upstream server call is best-effort — the torrent is already gone from
// the list, so a 404 from forget is expected and never aborts local
// cleanup.
func (l *Loop) tearDown(ctx context.Context, torrentID string) {
	if err := l.bridge.ForgetTorrent(ctx, torrentID, l.cfg.BridgeTimeout); err != nil {
		l.log.Tracef("forget of departed torrent %s: %v", torrentID, err)
	}

	l.handles.RemoveByTorrent(torrentID)

	l.knownMu.Lock()
	rootIno, ok := l.known[torrentID]
	delete(l.known, torrentID)
	l.knownMu.Unlock()

	if ok {
		if err := l.inodes.Remove(rootIno); err != nil {
			l.log.Error("removing torrent subtree", "torrent_id", torrentID, "error", err)
		}
	}

	l.status.Delete(torrentID)
	l.log.Info("torrent removed", "torrent_id", torrentID)
}

// refreshStatus opportunistically refreshes the status of every
// still-known torrent, rate-limited so a large fleet cannot turn one tick
// into a request storm (§4.7 step 5).
func (l *Loop) refreshStatus(ctx context.Context) {
	l.knownMu.Lock()
	ids := make([]string, 0, len(l.known))
	for id := range l.known {
		ids = append(ids, id)
	}
	l.knownMu.Unlock()

	for _, id := range ids {
		if err := l.statusLimiter.Wait(ctx); err != nil {
			return
		}
		stats, err := l.client.TorrentStats(ctx, id)
		if err != nil {
			l.log.Tracef("status refresh for %s: %v", id, err)
			continue
		}
		prev, _ := l.status.Get(id)
		l.status.Set(id, Status{State: stats.State, Finished: stats.Finished, PieceLength: prev.PieceLength})
	}
}

// LookupTorrentDir resolves torrentID to its directory inode, for callers
// (the filesystem adapter) that need to confirm a torrent is still tracked
// without reaching into the inode manager's own torrent index directly.
func (l *Loop) LookupTorrentDir(torrentID string) (inode.ID, bool) {
	l.knownMu.Lock()
	defer l.knownMu.Unlock()
	ino, ok := l.known[torrentID]
	return ino, ok
}
