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

package discovery_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rqbit-fuse/rqbit-fuse/clock"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/bridge"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/handle"
	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/inode"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T, handler http.HandlerFunc) (*discovery.Loop, *inode.Manager, *handle.Table) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := rqbitapi.NewClient(rqbitapi.Options{
		BaseURL:        srv.URL,
		RequestTimeout: time.Second,
		RetryAttempts:  1,
		ListCacheTTL:   time.Millisecond, // tests issue their own reconcile cycles explicitly
	})
	inodes := inode.NewManager(0)
	handles := handle.NewTable(0)
	streams := stream.NewFromClient(client)
	worker := bridge.New(client, streams, 0)
	status := discovery.NewStatusCache()

	cfg := discovery.DefaultConfig()
	cfg.Interval = time.Hour
	cfg.Debounce = 0
	loop := discovery.New(cfg, client, inodes, handles, streams, worker, status, clock.RealClock{})

	go worker.Run()
	t.Cleanup(worker.Shutdown)

	return loop, inodes, handles
}

// Scenario A from §8: after one discovery cycle, the torrent's directory
// and file appear in the namespace.
func TestScenarioADiscoveryPopulatesNamespace(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"torrents":[{"id":1,"info_hash":"abc","name":"T","output_folder":"/d/T"}]}`)
	})
	mux.HandleFunc("/torrents/1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":1,"name":"T","piece_length":16384,"files":[{"components":["f.bin"],"length":1000}]}`)
	})
	mux.HandleFunc("/torrents/1/stats/v1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"state":"live","finished":false,"progress_bytes":0}`)
	})

	loop, inodes, _ := newLoop(t, mux.ServeHTTP)
	loop.TriggerNow(context.Background())

	torrentIno, ok := inodes.LookupByPath("/T")
	require.True(t, ok)
	entry, ok := inodes.Get(torrentIno)
	require.True(t, ok)
	assert.True(t, entry.IsDir())

	fileIno, ok := inodes.LookupByPath("/T/f.bin")
	require.True(t, ok)
	fileEntry, ok := inodes.Get(fileIno)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), fileEntry.Size)
	assert.Equal(t, "1", fileEntry.TorrentID)
}

// Scenario F from §8: once the torrent disappears from the upstream list,
// the next discovery cycle tears down its subtree and a previously open
// handle is gone (readers see EBADF at the filesystem-adapter layer).
func TestScenarioFTorrentRemovedUpstream(t *testing.T) {
	var present atomic.Bool
	present.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/torrents", func(w http.ResponseWriter, r *http.Request) {
		if present.Load() {
			io.WriteString(w, `{"torrents":[{"id":1,"info_hash":"abc","name":"T","output_folder":"/d/T"}]}`)
		} else {
			io.WriteString(w, `{"torrents":[]}`)
		}
	})
	mux.HandleFunc("/torrents/1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":1,"name":"T","piece_length":16384,"files":[{"components":["f.bin"],"length":1000}]}`)
	})
	mux.HandleFunc("/torrents/1/stats/v1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"state":"live","finished":false,"progress_bytes":0}`)
	})
	mux.HandleFunc("/torrents/1/forget", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	loop, inodes, handles := newLoop(t, mux.ServeHTTP)
	loop.TriggerNow(context.Background())

	fileIno, ok := inodes.LookupByPath("/T/f.bin")
	require.True(t, ok)
	handleID, err := handles.Allocate(fileIno, "1", 0)
	require.NoError(t, err)

	present.Store(false)
	loop.TriggerNow(context.Background())

	_, ok = inodes.LookupByPath("/T")
	assert.False(t, ok, "readdir(\"/\") must no longer show the departed torrent")
	_, ok = inodes.Get(fileIno)
	assert.False(t, ok)
	_, ok = handles.Get(handleID)
	assert.False(t, ok, "a handle opened before teardown must be gone, surfacing EBADF to the kernel")
}

func TestRepeatedDiscoveryWithUnchangedUpstreamIsNoOp(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/torrents", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"torrents":[{"id":1,"info_hash":"abc","name":"T","output_folder":"/d/T"}]}`)
	})
	mux.HandleFunc("/torrents/1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":1,"name":"T","piece_length":16384,"files":[{"components":["f.bin"],"length":1000}]}`)
	})
	mux.HandleFunc("/torrents/1/stats/v1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"state":"live","finished":false,"progress_bytes":0}`)
	})

	loop, inodes, _ := newLoop(t, mux.ServeHTTP)
	loop.TriggerNow(context.Background())
	lenAfterFirst := inodes.Len()

	loop.TriggerNow(context.Background())
	assert.Equal(t, lenAfterFirst, inodes.Len(), "a second cycle over an unchanged upstream list must not mutate the namespace")
}
