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

// Package stream implements the persistent stream manager: reusable ranged
// HTTP byte-range connections keyed by (torrent, file), collapsing
// sequential reads into a single upstream connection and dropping the
// connection whenever a read seeks away from it.
package stream

import (
	"context"
	"io"
	"sync"

	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
)

// Opener opens a ranged read at the given offset. clientAdapter wraps
// *rqbitapi.Client to satisfy this; tests can supply their own fake.
type Opener interface {
	OpenStream(ctx context.Context, torrentID string, fileIdx int, offset int64) (io.ReadCloser, error)
	ReleaseReadSlot()
}

// clientAdapter narrows *rqbitapi.Client's concretely-typed *StreamReader
// return value down to io.ReadCloser so Manager can depend on the Opener
// interface instead of the concrete HTTP client.
type clientAdapter struct {
	client *rqbitapi.Client
}

func (a clientAdapter) OpenStream(ctx context.Context, torrentID string, fileIdx int, offset int64) (io.ReadCloser, error) {
	return a.client.OpenStream(ctx, torrentID, fileIdx, offset)
}

func (a clientAdapter) ReleaseReadSlot() {
	a.client.ReleaseReadSlot()
}

// NewFromClient builds a Manager backed directly by an rqbitapi.Client.
func NewFromClient(client *rqbitapi.Client) *Manager {
	return New(clientAdapter{client: client})
}

// Key identifies one persistent stream slot.
type Key struct {
	TorrentID string
	FileIndex int
}

type entry struct {
	mu            sync.Mutex
	body          io.ReadCloser
	currentOffset int64
	open          bool
}

// Manager holds at most one live stream per Key, per §4.4.
type Manager struct {
	opener Opener
	log    *logger.Logger

	mu      sync.Mutex
	entries map[Key]*entry
}

// New builds a Manager backed by opener.
func New(opener Opener) *Manager {
	return &Manager{
		opener:  opener,
		log:     logger.New("stream"),
		entries: make(map[Key]*entry),
	}
}

func (m *Manager) entryFor(key Key) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	return e
}

// Read implements the read(torrent_id, file_index, offset, size) algorithm
// of §4.4: reuse the live stream at this key if it is positioned exactly at
// offset, otherwise drop it and open a fresh one. Concurrent reads against
// the same key are serialized by the entry's own lock; different keys
// proceed in parallel.
func (m *Manager) Read(ctx context.Context, key Key, offset int64, size int) ([]byte, error) {
	e := m.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open && e.currentOffset != offset {
		m.closeLocked(e)
	}

	if !e.open {
		body, err := m.opener.OpenStream(ctx, key.TorrentID, key.FileIndex, offset)
		if err != nil {
			return nil, err
		}
		e.body = body
		e.currentOffset = offset
		e.open = true
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(e.body, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		m.closeLocked(e)
		return nil, err
	}
	e.currentOffset += int64(n)
	// A short read near EOF is not an error condition per §4.4 step 5: the
	// bytes read are returned. The exhausted stream is closed, so the next
	// read at this key opens a fresh one.
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		m.closeLocked(e)
	}
	return buf[:n], nil
}

func (m *Manager) closeLocked(e *entry) {
	if !e.open {
		return
	}
	e.body.Close()
	m.opener.ReleaseReadSlot()
	e.body = nil
	e.open = false
}

// CloseTorrentStreams drops all live streams belonging to torrentID, per
// §4.4, typically called when the torrent disappears from upstream.
func (m *Manager) CloseTorrentStreams(torrentID string) {
	m.mu.Lock()
	var victims []*entry
	for key, e := range m.entries {
		if key.TorrentID == torrentID {
			victims = append(victims, e)
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()

	for _, e := range victims {
		e.mu.Lock()
		m.closeLocked(e)
		e.mu.Unlock()
	}
}

// Len reports the number of live stream slots, for tests and diagnostics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.open {
			n++
		}
	}
	return n
}
