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

// Package bridge implements the async bridge worker described in §4.5: a
// single long-running goroutine multiplexing filesystem upcalls (which run
// on kernel-facing threads and cannot block indefinitely) onto asynchronous
// HTTP work, via a request queue and a per-request synchronous reply
// channel.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
)

// kind discriminates the Request sum type of §4.5.
type kind int

const (
	kindReadFile kind = iota
	kindCheckPiecesAvailable
	kindForgetTorrent
)

// Request is one unit of work handed to the bridge worker. Callers never
// construct one directly; use Worker's ReadFile/CheckPiecesAvailable/
// ForgetTorrent methods, which build the request, send it, and block on its
// reply with a timeout.
type Request struct {
	kind kind

	// reqID correlates a request's dispatch and completion log lines; it
	// never crosses the bridge boundary into the HTTP layer.
	reqID uuid.UUID

	torrentID   string
	fileIndex   int
	offset      int64
	size        int
	pieceLength uint32

	timeout time.Duration
	reply   chan response
}

type response struct {
	data []byte
	err  error
}

// Worker is the single consumer of the bridge's request queue. Exactly one
// Worker is owned by the filesystem adapter, shared by reference with every
// upcall goroutine.
type Worker struct {
	requests chan Request
	shutdown chan struct{}
	done     chan struct{}

	client    *rqbitapi.Client
	streamMgr *stream.Manager
	log       *logger.Logger

	wg sync.WaitGroup
}

// New builds a Worker. queueDepth bounds the request queue; 0 defaults to a
// generously large buffer since the queue is meant to never apply
// backpressure of its own (the HTTP client's read semaphore is the
// system's actual backpressure valve, per §5).
func New(client *rqbitapi.Client, streamMgr *stream.Manager, queueDepth int) *Worker {
	if queueDepth <= 0 {
		queueDepth = 4096
	}
	return &Worker{
		requests:  make(chan Request, queueDepth),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		client:    client,
		streamMgr: streamMgr,
		log:       logger.New("bridge"),
	}
}

// Run consumes the request queue until Shutdown is called. It is meant to
// run in its own goroutine for the lifetime of the mount.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		// Check shutdown first, non-blocking, so a pending shutdown signal
		// always wins a simultaneous-ready race with an enqueued request.
		select {
		case <-w.shutdown:
			w.wg.Wait()
			return
		default:
		}

		select {
		case <-w.shutdown:
			w.wg.Wait()
			return
		case req := <-w.requests:
			w.dispatch(req)
		}
	}
}

// Shutdown signals the worker to stop accepting new requests and blocks
// until Run has returned and all in-flight child tasks have completed.
func (w *Worker) Shutdown() {
	close(w.shutdown)
	<-w.done
}

func (w *Worker) dispatch(req Request) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("panic recovered in bridge child task", "reqID", req.reqID, "kind", req.kind, "torrent", req.torrentID, "panic", r)
				req.reply <- response{err: apperr.New(apperr.IoError, "internal error handling request %s: %v", req.reqID, r)}
			}
		}()
		w.log.Tracef("reqID=%s dispatch kind=%d torrent=%s", req.reqID, req.kind, req.torrentID)
		resp := w.handle(req)
		if resp.err != nil {
			w.log.Tracef("reqID=%s failed: %v", req.reqID, resp.err)
		}
		// reply is buffered with capacity 1, so this never blocks even if
		// the caller already gave up and stopped receiving.
		req.reply <- resp
	}()
}

func (w *Worker) handle(req Request) response {
	ctx := context.Background()
	if req.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}
	switch req.kind {
	case kindReadFile:
		key := stream.Key{TorrentID: req.torrentID, FileIndex: req.fileIndex}
		data, err := w.streamMgr.Read(ctx, key, req.offset, req.size)
		return response{data: data, err: err}
	case kindCheckPiecesAvailable:
		err := w.checkPiecesAvailable(ctx, req)
		return response{err: err}
	case kindForgetTorrent:
		err := w.client.Forget(ctx, req.torrentID)
		w.streamMgr.CloseTorrentStreams(req.torrentID)
		return response{err: err}
	default:
		return response{err: apperr.New(apperr.InvalidArgument, "unknown bridge request kind")}
	}
}

func (w *Worker) checkPiecesAvailable(ctx context.Context, req Request) error {
	if req.pieceLength == 0 {
		return apperr.New(apperr.InvalidArgument, "torrent %s reported a zero piece length", req.torrentID)
	}

	bf, err := w.client.Haves(ctx, req.torrentID)
	if err != nil {
		return err
	}

	firstPiece := req.offset / int64(req.pieceLength)
	lastPiece := (req.offset + int64(req.size) - 1) / int64(req.pieceLength)
	for p := firstPiece; p <= lastPiece; p++ {
		if !bf.HasPiece(int(p)) {
			return apperr.New(apperr.DataUnavailable, "piece %d of torrent %s not yet downloaded", p, req.torrentID)
		}
	}
	return nil
}

// await blocks on reply with the given timeout, honoring ctx cancellation.
// Per §5's cancellation model, a timeout here abandons the reply channel;
// the spawned child goroutine keeps running, but bounded by the same
// timeout via its own derived context (see handle), so it cannot leak past
// it and its result is simply discarded into the buffered channel.
func await(ctx context.Context, reply chan response, timeout time.Duration) response {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-reply:
		return resp
	case <-timer.C:
		return response{err: apperr.New(apperr.TimedOut, "bridge request timed out after %s", timeout)}
	case <-ctx.Done():
		return response{err: apperr.New(apperr.TimedOut, "bridge request canceled: %v", ctx.Err())}
	}
}

// ReadFile implements the ReadFile request of §4.5: read size bytes at
// offset from (torrentID, fileIndex) via the persistent stream manager.
func (w *Worker) ReadFile(ctx context.Context, torrentID string, fileIndex int, offset int64, size int, timeout time.Duration) ([]byte, error) {
	req := Request{
		kind:      kindReadFile,
		reqID:     uuid.New(),
		torrentID: torrentID,
		fileIndex: fileIndex,
		offset:    offset,
		size:      size,
		timeout:   timeout,
		reply:     make(chan response, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, apperr.New(apperr.TimedOut, "bridge queue full: %v", ctx.Err())
	}
	resp := await(ctx, req.reply, timeout)
	return resp.data, resp.err
}

// CheckPiecesAvailable implements the CheckPiecesAvailable request of §4.5,
// the data-plane half of the piece-availability gate (§4.8).
func (w *Worker) CheckPiecesAvailable(ctx context.Context, torrentID string, offset int64, size int, pieceLength uint32, timeout time.Duration) error {
	req := Request{
		kind:        kindCheckPiecesAvailable,
		reqID:       uuid.New(),
		torrentID:   torrentID,
		offset:      offset,
		size:        size,
		pieceLength: pieceLength,
		timeout:     timeout,
		reply:       make(chan response, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return apperr.New(apperr.TimedOut, "bridge queue full: %v", ctx.Err())
	}
	return await(ctx, req.reply, timeout).err
}

// ForgetTorrent implements the ForgetTorrent request of §4.5, called by the
// discovery loop before it tears down a removed torrent's inode subtree.
func (w *Worker) ForgetTorrent(ctx context.Context, torrentID string, timeout time.Duration) error {
	req := Request{
		kind:      kindForgetTorrent,
		reqID:     uuid.New(),
		torrentID: torrentID,
		timeout:   timeout,
		reply:     make(chan response, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return apperr.New(apperr.TimedOut, "bridge queue full: %v", ctx.Err())
	}
	return await(ctx, req.reply, timeout).err
}
