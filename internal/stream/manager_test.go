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

package stream_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/rqbit-fuse/rqbit-fuse/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBody struct {
	*bytes.Reader
	closed *bool
}

func (b fakeBody) Close() error {
	*b.closed = true
	return nil
}

type fakeOpener struct {
	opens     int
	closed    []bool
	released  int
	nextBytes []byte
}

func (f *fakeOpener) OpenStream(ctx context.Context, torrentID string, fileIdx int, offset int64) (io.ReadCloser, error) {
	f.opens++
	f.closed = append(f.closed, false)
	idx := len(f.closed) - 1
	return fakeBody{Reader: bytes.NewReader(f.nextBytes), closed: &f.closed[idx]}, nil
}

func (f *fakeOpener) ReleaseReadSlot() {
	f.released++
}

func TestSequentialReadReusesStream(t *testing.T) {
	opener := &fakeOpener{nextBytes: bytes.Repeat([]byte{0xAB}, 200)}
	m := stream.New(opener)
	key := stream.Key{TorrentID: "t1", FileIndex: 0}

	data1, err := m.Read(context.Background(), key, 0, 100)
	require.NoError(t, err)
	assert.Len(t, data1, 100)

	data2, err := m.Read(context.Background(), key, 100, 100)
	require.NoError(t, err)
	assert.Len(t, data2, 100)

	assert.Equal(t, 1, opener.opens, "sequential reads must reuse one upstream connection")
}

func TestSeekDropsStream(t *testing.T) {
	opener := &fakeOpener{nextBytes: bytes.Repeat([]byte{0xCD}, 1000)}
	m := stream.New(opener)
	key := stream.Key{TorrentID: "t1", FileIndex: 0}

	_, err := m.Read(context.Background(), key, 0, 100)
	require.NoError(t, err)
	_, err = m.Read(context.Background(), key, 100, 100)
	require.NoError(t, err)

	_, err = m.Read(context.Background(), key, 500, 50)
	require.NoError(t, err)

	assert.Equal(t, 2, opener.opens, "a seek must close the prior stream and open a fresh one")
	assert.True(t, opener.closed[0], "the stream from the first open must have been closed")
}

func TestCloseTorrentStreamsDropsOnlyMatchingKeys(t *testing.T) {
	opener := &fakeOpener{nextBytes: bytes.Repeat([]byte{1}, 100)}
	m := stream.New(opener)

	_, err := m.Read(context.Background(), stream.Key{TorrentID: "t1", FileIndex: 0}, 0, 10)
	require.NoError(t, err)
	_, err = m.Read(context.Background(), stream.Key{TorrentID: "t2", FileIndex: 0}, 0, 10)
	require.NoError(t, err)

	m.CloseTorrentStreams("t1")
	assert.Equal(t, 1, m.Len())
}

func TestShortReadNearEOFReturnsPartialData(t *testing.T) {
	opener := &fakeOpener{nextBytes: []byte("hello")}
	m := stream.New(opener)
	key := stream.Key{TorrentID: "t1", FileIndex: 0}

	data, err := m.Read(context.Background(), key, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
