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

package rqbitapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
)

// Bitfield is the raw piece-availability bitfield returned by
// GET /torrents/{id}/haves, one bit per piece (MSB-first within each byte),
// plus the piece count advertised via the X-Bitfield-Len response header.
type Bitfield struct {
	Bytes      []byte
	PieceCount int
}

// HasPiece reports whether piece i is marked available in the bitfield.
func (b Bitfield) HasPiece(i int) bool {
	if i < 0 || i >= b.PieceCount {
		return false
	}
	byteIdx := i / 8
	if byteIdx >= len(b.Bytes) {
		return false
	}
	bitIdx := uint(7 - i%8)
	return b.Bytes[byteIdx]&(1<<bitIdx) != 0
}

// Haves fetches GET /torrents/{id}/haves, the piece-availability gate's data
// source per §4.8.
func (c *Client) Haves(ctx context.Context, torrentID string) (Bitfield, error) {
	var result Bitfield
	err := c.doWithRetry(ctx, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/torrents/%s/haves", torrentID), nil)
		if err != nil {
			return apperr.Wrap(apperr.InvalidArgument, err, "building haves request")
		}
		req.Header.Set("Accept", "application/octet-stream")

		if c.tracer != nil {
			c.tracer.Request(req.Method, req.URL.String(), attempt)
		}
		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if c.tracer != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			c.tracer.Response(req.Method, req.URL.String(), status, time.Since(start), err)
		}
		if appErr := classify(err, resp); appErr != nil {
			return appErr
		}
		defer resp.Body.Close()

		pieceCount, convErr := strconv.Atoi(resp.Header.Get("X-Bitfield-Len"))
		if convErr != nil {
			return apperr.Wrap(apperr.ParseError, convErr, "parsing X-Bitfield-Len header")
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperr.Wrap(apperr.IoError, err, "reading haves body")
		}

		result = Bitfield{Bytes: body, PieceCount: pieceCount}
		return nil
	})
	if err != nil {
		return Bitfield{}, err
	}
	return result, nil
}
