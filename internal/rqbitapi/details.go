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
	"fmt"
)

// TorrentDetails fetches GET /torrents/{id}: the file list and piece length
// the discovery loop uses to populate the inode namespace for a newly
// added torrent.
func (c *Client) TorrentDetails(ctx context.Context, torrentID string) (*TorrentDetails, error) {
	var details TorrentDetails
	if err := c.getJSON(ctx, fmt.Sprintf("/torrents/%s", torrentID), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// TorrentStats fetches GET /torrents/{id}/stats/v1: state, progress, error
// and finished flag, used to refresh the torrent status cache.
func (c *Client) TorrentStats(ctx context.Context, torrentID string) (*Stats, error) {
	var raw struct {
		State    string  `json:"state"`
		Error    string  `json:"error,omitempty"`
		Finished bool    `json:"finished"`
		Progress float64 `json:"progress_bytes"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/torrents/%s/stats/v1", torrentID), &raw); err != nil {
		return nil, err
	}
	return &Stats{
		State:    parseState(raw.State, raw.Error),
		RawState: raw.State,
		Error:    raw.Error,
		Finished: raw.Finished,
		Progress: raw.Progress,
	}, nil
}
