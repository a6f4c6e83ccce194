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

// Pause issues POST /torrents/{id}/pause.
func (c *Client) Pause(ctx context.Context, torrentID string) error {
	return c.postAction(ctx, fmt.Sprintf("/torrents/%s/pause", torrentID))
}

// Start issues POST /torrents/{id}/start, resuming a paused torrent.
func (c *Client) Start(ctx context.Context, torrentID string) error {
	return c.postAction(ctx, fmt.Sprintf("/torrents/%s/start", torrentID))
}

// Forget issues POST /torrents/{id}/forget: removes the torrent from
// rqbit's session without deleting its downloaded data, and invalidates the
// list cache so the next readdir reflects its absence immediately.
func (c *Client) Forget(ctx context.Context, torrentID string) error {
	if err := c.postAction(ctx, fmt.Sprintf("/torrents/%s/forget", torrentID)); err != nil {
		return err
	}
	c.InvalidateListCache()
	return nil
}

// Delete issues POST /torrents/{id}/delete: removes the torrent and its
// downloaded data, and invalidates the list cache.
func (c *Client) Delete(ctx context.Context, torrentID string) error {
	if err := c.postAction(ctx, fmt.Sprintf("/torrents/%s/delete", torrentID)); err != nil {
		return err
	}
	c.InvalidateListCache()
	return nil
}
