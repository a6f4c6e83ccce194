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
	"encoding/json"
	"time"
)

// ListTorrents returns GET /torrents, cached for ListCacheTTL (default 30s)
// behind a singleflight.Group so concurrent callers during a cache miss
// share one in-flight fetch rather than issuing redundant requests.
func (c *Client) ListTorrents(ctx context.Context) ([]TorrentSummary, error) {
	<-c.listCache.mu
	cached := c.listCache.torrents
	fresh := time.Since(c.listCache.fetchedAt) < c.listCacheTTL && c.listCache.fetchedAt != (time.Time{})
	c.listCache.mu <- struct{}{}

	if fresh {
		return cached, nil
	}

	v, err, _ := c.listGroup.Do("list_torrents", func() (interface{}, error) {
		var torrents []TorrentSummary
		if err := c.getJSON(ctx, "/torrents", &wrappedTorrentList{&torrents}); err != nil {
			return nil, err
		}

		<-c.listCache.mu
		c.listCache.torrents = torrents
		c.listCache.fetchedAt = time.Now()
		c.listCache.mu <- struct{}{}

		return torrents, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]TorrentSummary), nil
}

// InvalidateListCache forces the next ListTorrents call to refetch,
// called after any torrent add/remove API call per §4.3.
func (c *Client) InvalidateListCache() {
	<-c.listCache.mu
	c.listCache.fetchedAt = time.Time{}
	c.listCache.mu <- struct{}{}
}

// wrappedTorrentList lets ListTorrents decode the upstream's
// {"torrents": [...]} envelope directly into a []TorrentSummary via a
// custom UnmarshalJSON, without a separate exported envelope type.
type wrappedTorrentList struct {
	dest *[]TorrentSummary
}

func (w *wrappedTorrentList) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Torrents []TorrentSummary `json:"torrents"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*w.dest = envelope.Torrents
	return nil
}
