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
	"testing"

	"github.com/rqbit-fuse/rqbit-fuse/internal/fs/discovery"
	"github.com/rqbit-fuse/rqbit-fuse/internal/rqbitapi"
	"github.com/stretchr/testify/assert"
)

func TestGatesReadsOnlyForPausedUnfinished(t *testing.T) {
	cases := []struct {
		name   string
		status discovery.Status
		gated  bool
	}{
		{"paused and unfinished", discovery.Status{State: rqbitapi.StatePaused, Finished: false}, true},
		{"paused but finished", discovery.Status{State: rqbitapi.StatePaused, Finished: true}, false},
		{"live", discovery.Status{State: rqbitapi.StateLive, Finished: false}, false},
		{"error", discovery.Status{State: rqbitapi.StateError, Finished: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.gated, tc.status.GatesReads())
		})
	}
}

func TestStatusCacheSetGetDelete(t *testing.T) {
	c := discovery.NewStatusCache()

	_, ok := c.Get("t1")
	assert.False(t, ok)

	c.Set("t1", discovery.Status{State: rqbitapi.StateLive})
	got, ok := c.Get("t1")
	assert.True(t, ok)
	assert.Equal(t, rqbitapi.StateLive, got.State)
	assert.Equal(t, 1, c.Len())

	c.Delete("t1")
	_, ok = c.Get("t1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
