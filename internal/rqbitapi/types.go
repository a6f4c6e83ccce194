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

// Package rqbitapi is a typed client over the upstream rqbit HTTP API
// described in §6 of the spec: listing torrents, fetching their details and
// piece bitfields, streaming file bytes, and the administrative
// forget/delete/pause/start calls.
package rqbitapi

// TorrentSummary is one entry of GET /torrents.
type TorrentSummary struct {
	ID           int    `json:"id"`
	InfoHash     string `json:"info_hash"`
	Name         string `json:"name"`
	OutputFolder string `json:"output_folder"`
}

// TorrentFile is one file within a torrent's details, named by its
// path components (e.g. ["subdir", "movie.mkv"]).
type TorrentFile struct {
	Components []string `json:"components"`
	Length     uint64   `json:"length"`
}

// TorrentDetails is the body of GET /torrents/{id}.
type TorrentDetails struct {
	ID          int           `json:"id"`
	InfoHash    string        `json:"info_hash"`
	Name        string        `json:"name"`
	Files       []TorrentFile `json:"files"`
	PieceLength uint32        `json:"piece_length"`
}

// State is the torrent lifecycle state reported by stats/v1, mirroring the
// {Live, Paused, Error, Finished} state machine in §4.8.
type State int

const (
	StateLive State = iota
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Stats is the body of GET /torrents/{id}/stats/v1.
type Stats struct {
	State    State  `json:"-"`
	RawState string `json:"state"`
	Error    string `json:"error,omitempty"`
	Finished bool   `json:"finished"`
	Progress float64 `json:"progress_bytes"`
}

func parseState(raw, errMsg string) State {
	if errMsg != "" {
		return StateError
	}
	switch raw {
	case "paused":
		return StatePaused
	case "error":
		return StateError
	default:
		return StateLive
	}
}
