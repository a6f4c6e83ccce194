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

package cfg

import "time"

// DefaultAPIURL is the upstream rqbit base URL used when none is given,
// per §6.
const DefaultAPIURL = "http://127.0.0.1:3030"

// Default returns the configuration used during startup before flags and
// any config file are merged in, mirroring the teacher's
// GetDefaultLoggingConfig convention of a single function owning every
// startup default.
func Default() Config {
	return Config{
		APIURL:             DefaultAPIURL,
		RequestTimeout:     15 * time.Second,
		RetryAttempts:      4,
		ListCacheTTL:       30 * time.Second,
		MaxConcurrentReads: 64,
		ReadTimeout:        30 * time.Second,
		MaxInodes:          0,
		MaxHandles:         0,
		Discovery: DiscoveryConfig{
			Interval:      10 * time.Second,
			Debounce:      2 * time.Second,
			BridgeTimeout: 5 * time.Second,
		},
		PieceGate: PieceGateConfig{Enabled: true},
		Logging:   LoggingConfig{Severity: INFO},
	}
}

// FillDefaults overwrites any zero-valued field of c with the matching
// Default() field. Bound pflags report their own zero default through
// viper once BindFlags registers them, so viper.Unmarshal can stomp the
// non-zero defaults Default() set; FillDefaults is the merge step run
// after Unmarshal to restore them wherever the user left a setting unset.
func FillDefaults(c *Config) {
	d := Default()
	if c.APIURL == "" {
		c.APIURL = d.APIURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.ListCacheTTL == 0 {
		c.ListCacheTTL = d.ListCacheTTL
	}
	if c.MaxConcurrentReads == 0 {
		c.MaxConcurrentReads = d.MaxConcurrentReads
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.Discovery.Interval == 0 {
		c.Discovery.Interval = d.Discovery.Interval
	}
	if c.Discovery.Debounce == 0 {
		c.Discovery.Debounce = d.Discovery.Debounce
	}
	if c.Discovery.BridgeTimeout == 0 {
		c.Discovery.BridgeTimeout = d.Discovery.BridgeTimeout
	}
	if c.Logging.Severity == "" {
		c.Logging.Severity = d.Logging.Severity
	}
}
