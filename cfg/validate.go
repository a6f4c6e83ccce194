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

import (
	"fmt"
	"net/url"

	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
)

func isValidURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("parsing url %q: %w", u, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("url %q must be absolute (scheme and host required)", u)
	}
	return nil
}

func isValidSeverity(s string) bool {
	switch s {
	case TRACE, DEBUG, INFO, WARNING, ERROR, OFF:
		return true
	default:
		return false
	}
}

// Validate returns a *apperr.Error of kind ValidationError if config is
// unfit to mount with, following §7's "startup validation errors abort the
// process" rule — cmd treats any non-nil return here as fatal.
func Validate(config *Config) error {
	if err := isValidURL(config.APIURL); err != nil {
		return apperr.Wrap(apperr.ValidationError, err, "invalid --api-url")
	}

	if config.RequestTimeout <= 0 {
		return apperr.New(apperr.ValidationError, "request-timeout must be positive, got %s", config.RequestTimeout)
	}

	if config.RetryAttempts > MaxRetryAttempts {
		return apperr.New(apperr.ValidationError, "retry-attempts %d exceeds maximum of %d", config.RetryAttempts, MaxRetryAttempts)
	}

	if config.ListCacheTTL < 0 {
		return apperr.New(apperr.ValidationError, "list-cache-ttl cannot be negative, got %s", config.ListCacheTTL)
	}

	if config.MaxConcurrentReads <= 0 || config.MaxConcurrentReads > MaxConcurrentReadCap {
		return apperr.New(apperr.ValidationError, "max-concurrent-reads must be in (0, %d], got %d", MaxConcurrentReadCap, config.MaxConcurrentReads)
	}

	if config.ReadTimeout <= 0 {
		return apperr.New(apperr.ValidationError, "read-timeout must be positive, got %s", config.ReadTimeout)
	}

	if config.MaxInodes < 0 {
		return apperr.New(apperr.ValidationError, "max-inodes cannot be negative, got %d", config.MaxInodes)
	}
	if config.MaxHandles < 0 {
		return apperr.New(apperr.ValidationError, "max-handles cannot be negative, got %d", config.MaxHandles)
	}

	if config.Discovery.Interval <= 0 {
		return apperr.New(apperr.ValidationError, "discovery.interval must be positive, got %s", config.Discovery.Interval)
	}
	if config.Discovery.Debounce < 0 {
		return apperr.New(apperr.ValidationError, "discovery.debounce cannot be negative, got %s", config.Discovery.Debounce)
	}
	if config.Discovery.BridgeTimeout <= 0 {
		return apperr.New(apperr.ValidationError, "discovery.bridge-timeout must be positive, got %s", config.Discovery.BridgeTimeout)
	}

	if !isValidSeverity(config.Logging.Severity) {
		return apperr.New(apperr.ValidationError, "logging.severity %q must be one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF", config.Logging.Severity)
	}

	if config.Username == "" && config.Password != "" {
		return apperr.New(apperr.ValidationError, "password given without a username")
	}

	return nil
}
