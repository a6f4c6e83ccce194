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
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/rqbit-fuse/rqbit-fuse/internal/apperr"
	"github.com/rqbit-fuse/rqbit-fuse/internal/logger"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	defaultListCacheTTL   = 30 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultRetryAttempts  = 4
)

// Client is a typed, retrying wrapper over the upstream rqbit REST surface.
// One Client is shared by reference across the bridge worker, the
// discovery loop, and the stream manager, exactly as the spec's §3
// ownership summary requires.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
	tracer     *logger.HTTPTracer

	requestTimeout time.Duration
	retryAttempts  uint

	listCacheTTL time.Duration
	listCache    cachedList
	listGroup    singleflight.Group

	// Backpressure: bounds concurrent in-flight reads, per §5.
	readSemaphore *semaphore.Weighted
}

type cachedList struct {
	mu        chan struct{} // 1-buffered mutex
	torrents  []TorrentSummary
	fetchedAt time.Time
}

func newCachedList() cachedList {
	c := cachedList{mu: make(chan struct{}, 1)}
	c.mu <- struct{}{}
	return c
}

// Options configures a Client.
type Options struct {
	BaseURL            string
	Username, Password string
	RequestTimeout     time.Duration
	RetryAttempts      uint
	ListCacheTTL       time.Duration
	MaxConcurrentReads int64
	Transport          http.RoundTripper
}

// NewClient builds a Client. A zero Options field falls back to the
// defaults named in §4.3/§5 of the spec (30s list cache TTL, a bounded
// concurrent-read semaphore, exponential retry backoff).
func NewClient(opts Options) *Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.ListCacheTTL == 0 {
		opts.ListCacheTTL = defaultListCacheTTL
	}
	if opts.MaxConcurrentReads == 0 {
		opts.MaxConcurrentReads = 64
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Username != "" || opts.Password != "" {
		transport = &basicAuthTransport{base: transport, username: opts.Username, password: opts.Password}
	}

	return &Client{
		httpClient:     &http.Client{Transport: transport},
		baseURL:        opts.BaseURL,
		log:            logger.New("rqbitapi"),
		requestTimeout: opts.RequestTimeout,
		retryAttempts:  opts.RetryAttempts,
		listCacheTTL:   opts.ListCacheTTL,
		listCache:      newCachedList(),
		readSemaphore:  semaphore.NewWeighted(opts.MaxConcurrentReads),
	}
}

// SetTracer attaches a zerolog-backed HTTP tracer that logs each request's
// method, URL, status and latency at zerolog's debug level (warn for a
// failed round trip), independent of the
// ambient slog logger used for lifecycle/error events.
func (c *Client) SetTracer(tracer *logger.HTTPTracer) {
	c.tracer = tracer
}

// basicAuthTransport injects HTTP Basic auth once per request, built the
// way the teacher's own auth package wraps a RoundTripper rather than
// reconstructing headers at every call site.
type basicAuthTransport struct {
	base               http.RoundTripper
	username, password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// doWithRetry executes fn, retrying transient apperr.Error failures with
// exponential backoff up to c.retryAttempts, per §7's propagation policy.
// fn receives the 1-based attempt number, used for tracing.
func (c *Client) doWithRetry(ctx context.Context, fn func(attempt int) error) error {
	attempt := 0
	return retry.Do(
		func() error {
			attempt++
			err := fn(attempt)
			if err != nil {
				c.log.Tracef("attempt %d failed: %v", attempt, err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return apperr.Of(err).Transient()
		}),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) url(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// classify turns a failed HTTP round trip (network error, or a status of 300
// or above; the body is not read) into the apperr taxonomy.
func classify(err error, resp *http.Response) *apperr.Error {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return apperr.New(apperr.TimedOut, "%v", err)
		}
		return apperr.New(apperr.NetworkError, "%v", err)
	}
	if resp.StatusCode >= 300 {
		return apperr.NewAPIError(resp.StatusCode, "unexpected status from %s", resp.Request.URL)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.doWithRetry(ctx, func(attempt int) error {
		ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return apperr.Wrap(apperr.InvalidArgument, err, "building request for %s", path)
		}

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

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Wrap(apperr.ParseError, err, "decoding response from %s", path)
		}
		return nil
	})
}

func (c *Client) postAction(ctx context.Context, path string) error {
	return c.doWithRetry(ctx, func(attempt int) error {
		ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
		if err != nil {
			return apperr.Wrap(apperr.InvalidArgument, err, "building request for %s", path)
		}
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
		return nil
	})
}
