// Copyright 2025 Kadir Pekel
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

// Package httpclient wraps net/http with retry-after aware retries for
// model provider APIs. Transient upstream failures (429, 5xx) are retried
// with the delay the provider asked for when its headers carry one.
package httpclient

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// RetryStrategy classifies a response status for the retry loop.
type RetryStrategy int

const (
	// NoRetry returns the response as-is.
	NoRetry RetryStrategy = iota

	// ConservativeRetry retries server errors a couple of times with short
	// fixed delays.
	ConservativeRetry

	// SmartRetry retries rate limits using the provider's own retry-after
	// or reset headers, falling back to exponential backoff.
	SmartRetry
)

// RateLimitInfo is what a provider's rate limit headers said about when to
// come back.
type RateLimitInfo struct {
	RetryAfter time.Duration
	// ResetTime is the unix second the limit window resets at.
	ResetTime int64
}

// HeaderParser extracts RateLimitInfo from provider-specific headers.
type HeaderParser func(http.Header) RateLimitInfo

// StrategyFunc maps a status code to a retry strategy.
type StrategyFunc func(statusCode int) RetryStrategy

// Client is a retrying HTTP client. Its Do signature matches
// *http.Client so providers can swap it in without changes.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	parser     HeaderParser
	strategy   StrategyFunc
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying transport client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// WithMaxRetries bounds the retry loop.
func WithMaxRetries(max int) Option {
	return func(c *Client) { c.maxRetries = max }
}

// WithBaseDelay sets the backoff base used when no header names a delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) { c.baseDelay = delay }
}

// WithHeaderParser sets the provider's rate limit header parser.
func WithHeaderParser(parser HeaderParser) Option {
	return func(c *Client) { c.parser = parser }
}

// WithStrategy overrides the status-to-strategy mapping.
func WithStrategy(strategy StrategyFunc) Option {
	return func(c *Client) { c.strategy = strategy }
}

// WithLogger sets the logger retries are reported on.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a retrying client with sane defaults.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 5,
		baseDelay:  2 * time.Second,
		strategy:   DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// DefaultStrategy retries rate limits smartly and server errors
// conservatively.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do issues the request, retrying per strategy. Like *http.Client.Do, a
// non-nil error means the request never completed; a response that stayed
// non-2xx through the retry budget comes back with a nil error so the
// caller can read the upstream error payload. The caller owns closing the
// returned body. Requests with a GetBody func are safe to retry; others
// retry only if the first attempt never consumed the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("recreating request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		var info RateLimitInfo
		if c.parser != nil {
			info = c.parser(resp.Header)
		}
		delay := c.delay(c.strategy(resp.StatusCode), attempt, info)
		if delay <= 0 || attempt >= c.maxRetries {
			return resp, nil
		}

		// Drain so the connection can be reused.
		resp.Body.Close()
		c.logger.Warn("retrying provider request",
			"status", resp.StatusCode, "delay", delay, "attempt", attempt+1, "max", c.maxRetries)
		time.Sleep(delay)
	}
}

func (c *Client) delay(strategy RetryStrategy, attempt int, info RateLimitInfo) time.Duration {
	switch strategy {
	case SmartRetry:
		if info.RetryAfter > 0 {
			return info.RetryAfter
		}
		if info.ResetTime > 0 {
			if d := time.Until(time.Unix(info.ResetTime, 0)); d > 0 {
				return d
			}
		}
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		return backoff + time.Duration(float64(backoff)*0.1)

	case ConservativeRetry:
		// Server errors get two quick retries, then give up.
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second

	default:
		return 0
	}
}
