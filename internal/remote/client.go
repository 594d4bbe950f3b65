// Package remote provides the resilient client for the remote agent service:
// rate limiting, retry with exponential backoff, response caching, and
// request metrics. One Client serves one (organization, token) pair and owns
// its limiter and cache state.
package remote

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/port/cache"
	"github.com/agentdeck/agentdeck/internal/resilience"
)

// Client executes authenticated calls against the remote agent service.
type Client struct {
	baseURL    string
	orgID      string
	token      string
	cfg        config.Remote
	httpClient *http.Client
	limiter    *slidingLimiter
	cache      cache.Cache
	group      singleflight.Group
	metrics    *Metrics
	breaker    *resilience.Breaker
	onSample   func(Sample)

	pollMu sync.Mutex
	polls  map[int64]struct{}

	// sleep is swappable for testing backoff schedules.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for one (orgID, token) pair with fresh limiter
// and cache state. c may be nil to disable response caching.
func NewClient(cfg config.Remote, orgID, token string, c cache.Cache) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		orgID:   orgID,
		token:   token,
		cfg:     cfg,
		// Per-attempt deadlines come from the request context.
		httpClient: &http.Client{},
		limiter:    newSlidingLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod),
		cache:      c,
		metrics:    NewMetrics(),
		polls:      make(map[int64]struct{}),
		sleep:      sleepCtx,
	}
}

// SetBreaker attaches a circuit breaker to transport-level calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Metrics returns the client's request sample buffer.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// OnSample registers a callback invoked for every recorded request sample,
// in addition to the ring buffer. Used to feed exported latency metrics.
func (c *Client) OnSample(fn func(Sample)) {
	c.onSample = fn
}

func (c *Client) record(s Sample) {
	c.metrics.Record(s)
	if c.onSample != nil {
		c.onSample(s)
	}
}

// OrgID returns the organization this client is bound to.
func (c *Client) OrgID() string {
	return c.orgID
}

// do executes one logical request. Cacheable GETs are served from the cache
// when fresh; concurrent identical misses are collapsed to a single fetch.
func (c *Client) do(ctx context.Context, method, endpoint string, useCache bool, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	if useCache && method == http.MethodGet && c.cache != nil {
		key := cacheKey(method, endpoint, payload)

		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			c.record(Sample{
				Method:   method,
				Endpoint: endpoint,
				Status:   http.StatusOK,
				Cached:   true,
				At:       time.Now(),
			})
			return data, nil
		}

		v, err, _ := c.group.Do(key, func() (any, error) {
			data, fetchErr := c.fetch(ctx, method, endpoint, payload)
			if fetchErr != nil {
				return nil, fetchErr
			}
			if setErr := c.cache.Set(ctx, key, data, c.cfg.CacheTTL); setErr != nil {
				slog.Warn("response cache store failed", "endpoint", endpoint, "error", setErr)
			}
			return data, nil
		})
		if err != nil {
			return nil, err
		}
		return v.([]byte), nil
	}

	return c.fetch(ctx, method, endpoint, payload)
}

// fetch runs the attempt loop: rate-limiter wait before every attempt,
// Retry-After honored on 429 without consuming retry budget, exponential
// backoff on network failures and 5xx up to the configured retry budget.
func (c *Client) fetch(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var lastErr error
	retries := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, status, retryAfter, err := c.attempt(ctx, method, endpoint, payload)

		switch {
		case err == nil && status < 300:
			return data, nil

		case status == http.StatusTooManyRequests:
			slog.Warn("rate limited by remote", "endpoint", endpoint, "retry_after", retryAfter)
			if sleepErr := c.sleep(ctx, retryAfter); sleepErr != nil {
				return nil, sleepErr
			}
			// 429 does not consume retry budget.

		case status == http.StatusUnauthorized:
			return nil, &AuthError{Endpoint: endpoint}

		case status == http.StatusNotFound:
			return nil, &NotFoundError{Endpoint: endpoint}

		case err == nil && status >= 400 && status < 500:
			return nil, &StatusError{Endpoint: endpoint, Status: status, Body: truncate(string(data), 200)}

		default:
			// Network failure or server error: retryable.
			lastErr = err
			if lastErr == nil {
				lastErr = fmt.Errorf("server error %d: %s", status, truncate(string(data), 200))
			}
			if retries >= c.cfg.MaxRetries {
				return nil, &TransientError{Endpoint: endpoint, Attempts: retries + 1, Err: lastErr}
			}
			delay := backoffDelay(c.cfg.RetryDelay, c.cfg.RetryBackoffFactor, retries)
			slog.Debug("retrying remote call",
				"endpoint", endpoint, "retry", retries+1, "delay", delay, "error", lastErr)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
			retries++
		}
	}
}

// attempt performs a single HTTP call with a per-attempt timeout and records
// one metrics sample whether it succeeds or not.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte) (data []byte, status int, retryAfter time.Duration, err error) {
	attemptCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	call := func() error {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return fmt.Errorf("http request: %w", doErr)
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		if status == http.StatusTooManyRequests {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}

		data, doErr = io.ReadAll(resp.Body)
		if doErr != nil {
			return fmt.Errorf("read response: %w", doErr)
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}

	c.record(Sample{
		Method:   method,
		Endpoint: endpoint,
		Status:   status,
		Latency:  time.Since(start),
		At:       time.Now(),
	})

	return data, status, retryAfter, err
}

// backoffDelay computes retryDelay * factor^retry.
func backoffDelay(base time.Duration, factor float64, retry int) time.Duration {
	return time.Duration(float64(base) * math.Pow(factor, float64(retry)))
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms. Falls back
// to one second when the header is missing or unparseable.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return time.Second
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return time.Second
}

// cacheKey derives the cache key from method, endpoint and a hash of the
// request body.
func cacheKey(method, endpoint string, payload []byte) string {
	sum := blake2b.Sum256(payload)
	return method + " " + endpoint + " " + hex.EncodeToString(sum[:8])
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
