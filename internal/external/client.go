// Package external wraps the optional upstream services the advisor can call
// when a network is available. Every outbound request goes through
// BaseClient, which adds a circuit breaker, bounded retries and error mapping
// to types.AppError.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"krishi/internal/types"
)

// RetryPolicy bounds retries on 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns two retries between 250ms and 3s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    3 * time.Second,
	}
}

// BreakerObserver receives circuit breaker transitions as 0 (closed),
// 1 (half-open) or 2 (open).
type BreakerObserver interface {
	SetBreakerState(upstream string, state float64)
}

// BaseClient is shared by the provider clients.
type BaseClient struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	policy  RetryPolicy
	agent   string
	sleep   func(context.Context, time.Duration) error
}

// Option configures a BaseClient.
type Option func(*BaseClient)

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *BaseClient) { c.sleep = fn }
}

// NewBaseClient builds a client whose breaker opens after five consecutive
// failures and probes again after 30 seconds.
func NewBaseClient(name string, httpClient *http.Client, policy RetryPolicy, userAgent string, observer BreakerObserver, opts ...Option) *BaseClient {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	if observer != nil {
		settings.OnStateChange = func(upstream string, _, to gobreaker.State) {
			observer.SetBreakerState(upstream, breakerGauge(to))
		}
	}

	c := &BaseClient{
		name:    name,
		client:  httpClient,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		policy:  policy,
		agent:   userAgent,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req, retrying 429 and 5xx responses. Other responses are returned
// to the caller, who must close the body. Exhausted retries, transport
// failures and an open breaker become AppErrors.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	attempts := 1 + c.policy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
				return r, fmt.Errorf("%s returned %d", c.name, r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp, lastErr = resp, err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if attempt == attempts-1 {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt, resp)); err != nil {
			lastErr = err
			break
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff honours Retry-After in seconds, otherwise uses exponential backoff
// with jitter in [MinWait, min(MaxWait, MinWait*2^attempt)].
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return min(time.Duration(secs)*time.Second, c.policy.MaxWait)
		}
	}
	lo := float64(c.policy.MinWait)
	hi := math.Min(lo*math.Pow(2, float64(attempt)), float64(c.policy.MaxWait))
	if hi <= lo {
		return c.policy.MinWait
	}
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	details := map[string]any{"upstream": c.name}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			c.name+" is temporarily unavailable", err, details)
	case resp != nil && resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamRateLimited,
			c.name+" rate limit exceeded", err, details)
	case resp != nil:
		details["status"] = resp.StatusCode
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s returned %d after retries", c.name, resp.StatusCode), err, details)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamUnavailable,
		c.name+" request failed", err, details)
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
