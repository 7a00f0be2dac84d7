// Package httpretry provides an HTTP client with automatic retry and
// exponential backoff for resilient external API calls, plus a generic
// Retry helper for non-HTTP operations.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gate admits one request attempt and releases whatever it holds when the
// attempt returns. (*ratelimit.Limiter).Do has this shape, so a rate limiter
// plugs in directly and every retry consumes its own admission.
type Gate func(ctx context.Context, op func(ctx context.Context) error) error

// Policy controls retry behavior: a fixed attempt ceiling and exponential
// backoff between attempts (InitialDelay, InitialDelay*Multiplier, ...).
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy is 3 attempts with 1s then 2s between them.
var DefaultPolicy = Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}

// delayBefore returns the pause before the given attempt (attempts are
// 1-based; attempt 1 has no delay).
func (p Policy) delayBefore(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
	}
	return d
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultPolicy.Multiplier
	}
	return p
}

// RetryClient wraps an HTTPDoer with retry logic. Transport errors, 429 and
// 5xx responses are retried; other statuses are returned to the caller
// immediately, including client errors.
type RetryClient struct {
	client HTTPDoer
	policy Policy
	gate   Gate
}

// NewRetryClient creates a RetryClient around the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
func NewRetryClient(client HTTPDoer, policy Policy) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RetryClient{client: client, policy: policy.normalized()}
}

// WithGate installs a per-attempt gate. The gate is entered for each attempt
// individually and exited before any backoff sleep, so backoff never holds an
// admission slot.
func (rc *RetryClient) WithGate(gate Gate) *RetryClient {
	rc.gate = gate
	return rc
}

// attempt runs one request, through the gate when one is installed.
func (rc *RetryClient) attempt(req *http.Request) (*http.Response, error) {
	if rc.gate == nil {
		return rc.client.Do(req)
	}
	var resp *http.Response
	err := rc.gate(req.Context(), func(ctx context.Context) error {
		r, err := rc.client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Do executes the HTTP request, retrying up to the policy's attempt ceiling.
// On the final attempt a retryable response is returned as-is so the caller
// can inspect the status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= rc.policy.MaxAttempts; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 1 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: failed to reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.policy.delayBefore(attempt)
			log.Printf("httpretry: attempt %d/%d for %s %s%s (waiting %s)",
				attempt, rc.policy.MaxAttempts, req.Method, req.URL.Host, req.URL.Path, delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.attempt(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			// Network/connection/timeout error
			continue
		}

		if !isRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt == rc.policy.MaxAttempts {
			return resp, nil
		}

		// Drain body for connection reuse before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("httpretry: all %d attempts failed: %w", rc.policy.MaxAttempts, lastErr)
}

// isRetryableStatus reports whether the status indicates a transient server
// condition. 429, 500, 502, 503, 504 retry; other client errors do not.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
