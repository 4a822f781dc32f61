package httpretry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// Policy controls retry behaviour.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultPolicy = Policy{MaxTries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}

// Client executes HTTP requests with exponential backoff.
// Transport errors and 5xx/429 responses are retried; other statuses are permanent.
type Client struct {
	http   Doer
	policy Policy
}

func New(httpClient Doer, policy Policy) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	return &Client{http: httpClient, policy: policy}
}

// Do builds a fresh request per attempt with newReq and returns the body of the first 2xx response.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return c.do(ctx, newReq, c.policy.MaxTries)
}

// DoOnce executes the request exactly once. Used for non-idempotent calls such as queueing a fax.
func (c *Client) DoOnce(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	return c.do(ctx, newReq, 1)
}

func (c *Client) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), tries uint) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	if c.policy.InitialInterval > 0 {
		b.InitialInterval = c.policy.InitialInterval
	}
	if c.policy.MaxInterval > 0 {
		b.MaxInterval = c.policy.MaxInterval
	}

	operation := func() ([]byte, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: body}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	return backoff.Retry(ctx, operation, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
