// Package fetchclient is the resilient HTTP client used on the runner side
// of the protocol: fetching the identity assertion and calling the broker.
// Attempts back off exponentially with random jitter, capped at 10 seconds
// between tries and a bounded attempt count, so a one-time assertion is
// never hammered past its validity window.
package fetchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts  = 5
	defaultInitialDelay = 1 * time.Second
	maxDelay            = 10 * time.Second
)

type Client struct {
	httpClient  *http.Client
	maxAttempts int
}

func New(maxAttempts int) *Client {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxAttempts: maxAttempts,
	}
}

// Do executes req, retrying on transport errors and non-2xx responses. The
// request must be rewindable (GetBody set, which http.NewRequest does for
// byte readers). Returns the first successful response; the caller closes
// its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = defaultInitialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.5
	bo.MaxInterval = maxDelay
	bo.MaxElapsedTime = 0

	var resp *http.Response
	operation := func() error {
		attempt := req.Clone(req.Context())
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("rewind request body: %w", err))
			}
			attempt.Body = body
		}

		r, err := c.httpClient.Do(attempt)
		if err != nil {
			return err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			// Drain so the connection can be reused, then retry.
			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 4096))
			_ = r.Body.Close()
			return fmt.Errorf("http status %d", r.StatusCode)
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.maxAttempts-1)), req.Context()))
	if err != nil {
		return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.maxAttempts, err)
	}
	return resp, nil
}

// DoJSON sends an optional JSON body and decodes a JSON response into out
// (skipped when out is nil).
func (c *Client) DoJSON(ctx context.Context, method, url string, headers map[string]string, body []byte, out any) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
