package httpx

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"context"
)

func newByteReader(b []byte) io.Reader { return bytes.NewReader(b) }

// doWithRetry executes a request, retrying transient failures (network
// errors and 5xx) up to maxRetries extra attempts with exponential
// backoff and jitter. 429 is NOT retried here; the caller maps it to a
// typed rate-limit error instead.
func (c *Client) doWithRetry(ctx context.Context, buildReq func() (*http.Request, error), maxRetries int) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * time.Second
			jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
			backoff := base + jitter
			c.logger.Warn("retrying request", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				c.logger.Warn("request failed, will retry", "error", err)
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 500 && attempt < maxRetries {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
			c.logger.Warn("server error, will retry", "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}
