// Package httpx is the HTTP collaborator the extraction engine consumes:
// fetch text or JSON with header presets, optional cookies, and an
// opt-in retry count. The engine itself never retries; adapters pass
// Retries: 0 unless a caller explicitly asked for more.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"convograb/internal/domain"
	"convograb/internal/metrics"
)

const defaultTimeout = 60 * time.Second

// browserHeaders mimics a regular Chrome request so provider endpoints
// that reject obvious bots still answer.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// Options controls a single fetch.
type Options struct {
	Headers map[string]string
	Cookies []*http.Cookie
	Retries int  // extra attempts after the first; 0 = no retry
	NoSpoof bool // skip the browser header preset
}

// Client wraps a pooled http.Client.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

// New creates a client with connection pooling. A zero timeout uses the
// default.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		http:   &http.Client{Timeout: timeout, Transport: transport},
		logger: logger,
	}
}

// FetchText GETs a URL and returns the response body as a string.
func (c *Client) FetchText(ctx context.Context, url string, opts Options) (string, error) {
	body, err := c.do(ctx, http.MethodGet, url, nil, "", opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FetchJSON GETs a URL and decodes the response body into out.
func (c *Client) FetchJSON(ctx context.Context, url string, out any, opts Options) error {
	body, err := c.do(ctx, http.MethodGet, url, nil, "", opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostForm POSTs a urlencoded body and returns the raw response text.
func (c *Client) PostForm(ctx context.Context, url, form string, opts Options) (string, error) {
	body, err := c.do(ctx, http.MethodPost, url, []byte(form), "application/x-www-form-urlencoded;charset=UTF-8", opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte, contentType string, opts Options) ([]byte, error) {
	build := func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = newByteReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		if !opts.NoSpoof {
			for k, v := range browserHeaders {
				req.Header.Set(k, v)
			}
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		for _, ck := range opts.Cookies {
			req.AddCookie(ck)
		}
		return req, nil
	}

	metrics.FetchesTotal.Inc()
	start := time.Now()
	resp, err := c.doWithRetry(ctx, build, opts.Retries)
	metrics.FetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.WrapAppError(domain.ErrFetchFailed, fmt.Sprintf("fetch %s", url), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapAppError(domain.ErrFetchFailed, fmt.Sprintf("read %s", url), err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.NewAppError(domain.ErrRateLimited, fmt.Sprintf("rate limited by %s", url))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.NewAppError(domain.ErrFetchFailed,
			fmt.Sprintf("%s returned HTTP %d", url, resp.StatusCode))
	}
	return raw, nil
}
