package chatgpt

import (
	"context"
	"sync"
	"time"
)

// tokenSkew is subtracted from the expiry so a token is refreshed
// before it actually lapses mid-request.
const tokenSkew = 60 * time.Second

type refreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

type tokenResult struct {
	token string
	err   error
}

type tokenCall struct {
	done chan struct{}
	res  tokenResult
}

// tokenCache holds one access token per adapter instance and coalesces
// concurrent refreshes onto a single in-flight call: callers arriving
// while a refresh runs wait for its result instead of issuing duplicate
// session requests. Owned by the adapter, not package state, so
// multiple adapter instances don't collide.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	pending   *tokenCall
	refresh   refreshFunc
	now       func() time.Time
}

func newTokenCache(refresh refreshFunc) *tokenCache {
	return &tokenCache{refresh: refresh, now: time.Now}
}

// Get returns a valid cached token or refreshes one.
func (c *tokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Add(tokenSkew).Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}

	if c.pending != nil {
		call := c.pending
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.res.token, call.res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &tokenCall{done: make(chan struct{})}
	c.pending = call
	c.mu.Unlock()

	token, expiresAt, err := c.refresh(ctx)

	c.mu.Lock()
	if err == nil {
		c.token = token
		c.expiresAt = expiresAt
	}
	c.pending = nil
	c.mu.Unlock()

	call.res = tokenResult{token: token, err: err}
	close(call.done)
	return token, err
}

// Invalidate drops the cached token so the next Get refreshes.
func (c *tokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
