package httpx

import (
	"context"
	"strings"
	"sync"
)

// Request-scoped state rides on context.Context so that every subtask spawned
// for one inbound request observes the same credential and GET cache, while
// unrelated concurrent requests never see each other's values. The values die
// with the request's context on every exit path.

type tokenKey struct{}

// WithToken attaches the caller's bearer credential to ctx for the duration
// of the request.
func WithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(token)
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// Token returns the credential attached to the logically current request, or
// the empty string when none was attached.
func Token(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type cacheKey struct{}

// requestCache memoizes successful GET responses by URL for one request.
// It is not a time-based cache: entries never outlive the owning context.
type requestCache struct {
	mu      sync.Mutex
	entries map[string]*Response
}

// WithRequestCache enables per-request GET memoization on ctx.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, cacheKey{}, &requestCache{
		entries: make(map[string]*Response),
	})
}

func cacheFrom(ctx context.Context) *requestCache {
	cache, _ := ctx.Value(cacheKey{}).(*requestCache)
	return cache
}

func (c *requestCache) lookup(url string) (*Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := c.entries[url]
	return resp, ok
}

func (c *requestCache) store(url string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = resp
}
