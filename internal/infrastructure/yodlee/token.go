package yodlee

import (
	"sync"
	"time"
)

// tokenRefreshMargin is subtracted from a token's lifetime so it is
// renewed before the provider starts rejecting it.
const tokenRefreshMargin = 60 * time.Second

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// tokenCache holds access tokens per login name.
type tokenCache struct {
	mu     sync.Mutex
	tokens map[string]cachedToken
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]cachedToken)}
}

func (c *tokenCache) get(loginName string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tok, ok := c.tokens[loginName]
	if !ok || !now.Before(tok.expiresAt) {
		return "", false
	}
	return tok.value, true
}

func (c *tokenCache) put(loginName, value string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[loginName] = cachedToken{value: value, expiresAt: expiresAt}
}

func (c *tokenCache) invalidate(loginName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, loginName)
}
