package identity

import (
	"context"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// jwksCache holds the hosted provider's key set for ttl.
type jwksCache struct {
	url string
	ttl time.Duration

	mu      sync.RWMutex
	set     jwk.Set
	expires time.Time
	fetch   func(ctx context.Context, url string) (jwk.Set, error)
}

func newJWKSCache(url string, ttl time.Duration) *jwksCache {
	return &jwksCache{url: url, ttl: ttl, fetch: func(ctx context.Context, u string) (jwk.Set, error) {
		return jwk.Fetch(ctx, u)
	}}
}

func (c *jwksCache) get(ctx context.Context) (jwk.Set, error) {
	c.mu.RLock()
	if c.set != nil && time.Now().Before(c.expires) {
		defer c.mu.RUnlock()
		return c.set, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set != nil && time.Now().Before(c.expires) {
		return c.set, nil
	}
	set, err := c.fetch(ctx, c.url)
	if err != nil {
		return nil, err
	}
	c.set = set
	c.expires = time.Now().Add(c.ttl)
	return set, nil
}
