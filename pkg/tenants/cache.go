package tenants

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "dealergate:profile:"

type cachedEntry struct {
	Profile Profile `json:"profile"`
	Tenant  *Tenant `json:"tenant,omitempty"`
}

// cachedStore is a read-through Redis cache in front of another Store.
// Only ProfileWithTenant is cached; misses and Redis failures fall through.
type cachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

// NewCachedStore wraps inner with a Redis cache. A nil client returns inner.
func NewCachedStore(inner Store, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) Store {
	if rdb == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &cachedStore{Store: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *cachedStore) ProfileWithTenant(ctx context.Context, identityID string) (Profile, *Tenant, error) {
	key := cacheKeyPrefix + identityID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var e cachedEntry
		if jerr := json.Unmarshal(raw, &e); jerr == nil {
			return e.Profile, e.Tenant, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warnw("profile cache get", "identity_id", identityID, "err", err)
	}

	p, t, err := c.Store.ProfileWithTenant(ctx, identityID)
	if err != nil {
		return p, t, err
	}
	b, _ := json.Marshal(cachedEntry{Profile: p, Tenant: t})
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.log.Warnw("profile cache set", "identity_id", identityID, "err", err)
	}
	return p, t, nil
}

// UpdateProfile invalidates the cached entry after the write. The write has
// committed by then, so an invalidation failure is logged, not returned.
func (c *cachedStore) UpdateProfile(ctx context.Context, p Profile) error {
	if err := c.Store.UpdateProfile(ctx, p); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, p.ID); err != nil {
		c.log.Warnw("profile cache invalidate", "identity_id", p.ID, "err", err)
	}
	return nil
}

// DeleteTenant drops every cached profile; tenant membership is not indexed
// in the cache. Purge failures are logged; entries then expire by TTL.
func (c *cachedStore) DeleteTenant(ctx context.Context, id string) error {
	if err := c.Store.DeleteTenant(ctx, id); err != nil {
		return err
	}
	iter := c.rdb.Scan(ctx, 0, cacheKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			c.log.Warnw("profile cache purge", "key", iter.Val(), "err", err)
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Warnw("profile cache purge", "tenant_id", id, "err", err)
	}
	return nil
}

func (c *cachedStore) Invalidate(ctx context.Context, identityID string) error {
	return c.rdb.Del(ctx, cacheKeyPrefix+identityID).Err()
}
