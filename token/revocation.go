package token

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// RevokedTokenCache remembers revoked access token handles until they would have expired anyway.
// It only ever answers "known revoked"; a miss must fall through to the store.
type RevokedTokenCache interface {
	Add(handle string, exp time.Time)
	IsRevoked(handle string) bool
	Cleanup() // Remove expired entries
}

// TTLRevokedTokenCache is a RevokedTokenCache backed by ttlcache.
type TTLRevokedTokenCache struct {
	cache   *ttlcache.Cache[string, struct{}]
	nowFunc func() time.Time
}

var _ RevokedTokenCache = (*TTLRevokedTokenCache)(nil)

func NewRevokedTokenCache(capacity uint64) *TTLRevokedTokenCache {
	opts := []ttlcache.Option[string, struct{}]{
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, struct{}](capacity))
	}
	return &TTLRevokedTokenCache{
		cache:   ttlcache.New[string, struct{}](opts...),
		nowFunc: time.Now,
	}
}

func (c *TTLRevokedTokenCache) Add(handle string, exp time.Time) {
	ttl := exp.Sub(c.nowFunc())
	if ttl <= 0 {
		return
	}
	c.cache.Set(handle, struct{}{}, ttl)
}

func (c *TTLRevokedTokenCache) IsRevoked(handle string) bool {
	return c.cache.Get(handle) != nil
}

func (c *TTLRevokedTokenCache) Cleanup() {
	c.cache.DeleteExpired()
}

func (c *TTLRevokedTokenCache) Len() int {
	return c.cache.Len()
}
