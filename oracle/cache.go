package oracle

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Cache interface {
	Get(ctx context.Context, key string) (price decimal.Decimal, ok bool, err error)
	Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration) error
}

// Cached serves prices from cache, falling back to the next oracle on miss.
// Cache errors are logged and never fail a lookup.
type Cached struct {
	Sugar *zap.SugaredLogger

	next  Oracle
	cache Cache
	ttl   time.Duration
}

func NewCached(next Oracle, cache Cache, ttl time.Duration, sugar *zap.SugaredLogger) *Cached {
	return &Cached{Sugar: sugar, next: next, cache: cache, ttl: ttl}
}

func Key(site, symbol string) string {
	return "price:" + site + ":" + symbol
}

func (c *Cached) Price(ctx context.Context, site, symbol string) (decimal.Decimal, error) {
	key := Key(site, symbol)
	p, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.Sugar.Warnf("read price cache %s error: %s", key, err)
	} else if ok {
		return p, nil
	}
	p, err = c.next.Price(ctx, site, symbol)
	if err != nil {
		return p, err
	}
	if err := c.cache.Set(ctx, key, p, c.ttl); err != nil {
		c.Sugar.Warnf("write price cache %s error: %s", key, err)
	}
	return p, nil
}

// RedisCache keeps prices as decimal strings.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) (decimal.Decimal, bool, error) {
	s, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	} else if err != nil {
		return decimal.Zero, false, err
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, errors.Wrapf(err, "bad cached price %q", s)
	}
	return p, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, price decimal.Decimal, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, price.String(), ttl).Err()
}
