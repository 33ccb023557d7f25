// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/jamcast/jamd/internal/log"
	"github.com/jamcast/jamd/internal/metrics"
)

const cacheKeyPrefix = "jamd:track:"

// Cache is a read-through Redis cache in front of another Resolver.
// Concurrent lookups for the same reference are collapsed to one upstream
// call. Cache failures degrade to direct resolution, never to a hard error.
type Cache struct {
	next  Resolver
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewCache wraps next with a Redis-backed cache.
func NewCache(next Resolver, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{next: next, redis: client, ttl: ttl}
}

func (c *Cache) ResolveTrack(ctx context.Context, ref string) (*Track, error) {
	key := cacheKeyPrefix + ref

	if data, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var t Track
		if err := json.Unmarshal(data, &t); err == nil {
			metrics.CatalogLookupsTotal.WithLabelValues("hit").Inc()
			return &t, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger := log.WithComponent("catalog")
		logger.Warn().Err(err).
			Str(log.FieldTrackRef, ref).
			Msg("catalog cache read failed, resolving directly")
	}

	v, err, _ := c.group.Do(ref, func() (interface{}, error) {
		t, err := c.next.ResolveTrack(ctx, ref)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(t); err == nil {
			if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
				logger := log.WithComponent("catalog")
				logger.Warn().Err(err).
					Str(log.FieldTrackRef, ref).
					Msg("catalog cache write failed")
			}
		}
		return t, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.CatalogLookupsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.CatalogLookupsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.CatalogLookupsTotal.WithLabelValues("resolved").Inc()
	return v.(*Track), nil
}

var _ Resolver = (*Cache)(nil)
