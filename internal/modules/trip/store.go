// README: Trip estimate cache backed by Redis.
package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "trip:estimate:%s"

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redis *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redis, ttl: ttl}
}

type cachedEstimate struct {
	DistanceMiles   float64 `json:"distance_miles"`
	DurationMinutes float64 `json:"duration_minutes"`
}

func (s *Store) Get(ctx context.Context, key string) (Trip, bool, error) {
	val, err := s.redis.Get(ctx, cacheKey(key)).Result()
	if err == redis.Nil {
		return Trip{}, false, nil
	}
	if err != nil {
		return Trip{}, false, err
	}
	var c cachedEstimate
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return Trip{}, false, err
	}
	return Trip{DistanceMiles: c.DistanceMiles, DurationMinutes: c.DurationMinutes}, true, nil
}

func (s *Store) Set(ctx context.Context, key string, t Trip) error {
	payload, err := json.Marshal(cachedEstimate{
		DistanceMiles:   t.DistanceMiles,
		DurationMinutes: t.DurationMinutes,
	})
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, cacheKey(key), payload, s.ttl).Err()
}

func cacheKey(key string) string {
	return fmt.Sprintf(cacheKeyPrefix, key)
}
