// Package cache puts redis in front of seller lookups. Discovery resolves one
// seller per candidate, and the same few sellers dominate most result pages.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/nitesh/meal_service/internal/logging"
	"github.com/nitesh/meal_service/internal/metrics"
	"github.com/nitesh/meal_service/pkg/models"
)

const keyPrefix = "meal:seller:"

// UserStore is the source of truth behind the cache.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

// Sellers is a read-through cache of user profiles. Redis failures are logged
// and the lookup falls through to the store. Misses are not cached.
type Sellers struct {
	next UserStore
	rdb  redis.Cmdable
	ttl  time.Duration
}

// NewSellers wraps next. A nil rdb disables caching.
func NewSellers(next UserStore, rdb redis.Cmdable, ttl time.Duration) *Sellers {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Sellers{next: next, rdb: rdb, ttl: ttl}
}

func (s *Sellers) GetUser(ctx context.Context, id string) (*models.User, error) {
	if s.rdb == nil {
		return s.next.GetUser(ctx, id)
	}

	raw, err := s.rdb.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case err == nil:
		var u models.User
		if jerr := json.Unmarshal(raw, &u); jerr == nil {
			metrics.SellerCacheLookups.WithLabelValues("hit").Inc()
			return &u, nil
		}
		logging.Ctx(ctx).Warn().Str("seller_id", id).Msg("discarding undecodable cached seller")
	case errors.Is(err, redis.Nil):
		metrics.SellerCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.SellerCacheLookups.WithLabelValues("error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("seller_id", id).Msg("seller cache read failed")
	}

	u, err := s.next.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, u)
	return u, nil
}

func (s *Sellers) store(ctx context.Context, u *models.User) {
	b, err := json.Marshal(u)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, keyPrefix+u.ID, b, s.ttl).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("seller_id", u.ID).Msg("seller cache write failed")
	}
}

// SaveUser writes through to the store and drops the cached copy.
func (s *Sellers) SaveUser(ctx context.Context, u *models.User) error {
	if err := s.next.SaveUser(ctx, u); err != nil {
		return err
	}
	if err := s.Invalidate(ctx, u.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("seller_id", u.ID).Msg("seller cache invalidate failed")
	}
	return nil
}

// Invalidate drops a cached profile after the user changes it.
func (s *Sellers) Invalidate(ctx context.Context, id string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, keyPrefix+id).Err()
}
