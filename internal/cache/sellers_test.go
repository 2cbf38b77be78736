package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitesh/meal_service/internal/apperr"
	"github.com/nitesh/meal_service/pkg/models"
)

// fakeRedis implements the three commands Sellers uses. Any other call
// panics through the nil embedded interface.
type fakeRedis struct {
	redis.Cmdable
	data    map[string]string
	readErr error
	sets    int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.readErr != nil {
		return redis.NewStringResult("", f.readErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	f.sets++
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingStore struct {
	users map[string]*models.User
	calls int
}

func (c *countingStore) SaveUser(ctx context.Context, u *models.User) error {
	cp := *u
	c.users[u.ID] = &cp
	return nil
}

func (c *countingStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	c.calls++
	u, ok := c.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func TestSellersReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{users: map[string]*models.User{"u1": {ID: "u1", FullName: "Maya", AverageRating: 4.8}}}
	rdb := newFakeRedis()
	s := NewSellers(backing, rdb, time.Minute)

	first, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	second, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, "Maya", first.FullName)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backing.calls)
	assert.Equal(t, 1, rdb.sets)

	require.NoError(t, s.Invalidate(ctx, "u1"))
	_, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestSellersSaveUserInvalidates(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{users: map[string]*models.User{"u1": {ID: "u1", FullName: "Maya"}}}
	rdb := newFakeRedis()
	s := NewSellers(backing, rdb, time.Minute)

	_, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, rdb.data, keyPrefix+"u1")

	require.NoError(t, s.SaveUser(ctx, &models.User{ID: "u1", FullName: "Maya R."}))
	assert.NotContains(t, rdb.data, keyPrefix+"u1")

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Maya R.", u.FullName)
}

func TestSellersNotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{users: map[string]*models.User{}}
	rdb := newFakeRedis()
	s := NewSellers(backing, rdb, time.Minute)

	_, err := s.GetUser(ctx, "ghost")
	assert.True(t, apperr.IsNotFound(err))
	assert.Zero(t, rdb.sets)
}

func TestSellersFallsBackOnRedisError(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{users: map[string]*models.User{"u1": {ID: "u1", FullName: "Maya"}}}
	rdb := newFakeRedis()
	rdb.readErr = errors.New("connection refused")
	s := NewSellers(backing, rdb, time.Minute)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Maya", u.FullName)
	assert.Equal(t, 1, backing.calls)
}

func TestSellersIgnoresCorruptEntry(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{users: map[string]*models.User{"u1": {ID: "u1", FullName: "Maya"}}}
	rdb := newFakeRedis()
	rdb.data[keyPrefix+"u1"] = "{not json"
	s := NewSellers(backing, rdb, time.Minute)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Maya", u.FullName)
	assert.Equal(t, 1, backing.calls)
}

func TestSellersWithoutRedis(t *testing.T) {
	backing := &countingStore{users: map[string]*models.User{"u1": {ID: "u1"}}}
	s := NewSellers(backing, nil, 0)

	_, err := s.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, s.Invalidate(context.Background(), "u1"))
}
