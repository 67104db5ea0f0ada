package utils

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletSnapshot struct {
	BalanceRub int64 `json:"balance_rub"`
	PendingRub int64 `json:"pending_rub"`
}

func TestRedisCacheMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()
	cache := NewRedisCache(rdb)

	mock.ExpectGet(WalletCacheKey(3)).RedisNil()

	var dest walletSnapshot
	found, err := cache.GetCache(context.Background(), WalletCacheKey(3), &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheSetAndGet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()
	cache := NewRedisCache(rdb)
	ctx := context.Background()

	payload, err := json.Marshal(walletSnapshot{BalanceRub: 600, PendingRub: 400})
	require.NoError(t, err)
	mock.ExpectSet(WalletCacheKey(3), payload, DefaultCacheTTL).SetVal("OK")
	mock.ExpectGet(WalletCacheKey(3)).SetVal(string(payload))

	require.NoError(t, cache.SetCache(ctx, WalletCacheKey(3), walletSnapshot{BalanceRub: 600, PendingRub: 400}, DefaultCacheTTL))

	var dest walletSnapshot
	found, err := cache.GetCache(ctx, WalletCacheKey(3), &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(600), dest.BalanceRub)
	assert.Equal(t, int64(400), dest.PendingRub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheErrorIsReported(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()
	cache := NewRedisCache(rdb)

	mock.ExpectGet(WalletCacheKey(1)).SetErr(errors.New("redis connection error"))

	var dest walletSnapshot
	found, err := cache.GetCache(context.Background(), WalletCacheKey(1), &dest)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRedisInvalidateWallet(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer rdb.Close()
	cache := NewRedisCache(rdb)

	mock.ExpectDel(WalletCacheKey(5)).SetVal(1)

	assert.NoError(t, cache.InvalidateWallet(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalCache(t *testing.T) {
	cache := NewLocalCache()
	ctx := context.Background()

	var dest walletSnapshot
	found, err := cache.GetCache(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.SetCache(ctx, "k", walletSnapshot{BalanceRub: 10}, DefaultCacheTTL))
	found, err = cache.GetCache(ctx, "k", &dest)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(10), dest.BalanceRub)

	require.NoError(t, cache.DeleteCache(ctx, "k"))
	found, _ = cache.GetCache(ctx, "k", &dest)
	assert.False(t, found)
}

func TestNilCacheIsNoop(t *testing.T) {
	var cache *Cache
	found, err := cache.GetCache(context.Background(), "k", &walletSnapshot{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.SetCache(context.Background(), "k", 1, DefaultCacheTTL))
	assert.NoError(t, cache.InvalidateWallet(context.Background(), 1))
}
