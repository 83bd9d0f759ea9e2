package biz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	layer, cache := newTestCacheLayer()

	var loads int32
	load := func(context.Context) (*cachedValue, error) {
		atomic.AddInt32(&loads, 1)
		return &cachedValue{Name: "alice", Count: 3}, nil
	}

	v, err := GetOrLoad(ctx, layer, "k1", load)
	require.NoError(t, err)
	assert.Equal(t, "alice", v.Name)

	v, err = GetOrLoad(ctx, layer, "k1", load)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Count)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	// 无法解码的缓存按未命中处理
	cache.SetEX(ctx, "k2", []byte("not json"), time.Minute)
	v, err = GetOrLoad(ctx, layer, "k2", load)
	require.NoError(t, err)
	assert.Equal(t, "alice", v.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	layer, cache := newTestCacheLayer()

	_, err := GetOrLoad(ctx, layer, "k", func(context.Context) (int, error) {
		return 0, errors.New("database connection error")
	})
	require.Error(t, err)
	_, ok := cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestGetOrLoadCollapsesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	layer, _ := newTestCacheLayer()

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := GetOrLoad(ctx, layer, "hot", load)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 7, v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(1))
}

func TestCacheLayerInvalidation(t *testing.T) {
	ctx := context.Background()
	layer, cache := newTestCacheLayer()

	cache.SetEX(ctx, SummaryCacheKey(1), []byte("{}"), time.Minute)
	cache.SetEX(ctx, BadgesCacheKey(1), []byte("[]"), time.Minute)
	cache.SetEX(ctx, SummaryCacheKey(2), []byte("{}"), time.Minute)
	cache.SetEX(ctx, LeaderboardCacheKey(10), []byte("[]"), time.Minute)
	cache.SetEX(ctx, LeaderboardCacheKey(50), []byte("[]"), time.Minute)

	layer.InvalidateUser(ctx, 1)
	_, ok := cache.Get(ctx, SummaryCacheKey(1))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, BadgesCacheKey(1))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, SummaryCacheKey(2))
	assert.True(t, ok)

	layer.InvalidateLeaderboard(ctx)
	_, ok = cache.Get(ctx, LeaderboardCacheKey(10))
	assert.False(t, ok)
	_, ok = cache.Get(ctx, LeaderboardCacheKey(50))
	assert.False(t, ok)
}
