package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheKey(t *testing.T) {
	key := NewCacheKey(ToolExtractKeyPoints, "title\x00content")

	assert.Equal(t, ToolExtractKeyPoints, key.Task)
	assert.NotZero(t, key.InputHash)
	assert.Contains(t, key.String(), "task:extract_key_points:hash:")

	assert.Equal(t, key, NewCacheKey(ToolExtractKeyPoints, "title\x00content"))
	assert.NotEqual(t, key.InputHash, NewCacheKey(ToolExtractKeyPoints, "other").InputHash)
}

func TestResultCache_OnlyCacheableTasks(t *testing.T) {
	cache := NewResultCache(10)

	cache.Set(NewCacheKey(ToolGenerateSummary, "x"), "summary")
	assert.Equal(t, 0, cache.Size())

	cache.Set(NewCacheKey(ToolExtractKeyPoints, "x"), `["a"]`)
	assert.Equal(t, 1, cache.Size())

	_, ok := cache.Get(NewCacheKey(ToolGenerateSummary, "x"))
	assert.False(t, ok)
}

func TestResultCache_GetAndExpiry(t *testing.T) {
	cache := NewResultCache(10)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	key := NewCacheKey(ToolExtractKeyPoints, "post")
	_, ok := cache.Get(key)
	assert.False(t, ok)

	cache.Set(key, `["a","b"]`)
	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, got)

	now = now.Add(31 * time.Minute)
	_, ok = cache.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Size())

	stats := cache.Stats()[ToolExtractKeyPoints]
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewResultCache(2)

	first := NewCacheKey(ToolExtractKeyPoints, "1")
	second := NewCacheKey(ToolExtractKeyPoints, "2")
	third := NewCacheKey(ToolExtractKeyPoints, "3")

	cache.Set(first, "one")
	cache.Set(second, "two")
	_, ok := cache.Get(first)
	require.True(t, ok)

	cache.Set(third, "three")
	assert.Equal(t, 2, cache.Size())

	_, ok = cache.Get(second)
	assert.False(t, ok, "second was least recently used")
	_, ok = cache.Get(first)
	assert.True(t, ok)
	_, ok = cache.Get(third)
	assert.True(t, ok)
}

func TestResultCache_Overwrite(t *testing.T) {
	cache := NewResultCache(0)
	key := NewCacheKey(ToolExtractKeyPoints, "post")

	cache.Set(key, "old")
	cache.Set(key, "new")

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, cache.Size())
}
