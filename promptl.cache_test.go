package promptl

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateCache_GetSet(t *testing.T) {
	cache := NewTemplateCache(DefaultTemplateCacheConfig())
	tmpl := &Template{path: "a", source: "x"}

	_, ok := cache.Get("a", "x")
	assert.False(t, ok)

	cache.Set("a", "x", tmpl)
	got, ok := cache.Get("a", "x")
	require.True(t, ok)
	assert.Same(t, tmpl, got)

	_, ok = cache.Get("a", "changed")
	assert.False(t, ok, "source is part of the key")
	_, ok = cache.Get("b", "x")
	assert.False(t, ok, "path is part of the key")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, 1, stats.EntryCount)
	assert.InDelta(t, 0.25, cache.HitRate(), 0.001)
}

func TestTemplateCache_TTL(t *testing.T) {
	cache := NewTemplateCache(TemplateCacheConfig{TTL: time.Minute, MaxEntries: 10})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Set("a", "x", &Template{})
	cache.Set("b", "y", &Template{})

	now = now.Add(30 * time.Second)
	_, ok := cache.Get("a", "x")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Get("a", "x")
	assert.False(t, ok, "expired entries miss")

	assert.Equal(t, 1, cache.Cleanup())
	assert.Equal(t, 0, cache.Stats().EntryCount)
}

func TestTemplateCache_LRUEviction(t *testing.T) {
	cache := NewTemplateCache(TemplateCacheConfig{MaxEntries: 2})

	cache.Set("a", "1", &Template{})
	cache.Set("b", "2", &Template{})
	_, _ = cache.Get("a", "1")
	cache.Set("c", "3", &Template{})

	_, ok := cache.Get("a", "1")
	assert.True(t, ok, "recently used entry survives")
	_, ok = cache.Get("b", "2")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, int64(1), cache.Stats().Evictions)
}

func TestTemplateCache_Clear(t *testing.T) {
	cache := NewTemplateCache(TemplateCacheConfig{})
	cache.Set("a", "1", &Template{})
	cache.Clear()
	_, ok := cache.Get("a", "1")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Stats().EntryCount)
	assert.Zero(t, NewTemplateCache(TemplateCacheConfig{}).HitRate())
}

func TestTemplateCache_Concurrent(t *testing.T) {
	cache := NewTemplateCache(TemplateCacheConfig{MaxEntries: 16})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("doc-%d", (i+j)%20)
				if _, ok := cache.Get(key, "src"); !ok {
					cache.Set(key, "src", &Template{})
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, cache.Stats().EntryCount, 16)
}
