package promptl

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// TemplateCache caches parsed templates keyed by document path and source
// content, so unchanged documents and references are parsed once.
type TemplateCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	config  TemplateCacheConfig
	stats   TemplateCacheStats
	now     func() time.Time
}

// templateCacheEntry holds a cached template with metadata.
type templateCacheEntry struct {
	key       string
	template  *Template
	expiresAt time.Time
}

// TemplateCacheConfig configures the template cache behavior.
type TemplateCacheConfig struct {
	// TTL is how long parsed templates are kept. Default: 10 minutes.
	TTL time.Duration

	// MaxEntries is the maximum number of cached templates. Default: 512.
	MaxEntries int
}

// TemplateCacheStats tracks cache performance metrics.
type TemplateCacheStats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	EntryCount int
}

// DefaultTemplateCacheConfig returns sensible defaults for template caching.
func DefaultTemplateCacheConfig() TemplateCacheConfig {
	return TemplateCacheConfig{
		TTL:        DefaultCacheTTL,
		MaxEntries: DefaultCacheMaxEntries,
	}
}

// NewTemplateCache creates a new template cache.
func NewTemplateCache(config TemplateCacheConfig) *TemplateCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheMaxEntries
	}
	return &TemplateCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		config:  config,
		now:     time.Now,
	}
}

// Get returns the cached template for path and source, if present and fresh.
func (c *TemplateCache) Get(path, source string) (*Template, bool) {
	key := templateCacheKey(path, source)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	entry := elem.Value.(*templateCacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.stats.Misses++
		return nil, false
	}
	c.lru.MoveToFront(elem)
	c.stats.Hits++
	return entry.template, true
}

// Set stores a parsed template, evicting the least recently used entry
// when the cache is full.
func (c *TemplateCache) Set(path, source string, tmpl *Template) {
	key := templateCacheKey(path, source)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*templateCacheEntry)
		entry.template = tmpl
		entry.expiresAt = c.now().Add(c.config.TTL)
		c.lru.MoveToFront(elem)
		return
	}

	for c.lru.Len() >= c.config.MaxEntries {
		c.removeElement(c.lru.Back())
		c.stats.Evictions++
	}

	c.entries[key] = c.lru.PushFront(&templateCacheEntry{
		key:       key,
		template:  tmpl,
		expiresAt: c.now().Add(c.config.TTL),
	})
	c.stats.EntryCount = len(c.entries)
}

// Clear removes all entries from the cache.
func (c *TemplateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.stats.EntryCount = 0
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *TemplateCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		if now.After(elem.Value.(*templateCacheEntry).expiresAt) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Stats returns current cache statistics.
func (c *TemplateCache) Stats() TemplateCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (c *TemplateCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total)
}

// removeElement must be called with mu held
func (c *TemplateCache) removeElement(elem *list.Element) {
	entry := c.lru.Remove(elem).(*templateCacheEntry)
	delete(c.entries, entry.key)
	c.stats.EntryCount = len(c.entries)
}

func templateCacheKey(path, source string) string {
	sum := sha256.Sum256([]byte(source))
	return path + ":" + hex.EncodeToString(sum[:16])
}
