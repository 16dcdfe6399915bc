package memory

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"banca-client/pkg/cache"
)

// MemoryCache is the in-process L1 layer. It is safe for concurrent use,
// expires entries by TTL, and evicts the least recently used entry when
// MaxSize is reached.
type MemoryCache struct {
	mu     sync.Mutex
	data   map[string]*list.Element
	lru    *list.List
	config MemoryCacheConfig
	closed bool

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

type entry struct {
	key string
	cache.Entry
}

// MemoryCacheConfig holds configuration for the memory cache.
type MemoryCacheConfig struct {
	// Name is the cache layer identifier
	Name string

	// MaxSize is the maximum number of entries (0 = unlimited)
	MaxSize int

	// DefaultTTL is used when Set is called with a zero TTL
	DefaultTTL time.Duration

	// MaxTTL caps entry TTLs (0 = uncapped)
	MaxTTL time.Duration

	// CleanupInterval is how often expired entries are swept (0 = default, <0 = never)
	CleanupInterval time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
}

// NewMemoryCache creates a new in-memory cache and starts its sweeper.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	c := &MemoryCache{
		data:        make(map[string]*list.Element),
		lru:         list.New(),
		config:      config,
		stopCleanup: make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanup(config.CleanupInterval)
	}

	return c
}

func (c *MemoryCache) layerConfig() cache.LayerConfig {
	return cache.LayerConfig{
		Name:       c.config.Name,
		DefaultTTL: c.config.DefaultTTL,
		MaxTTL:     c.config.MaxTTL,
	}
}

// Get returns a copy of the stored payload.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, cache.ErrClosed
	}

	el, ok := c.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}

	e := el.Value.(*entry)
	if e.ExpiredAt(c.config.Now()) {
		c.removeElement(el)
		return nil, cache.ErrKeyNotFound
	}

	c.lru.MoveToFront(el)
	return clone(e.Value), nil
}

// Set stores a copy of value.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}

	ttl = c.layerConfig().EffectiveTTL(ttl)
	stored := cache.NewEntry(clone(value), c.config.Now(), ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return cache.ErrClosed
	}

	if el, ok := c.data[key]; ok {
		el.Value.(*entry).Entry = stored
		c.lru.MoveToFront(el)
		return nil
	}

	if c.config.MaxSize > 0 {
		for c.lru.Len() >= c.config.MaxSize {
			c.removeElement(c.lru.Back())
		}
	}

	c.data[key] = c.lru.PushFront(&entry{key: key, Entry: stored})
	return nil
}

// Delete removes a key from the cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.data[key]; ok {
		c.removeElement(el)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix and reports how many
// were dropped.
func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, el := range c.data {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			removed++
		}
	}
	return removed, nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*list.Element)
	c.lru.Init()
	return nil
}

// Name returns the cache layer name.
func (c *MemoryCache) Name() string {
	return c.config.Name
}

// Close stops the sweeper and drops all data. Further calls fail with ErrClosed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.data = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	close(c.stopCleanup)
	c.wg.Wait()
	return nil
}

// removeElement must be called with c.mu held.
func (c *MemoryCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	c.lru.Remove(el)
	delete(c.data, el.Value.(*entry).key)
}

func (c *MemoryCache) cleanup(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.config.Now()
	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry).ExpiredAt(now) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() MemoryCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := MemoryCacheStats{
		Size:     len(c.data),
		MaxSize:  c.config.MaxSize,
		Capacity: c.config.MaxSize,
	}
	if stats.Capacity == 0 {
		stats.Capacity = -1
	}
	return stats
}

// MemoryCacheStats holds cache statistics.
type MemoryCacheStats struct {
	Size     int // Current number of entries
	MaxSize  int // Maximum allowed entries (0 = unlimited)
	Capacity int // Effective capacity (-1 = unlimited)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
