package player

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cacheMaxEntries = 1000
	cacheTTL        = 24 * time.Hour
	cacheGCInterval = 10 * time.Minute

	// resolveRetries is how many times a lookup that came back empty is
	// retried before the failure is cached.
	resolveRetries = 3
)

type cacheEntry struct {
	query   string
	result  *LoadResult
	savedAt time.Time
}

// CachedResolver wraps a Resolver with an LRU cache and upstream rate
// limiting. Identical queries within the TTL never hit the network twice,
// and transiently empty results are retried before giving up.
type CachedResolver struct {
	upstream Resolver
	limiter  *rate.Limiter

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front is most recent

	done chan struct{}
	once sync.Once
}

// NewCachedResolver wraps upstream. limiter may be nil to disable
// throttling. The background eviction loop starts immediately; call Close
// to stop it.
func NewCachedResolver(upstream Resolver, limiter *rate.Limiter) *CachedResolver {
	c := &CachedResolver{
		upstream: upstream,
		limiter:  limiter,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		done:     make(chan struct{}),
	}
	go c.gcLoop()
	return c
}

// Close stops the eviction loop.
func (c *CachedResolver) Close() {
	c.once.Do(func() { close(c.done) })
}

// Resolve returns the cached result for query, or performs (and caches) an
// upstream lookup.
func (c *CachedResolver) Resolve(ctx context.Context, query string) (*LoadResult, error) {
	if result, ok := c.get(query); ok {
		return result, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var result *LoadResult
	var err error
	for attempt := 0; attempt < resolveRetries; attempt++ {
		result, err = c.upstream.Resolve(ctx, query)
		if err != nil {
			return nil, err
		}
		if result != nil && !result.Failed && len(result.Tracks) > 0 {
			break
		}
		logQueueDebug("Empty result for %q, attempt %d/%d", query, attempt+1, resolveRetries)
	}

	c.put(query, result)
	return result, nil
}

func (c *CachedResolver) get(query string) (*LoadResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[query]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Since(entry.savedAt) > cacheTTL {
		c.order.Remove(el)
		delete(c.entries, query)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.result, true
}

func (c *CachedResolver) put(query string, result *LoadResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[query]; ok {
		entry := el.Value.(*cacheEntry)
		entry.result = result
		entry.savedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}
	c.entries[query] = c.order.PushFront(&cacheEntry{
		query:   query,
		result:  result,
		savedAt: time.Now(),
	})
	for c.order.Len() > cacheMaxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).query)
	}
}

// Len returns the number of cached queries.
func (c *CachedResolver) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *CachedResolver) gcLoop() {
	ticker := time.NewTicker(cacheGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *CachedResolver) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if time.Since(entry.savedAt) > cacheTTL {
			c.order.Remove(el)
			delete(c.entries, entry.query)
			removed++
		}
		el = prev
	}
	if removed > 0 {
		logQueueDebug("Evicted %d expired resolver cache entries", removed)
	}
}
