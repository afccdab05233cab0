// ABOUTME: Bounded TTL set of event IDs already handled by the moderator channel
// ABOUTME: Redelivered events after a sync restart are recognised and dropped

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Defaults used when New is given non-positive values.
const (
	DefaultTTL      = 10 * time.Minute
	DefaultCapacity = 1024
)

type entry struct {
	key string
	at  time.Time
}

// Cache is a set of keys that forget themselves after a TTL. Keys are kept in
// arrival order, so expiry and eviction both pop from the front.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	index    map[string]*list.Element
	fifo     *list.List
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a cache and starts its sweeper. Call Close to stop it.
func New(ttl time.Duration, capacity int) *Cache {
	c := newCache(ttl, capacity, time.Now)
	go c.sweepLoop()
	return c
}

func newCache(ttl time.Duration, capacity int, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		index:    make(map[string]*list.Element),
		fifo:     list.New(),
		now:      now,
		stop:     make(chan struct{}),
	}
}

// Seen reports whether key was recorded within the TTL. A key that was not
// seen is recorded, so concurrent callers agree on exactly one first sighting.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expireLocked(now)

	if _, ok := c.index[key]; ok {
		return true
	}
	if c.fifo.Len() >= c.capacity {
		c.removeLocked(c.fifo.Front())
	}
	c.index[key] = c.fifo.PushBack(&entry{key: key, at: now})
	return false
}

// Len returns the number of live keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(c.now())
	return c.fifo.Len()
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.expireLocked(c.now())
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) expireLocked(now time.Time) {
	for front := c.fifo.Front(); front != nil; front = c.fifo.Front() {
		if now.Sub(front.Value.(*entry).at) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	delete(c.index, elem.Value.(*entry).key)
	c.fifo.Remove(elem)
}
