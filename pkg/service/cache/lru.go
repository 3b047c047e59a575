package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/ajitpratap0/recordflow/pkg/record"
)

type lruEntry struct {
	key       string
	value     *record.Record
	expiresAt time.Time
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// lru is a thread-safe least-recently-used map of records. A zero ttl
// disables expiry.
type lru struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
	onEvict func(key string)
}

func newLRU(maxSize int, ttl time.Duration) *lru {
	return &lru{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// get returns the entry and marks it recently used. Expired entries are
// removed and reported as missing.
func (c *lru) get(key string) (*record.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := element.Value.(*lruEntry)
	if entry.expired(c.now()) {
		c.removeElement(element)
		return nil, false
	}
	c.order.MoveToFront(element)
	return entry.value, true
}

// set stores value and returns true when a new key was added.
func (c *lru) set(key string, value *record.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if element, ok := c.items[key]; ok {
		entry := element.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(element)
		return false
	}

	element := c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = element
	for len(c.items) > c.maxSize {
		oldest := c.order.Back()
		c.removeElement(oldest)
		if c.onEvict != nil {
			c.onEvict(oldest.Value.(*lruEntry).key)
		}
	}
	return true
}

func (c *lru) delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(element)
	return true
}

func (c *lru) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *lru) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.items))
	for element := c.order.Front(); element != nil; element = element.Next() {
		out = append(out, element.Value.(*lruEntry).key)
	}
	return out
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// removeElement must be called with mu held.
func (c *lru) removeElement(element *list.Element) {
	c.order.Remove(element)
	delete(c.items, element.Value.(*lruEntry).key)
}
