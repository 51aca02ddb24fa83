// Package pagecache implements the bounded LRU page cache (C7): a
// fixed-capacity map from page number to owned, parsed records.
//
// Grounded on the teacher's internal/common/cache.go BlockCache (head/tail
// doubly-linked list, addToHead/moveToHead/evict). Adapted in two ways the
// original wasn't: capacity is measured in page count rather than bytes
// (spec §4.7); the cache is also not internally synchronized, since the
// reader serializes all access to it (spec §5), so the teacher's
// sync.RWMutex is dropped.
package pagecache

import "github.com/tablescan/tablescan/internal/record"

// DefaultCapacity is the page count used when a reader is not configured
// with an explicit capacity.
const DefaultCapacity = 10

type entry struct {
	page    int64
	records []record.Record
	prev    *entry
	next    *entry
}

// Cache is a bounded LRU keyed by page number.
type Cache struct {
	items    map[int64]*entry
	head     *entry // most recently used
	tail     *entry // least recently used
	capacity int
}

// New creates a Cache with room for capacity pages. A non-positive capacity
// is replaced with DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		items:    make(map[int64]*entry, capacity),
		capacity: capacity,
	}
}

// Get returns the cached records for page, promoting it to most-recently-used
// on a hit.
func (c *Cache) Get(page int64) ([]record.Record, bool) {
	e, ok := c.items[page]
	if !ok {
		return nil, false
	}
	c.moveToHead(e)
	return e.records, true
}

// Put stores records under page, evicting the least-recently-used page if
// the cache is at capacity. Replaces any existing entry for page.
func (c *Cache) Put(page int64, records []record.Record) {
	if existing, ok := c.items[page]; ok {
		existing.records = records
		c.moveToHead(existing)
		return
	}

	for len(c.items) >= c.capacity && c.tail != nil {
		c.evict()
	}

	e := &entry{page: page, records: records}
	c.items[page] = e
	c.addToHead(e)
}

// Clear empties the cache. Used whenever the reader adopts a new index,
// since row numbering (and therefore page contents) may have shifted.
func (c *Cache) Clear() {
	c.items = make(map[int64]*entry, c.capacity)
	c.head = nil
	c.tail = nil
}

// Len reports the number of pages currently cached.
func (c *Cache) Len() int {
	return len(c.items)
}

func (c *Cache) addToHead(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) moveToHead(e *entry) {
	if e == c.head {
		return
	}
	c.removeFromList(e)
	c.addToHead(e)
}

func (c *Cache) removeFromList(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *Cache) evict() {
	victim := c.tail
	if victim == nil {
		return
	}
	c.removeFromList(victim)
	delete(c.items, victim.page)
}
