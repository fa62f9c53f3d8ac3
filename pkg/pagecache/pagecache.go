package pagecache

import (
	"container/list"
	"fmt"
	"sync"
)

// Entry is a cached, decoded page. SerializedSize is used for budget
// tracking; it need not match the in-memory footprint exactly.
type Entry interface {
	SerializedSize() int
}

type slot[V Entry] struct {
	addr    int64
	value   V
	element *list.Element
	pinned  int
}

// Cache is an LRU cache of decoded pages keyed by physical block address,
// with pin/unpin reference counting (pinned pages survive eviction) and
// optional memory-budget-driven eviction under pressure.
//
// Grounded on the teacher's pager.Pager cache/LRU fields, generalized
// from a fixed uint32 page-number keyspace and single PageType to an
// int64 block-address keyspace holding any decoded page variant.
type Cache[V Entry] struct {
	mu        sync.Mutex
	component string
	capacity  int
	slots     map[int64]*slot[V]
	lru       *list.List
	budget    *Budget
}

// New creates a page cache. component names this cache's budget bucket
// (e.g. "page_cache", "hot_node_cache"); budget may be nil to disable
// memory-pressure eviction and rely on capacity alone.
func New[V Entry](component string, capacity int, budget *Budget) *Cache[V] {
	if capacity <= 0 {
		capacity = 1000
	}
	if budget != nil {
		budget.RegisterComponent(component)
	}
	return &Cache[V]{
		component: component,
		capacity:  capacity,
		slots:     make(map[int64]*slot[V]),
		lru:       list.New(),
		budget:    budget,
	}
}

// Get returns the cached value at addr, pinning it, or ok=false on miss.
// Callers must call Unpin when done with the returned value.
func (c *Cache[V]) Get(addr int64) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, found := c.slots[addr]
	if !found {
		return value, false
	}
	s.pinned++
	c.lru.MoveToFront(s.element)
	if c.budget != nil {
		c.budget.RecordAccess(c.component, budgetKey(addr))
	}
	return s.value, true
}

// Put inserts or replaces the value at addr, pinned once on behalf of the
// caller, and evicts unpinned entries over capacity or under pressure.
func (c *Cache[V]) Put(addr int64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.slots[addr]; ok {
		existing.value = value
		existing.pinned++
		c.lru.MoveToFront(existing.element)
		if c.budget != nil {
			c.budget.TrackWithPriority(c.component, budgetKey(addr), int64(value.SerializedSize()), PriorityWarm)
		}
		c.evictLocked()
		return
	}

	elem := c.lru.PushFront(addr)
	c.slots[addr] = &slot[V]{addr: addr, value: value, element: elem, pinned: 1}
	if c.budget != nil {
		c.budget.TrackWithPriority(c.component, budgetKey(addr), int64(value.SerializedSize()), PriorityWarm)
	}
	c.evictLocked()
}

// Unpin releases one reference to the value at addr.
func (c *Cache[V]) Unpin(addr int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.slots[addr]; ok && s.pinned > 0 {
		s.pinned--
	}
}

// Invalidate drops every cached entry regardless of pin state, used after
// the backing store's address space is remapped (e.g. mmap growth).
func (c *Cache[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.budget != nil {
		for addr := range c.slots {
			c.budget.ReleaseItem(c.component, budgetKey(addr))
		}
	}
	c.slots = make(map[int64]*slot[V])
	c.lru = list.New()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *Cache[V]) evictLocked() {
	for c.lru.Len() > c.capacity || c.underPressureLocked() {
		elem := c.lru.Back()
		if elem == nil {
			break
		}

		addr := elem.Value.(int64)
		s := c.slots[addr]
		if s == nil {
			c.lru.Remove(elem)
			continue
		}
		if s.pinned > 0 {
			c.lru.MoveToFront(elem)
			break
		}

		if c.budget != nil {
			c.budget.ReleaseItem(c.component, budgetKey(addr))
		}
		c.lru.Remove(elem)
		delete(c.slots, addr)
	}
}

func (c *Cache[V]) underPressureLocked() bool {
	return c.budget != nil && c.budget.IsExceeded()
}

func budgetKey(addr int64) string {
	return fmt.Sprintf("page_%d", addr)
}
