// Package pagecache provides the in-memory page cache the page
// transaction layer reads through: an LRU cache of decoded pages keyed by
// physical block address, backed by a cross-component memory budget that
// drives eviction under pressure (spec §2, §4.1).
//
// Grounded on the teacher's pkg/pager (LRU via container/list) and
// pkg/cache.MemoryBudget (priority-tracked component budgets), generalized
// from the teacher's fixed-size uint32 page numbers to the int64 block
// offsets the page layer's append-only log uses as physical addresses.
package pagecache

import (
	"sort"
	"sync"
	"time"
)

// DefaultMemoryLimit is the default page cache memory budget (256MB).
const DefaultMemoryLimit = int64(256 * 1024 * 1024)

// DefaultPressureThreshold is the fraction of the limit at which eviction
// pressure is signaled.
const DefaultPressureThreshold = 0.8

// Priority represents how aggressively an item should be evicted under
// pressure: cold items go first, hot items last.
type Priority int

const (
	PriorityCold Priority = iota
	PriorityWarm
	PriorityHot
)

// ItemInfo holds metadata about a tracked cache entry.
type ItemInfo struct {
	Key         string
	Size        int64
	Priority    Priority
	AccessCount int64
	LastAccess  time.Time
}

// BudgetStats reports current memory usage.
type BudgetStats struct {
	Limit           int64
	TotalUsage      int64
	ComponentUsage  map[string]int64
	IsUnderPressure bool
	IsExceeded      bool
}

// PressureCallback is invoked asynchronously on the transition into
// pressure state.
type PressureCallback func(currentUsage, limit int64)

// Budget tracks memory usage across cache components (page cache, HOT
// index node cache, path summary cache, ...) and enforces a shared limit.
type Budget struct {
	mu                sync.RWMutex
	limit             int64
	pressureThreshold float64
	totalUsage        int64
	componentUsage    map[string]int64
	items             map[string]map[string]*ItemInfo
	pressureCallback  PressureCallback
	wasUnderPressure  bool
}

// NewBudget creates a budget with the given limit. A non-positive limit
// falls back to DefaultMemoryLimit.
func NewBudget(limit int64) *Budget {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Budget{
		limit:             limit,
		pressureThreshold: DefaultPressureThreshold,
		componentUsage:    make(map[string]int64),
		items:             make(map[string]map[string]*ItemInfo),
	}
}

func (b *Budget) Limit() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limit
}

func (b *Budget) SetLimit(limit int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limit = limit
}

func (b *Budget) SetPressureThreshold(threshold float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	b.pressureThreshold = threshold
}

// RegisterComponent registers a component for memory tracking if not
// already present.
func (b *Budget) RegisterComponent(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.componentUsage[name]; !exists {
		b.componentUsage[name] = 0
		b.items[name] = make(map[string]*ItemInfo)
	}
}

// TrackWithPriority records bytes used by key under component, replacing
// any previous tracking for that key.
func (b *Budget) TrackWithPriority(component, key string, bytes int64, priority Priority) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.items[component] == nil {
		b.items[component] = make(map[string]*ItemInfo)
	}

	if prev, ok := b.items[component][key]; ok {
		b.componentUsage[component] -= prev.Size
		b.totalUsage -= prev.Size
	}

	b.items[component][key] = &ItemInfo{
		Key:        key,
		Size:       bytes,
		Priority:   priority,
		LastAccess: time.Now(),
	}
	b.componentUsage[component] += bytes
	b.totalUsage += bytes

	b.checkPressure()
}

// ReleaseItem releases tracking for a specific key.
func (b *Budget) ReleaseItem(component, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if items, ok := b.items[component]; ok {
		if info, ok := items[key]; ok {
			b.componentUsage[component] -= info.Size
			b.totalUsage -= info.Size
			delete(items, key)
		}
	}
}

// RecordAccess bumps an item's access count, promoting its priority after
// enough hits.
func (b *Budget) RecordAccess(component, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items, ok := b.items[component]
	if !ok {
		return
	}
	info, ok := items[key]
	if !ok {
		return
	}

	info.AccessCount++
	info.LastAccess = time.Now()
	if info.AccessCount >= 10 && info.Priority < PriorityHot {
		info.Priority = PriorityHot
	} else if info.AccessCount >= 3 && info.Priority < PriorityWarm {
		info.Priority = PriorityWarm
	}
}

// EvictionCandidates returns keys to evict to free bytesNeeded, ordered
// cold-and-oldest first.
func (b *Budget) EvictionCandidates(component string, bytesNeeded int64) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	items, ok := b.items[component]
	if !ok || len(items) == 0 {
		return nil
	}

	type sortableItem struct {
		key  string
		info *ItemInfo
	}
	sorted := make([]sortableItem, 0, len(items))
	for key, info := range items {
		sorted = append(sorted, sortableItem{key, info})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].info.Priority != sorted[j].info.Priority {
			return sorted[i].info.Priority < sorted[j].info.Priority
		}
		return sorted[i].info.LastAccess.Before(sorted[j].info.LastAccess)
	})

	var candidates []string
	var freed int64
	for _, item := range sorted {
		if freed >= bytesNeeded {
			break
		}
		candidates = append(candidates, item.key)
		freed += item.info.Size
	}
	return candidates
}

func (b *Budget) TotalUsage() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalUsage
}

func (b *Budget) ComponentUsage(component string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.componentUsage[component]
}

func (b *Budget) IsUnderPressure() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return float64(b.totalUsage) >= float64(b.limit)*b.pressureThreshold
}

func (b *Budget) IsExceeded() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalUsage > b.limit
}

// OnPressure registers a callback fired (in its own goroutine) when usage
// crosses into pressure state.
func (b *Budget) OnPressure(callback PressureCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressureCallback = callback
}

func (b *Budget) checkPressure() {
	underPressure := float64(b.totalUsage) >= float64(b.limit)*b.pressureThreshold
	if underPressure && !b.wasUnderPressure && b.pressureCallback != nil {
		callback := b.pressureCallback
		usage, limit := b.totalUsage, b.limit
		b.wasUnderPressure = true
		go callback(usage, limit)
	} else if !underPressure {
		b.wasUnderPressure = false
	}
}

func (b *Budget) Stats() BudgetStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	usage := make(map[string]int64, len(b.componentUsage))
	for k, v := range b.componentUsage {
		usage[k] = v
	}

	return BudgetStats{
		Limit:           b.limit,
		TotalUsage:      b.totalUsage,
		ComponentUsage:  usage,
		IsUnderPressure: float64(b.totalUsage) >= float64(b.limit)*b.pressureThreshold,
		IsExceeded:      b.totalUsage > b.limit,
	}
}
