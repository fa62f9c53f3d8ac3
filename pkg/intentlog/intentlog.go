// Package intentlog implements the transaction intent log: the in-memory
// holding area a write transaction stages its copy-on-write pages in
// before they are framed into committed blocks (spec §4.2, §4.7).
//
// A page enters the log one of two ways: brand new (a freshly allocated
// node with no prior on-disk image) or modified (a copy-on-write clone of
// an already-committed page, recorded alongside the PageRef it
// supersedes). Both are held as a PageContainer under a LogKey that the
// write transaction threads through its working set until commit, at
// which point every container is encoded and appended to the block store
// and the log is cleared.
//
// Grounded on the teacher's mvcc.UndoLog for the keyed-container,
// before/after-image shape, and on wal.WAL's frame-then-checksum
// durability idiom for the spill-to-disk path taken when the log outgrows
// its memory budget: a spilled container is appended as an ordinary
// blockio block (length-prefixed, pipeline-encoded) rather than held live
// in the entries map, and reloaded through the same pipeline on next
// access.
package intentlog

import (
	"fmt"
	"sync"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/page"
	"stratadb/pkg/pagecache"
)

// component is the pagecache.Budget component name this log tracks usage
// under.
const component = "intentlog"

// LogKey identifies a container within a single log instance. Keys are
// never reused within the log's lifetime; they are meaningless once the
// log is cleared.
type LogKey int64

// PageDecoder reconstructs a page.Page of the given kind from pipeline-
// decoded bytes. The log has no decoder of its own for HOT pages (defined
// in pkg/hot, which pkg/page cannot import without a cycle), so the
// caller supplies one grounded in whatever page kinds it deals with.
type PageDecoder func(kind page.PageKind, data []byte) (page.Page, error)

// PageContainer holds one page's pending write-side state. Exactly one of
// Complete or Modified is set: Complete for a brand-new page with no
// committed predecessor, Modified for a copy-on-write clone of Original.
type PageContainer struct {
	Kind     page.PageKind
	Complete page.Page
	Modified page.Page
	Original page.PageRef
}

// Current returns the page that should be framed into the committed
// block store for this container.
func (c *PageContainer) Current() page.Page {
	if c.Modified != nil {
		return c.Modified
	}
	return c.Complete
}

func (c *PageContainer) isNew() bool { return c.Complete != nil }

type entry struct {
	kind     page.PageKind
	original page.PageRef
	isNew    bool
	size     int64

	container   *PageContainer // nil once spilled
	spilled     bool
	spillOffset int64
}

// Log is a single write transaction's staging area for copy-on-write
// pages. It is not safe to share across concurrent write transactions;
// spec §4.3 gives each resource a single active writer, so one Log
// belongs to that writer for the duration of its transaction.
type Log struct {
	mu      sync.Mutex
	nextKey int64
	entries map[LogKey]*entry

	budget   *pagecache.Budget
	spill    blockio.Store
	pipeline *codec.Pipeline
	decode   PageDecoder
}

// New creates an empty intent log. spill and pipeline may be nil, in
// which case the log never spills and simply grows unbounded in memory;
// this is the right shape for tests and for resources configured with a
// memory budget large enough that spilling never triggers.
func New(budget *pagecache.Budget, spill blockio.Store, pipeline *codec.Pipeline, decode PageDecoder) *Log {
	budget.RegisterComponent(component)
	return &Log{
		entries:  make(map[LogKey]*entry),
		budget:   budget,
		spill:    spill,
		pipeline: pipeline,
		decode:   decode,
	}
}

// Put stages a container and returns the key a write transaction should
// hold onto to look it up again (e.g. to store in a new PageRef's LogKey
// field pending commit).
func (l *Log) Put(c *PageContainer) (LogKey, error) {
	if c.Complete == nil && c.Modified == nil {
		return 0, errEmptyPage
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextKey++
	key := LogKey(l.nextKey)
	size := int64(c.Current().SerializedSize())

	l.entries[key] = &entry{
		kind:      c.Kind,
		original:  c.Original,
		isNew:     c.isNew(),
		size:      size,
		container: c,
	}
	l.budget.TrackWithPriority(component, itemKey(key), size, pagecache.PriorityWarm)

	if l.budget.IsUnderPressure() {
		l.spillColdLocked()
	}
	return key, nil
}

// Get resolves a key to its container, transparently reloading it from
// the spill store if it was evicted from memory under pressure.
func (l *Log) Get(key LogKey) (*PageContainer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return nil, errUnknownKey
	}
	if e.container != nil {
		l.budget.RecordAccess(component, itemKey(key))
		return e.container, nil
	}
	if err := l.reloadLocked(key, e); err != nil {
		return nil, err
	}
	return e.container, nil
}

// Remove drops a container once its page has been framed into a
// committed block and the key is no longer needed.
func (l *Log) Remove(key LogKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	l.budget.ReleaseItem(component, itemKey(key))
}

// Clear discards every staged container, releasing all budget tracking.
// Called once a write transaction has committed (every container framed)
// or rolled back (every container discarded).
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.entries {
		l.budget.ReleaseItem(component, itemKey(key))
	}
	l.entries = make(map[LogKey]*entry)
}

// Len reports the number of containers currently staged, spilled or not.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// spillColdLocked spills the coldest entries to the backing store until
// the log is back under its pressure threshold or no more entries can be
// spilled (already spilled, or no spill path configured).
func (l *Log) spillColdLocked() {
	if l.spill == nil || l.pipeline == nil {
		return
	}
	candidates := l.budget.EvictionCandidates(component, l.budget.ComponentUsage(component))
	for _, candidateKey := range candidates {
		if !l.budget.IsUnderPressure() {
			return
		}
		key, ok := parseItemKey(candidateKey)
		if !ok {
			continue
		}
		e, ok := l.entries[key]
		if !ok || e.container == nil {
			continue
		}
		if err := l.spillOneLocked(key, e); err != nil {
			// Leave it in memory; a failed spill is not fatal, just a
			// missed opportunity to relieve pressure.
			continue
		}
	}
}

func (l *Log) spillOneLocked(key LogKey, e *entry) error {
	encoded, err := l.pipeline.Encode(e.container.Current().Encode())
	if err != nil {
		return err
	}
	offset, err := l.spill.AppendBlock(encoded)
	if err != nil {
		return err
	}
	e.spillOffset = offset
	e.spilled = true
	e.container = nil
	l.budget.ReleaseItem(component, itemKey(key))
	return nil
}

func (l *Log) reloadLocked(key LogKey, e *entry) error {
	if !e.spilled {
		return errUnknownKey
	}
	if l.spill == nil || l.pipeline == nil {
		return errNoSpillPath
	}
	raw, err := l.spill.ReadPageAt(e.spillOffset)
	if err != nil {
		return err
	}
	decoded, err := l.pipeline.Decode(raw)
	if err != nil {
		return err
	}
	p, err := l.decode(e.kind, decoded)
	if err != nil {
		return err
	}

	c := &PageContainer{Kind: e.kind, Original: e.original}
	if e.isNew {
		c.Complete = p
	} else {
		c.Modified = p
	}
	e.container = c
	l.budget.TrackWithPriority(component, itemKey(key), e.size, pagecache.PriorityWarm)
	return nil
}

func itemKey(key LogKey) string { return fmt.Sprintf("log_%d", int64(key)) }

func parseItemKey(s string) (LogKey, bool) {
	var n int64
	if _, err := fmt.Sscanf(s, "log_%d", &n); err != nil {
		return 0, false
	}
	return LogKey(n), true
}
