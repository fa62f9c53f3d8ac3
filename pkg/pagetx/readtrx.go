package pagetx

import (
	"sort"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/intentlog"
	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
	"stratadb/pkg/pagecache"
	"stratadb/pkg/record"
)

// HOTIndex is the read/write contract a HOT secondary index tree
// satisfies (pkg/hot implements this). pagetx depends only on this
// narrow interface so the page-transaction layer can be built and tested
// before the HOT index exists, and so WriteTrx never needs to know
// whether a given resource has HOT indexing wired in at all.
type HOTIndex interface {
	Get(key []byte) (*noderefs.NodeReferences, bool, error)
	Insert(key []byte, nodeKey uint64) error
	Remove(key []byte, nodeKey uint64) error
	Root() page.PageRef
}

// ReadTrx is a revision-pinned read-only view of a resource: it holds
// the RevisionRootPage current when it was opened and never observes
// later commits, which is safe for free since committed blocks are never
// overwritten (spec §4.3, §5).
type ReadTrx struct {
	revision page.RevisionNumber
	root     *page.RevisionRootPage
	reader   blockio.Reader
	pipeline *codec.Pipeline
	cache    *pagecache.Cache[page.Page]
	policy   map[IndexType]VersioningPolicy
	log      *intentlog.Log // nil outside a write transaction

	nameIndex, pathIndex, casIndex HOTIndex
}

// Options configures a transaction's dependencies. Cache and Pipeline may
// be nil (no caching / no byte-handler pipeline, i.e. raw bytes).
type Options struct {
	Reader    blockio.Reader
	Pipeline  *codec.Pipeline
	Cache     *pagecache.Cache[page.Page]
	Policy    map[IndexType]VersioningPolicy
	NameIndex HOTIndex
	PathIndex HOTIndex
	CASIndex  HOTIndex
}

// OpenReadTrx reads the resource's current uber reference and pins a
// read transaction to the revision it names.
func OpenReadTrx(opts Options) (*ReadTrx, error) {
	uberRef, err := opts.Reader.ReadUberRef()
	if err != nil {
		return nil, err
	}
	if uberRef.IsZero() {
		return newEmptyReadTrx(opts), nil
	}

	raw, err := opts.Reader.ReadPageAt(uberRef.Offset)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeWith(opts.Pipeline, raw)
	if err != nil {
		return nil, err
	}
	uber, err := page.DecodeUberPage(decoded)
	if err != nil {
		return nil, err
	}
	return openAtRoot(opts, uber.RevisionRoot)
}

func newEmptyReadTrx(opts Options) *ReadTrx {
	return &ReadTrx{
		root:      &page.RevisionRootPage{},
		reader:    opts.Reader,
		pipeline:  opts.Pipeline,
		cache:     opts.Cache,
		policy:    withDefaults(opts.Policy),
		nameIndex: opts.NameIndex,
		pathIndex: opts.PathIndex,
		casIndex:  opts.CASIndex,
	}
}

func openAtRoot(opts Options, ref page.PageRef) (*ReadTrx, error) {
	tx := &ReadTrx{
		reader:    opts.Reader,
		pipeline:  opts.Pipeline,
		cache:     opts.Cache,
		policy:    withDefaults(opts.Policy),
		nameIndex: opts.NameIndex,
		pathIndex: opts.PathIndex,
		casIndex:  opts.CASIndex,
	}
	raw, err := tx.reader.ReadPageAt(ref.Offset())
	if err != nil {
		return nil, err
	}
	decoded, err := decodeWith(tx.pipeline, raw)
	if err != nil {
		return nil, err
	}
	root, err := page.DecodeRevisionRootPage(decoded)
	if err != nil {
		return nil, err
	}
	tx.root = root
	tx.revision = root.Revision
	return tx, nil
}

func withDefaults(policy map[IndexType]VersioningPolicy) map[IndexType]VersioningPolicy {
	out := make(map[IndexType]VersioningPolicy, len(policy)+2)
	for k, v := range policy {
		out[k] = v
	}
	if _, ok := out[DocumentIndex]; !ok {
		out[DocumentIndex] = DefaultVersioningPolicy()
	}
	if _, ok := out[NameDict]; !ok {
		out[NameDict] = DefaultVersioningPolicy()
	}
	return out
}

// Revision returns the revision this transaction is pinned to.
// NameIndex, PathIndex and CASIndex expose the three HOT trees this
// transaction was opened with (nil if a resource chose not to wire one).
// Deciding which records get a name/path/CAS entry is a policy question
// for whatever sits above this package; this package only carries the
// trees through a transaction's lifetime and persists their roots at
// commit (see WriteTrx.SetHOTRoots).
func (tx *ReadTrx) NameIndex() HOTIndex { return tx.nameIndex }
func (tx *ReadTrx) PathIndex() HOTIndex { return tx.pathIndex }
func (tx *ReadTrx) CASIndex() HOTIndex  { return tx.casIndex }

func (tx *ReadTrx) Revision() page.RevisionNumber { return tx.revision }

// Root returns the pinned RevisionRootPage. Callers must not mutate it
// through a ReadTrx.
func (tx *ReadTrx) Root() *page.RevisionRootPage { return tx.root }

// GetRecord looks up a record by NodeKey in one of the plain
// node_key-indirection indexes (DocumentIndex, NameDict).
func (tx *ReadTrx) GetRecord(idx IndexType, nodeKey uint64) (*record.Record, bool, error) {
	leaf, err := tx.leafFor(idx, PageKeyFor(nodeKey, DefaultLeafCapacity))
	if err != nil {
		return nil, false, err
	}
	if leaf == nil {
		return nil, false, nil
	}
	key := NodeKeyBytes(nodeKey)
	for _, e := range leaf.Entries {
		if bytesEqual(e.Key, key) {
			return e.Value, true, nil
		}
	}
	return nil, false, nil
}

// leafFor resolves the leaf holding pageKey in the named index's
// indirection tree, or nil if that page_key has never been allocated.
func (tx *ReadTrx) leafFor(idx IndexType, pageKey uint64) (*page.LeafPage, error) {
	root := refFor(tx.root, idx)
	if root == nil {
		return nil, errUnknownIndex
	}
	if root.Offset() == 0 && root.LogKey == 0 && root.InMemory == nil {
		return nil, nil
	}

	indirectPage, err := tx.resolveIndirect(*root)
	if err != nil {
		return nil, err
	}
	if indirectPage == nil || pageKey >= uint64(len(indirectPage.Children)) {
		return nil, nil
	}
	ref := indirectPage.Children[pageKey]
	if ref.Offset() == 0 && ref.LogKey == 0 && ref.InMemory == nil {
		return nil, nil
	}
	return tx.resolveLeaf(ref, tx.policy[idx])
}

// resolveIndirect resolves a PageRef known to address an IndirectPage,
// checking the TIL first, then the decoded-page cache, then the reader.
func (tx *ReadTrx) resolveIndirect(ref page.PageRef) (*page.IndirectPage, error) {
	p, err := tx.resolve(ref, func(data []byte) (page.Page, error) {
		return page.DecodeIndirectPage(data)
	})
	if err != nil || p == nil {
		return nil, err
	}
	ip, ok := p.(*page.IndirectPage)
	if !ok {
		return nil, errNilPageRef
	}
	return ip, nil
}

// resolveLeaf resolves a PageRef known to address a LeafPage, applying
// versioning-aware fragment-chain assembly.
func (tx *ReadTrx) resolveLeaf(ref page.PageRef, policy VersioningPolicy) (*page.LeafPage, error) {
	p, err := tx.resolve(ref, func(data []byte) (page.Page, error) {
		return page.DecodeLeafPage(data)
	})
	if err != nil || p == nil {
		return nil, err
	}
	leaf, ok := p.(*page.LeafPage)
	if !ok {
		return nil, errNilPageRef
	}
	if len(leaf.PriorFragments) == 0 {
		return leaf, nil
	}
	return tx.assembleLeaf(leaf, policy)
}

// resolve is the shared three-step lookup spec §4.3 prescribes: the
// intent log, then the in-memory/cached decoded page, then the backing
// reader.
func (tx *ReadTrx) resolve(ref page.PageRef, decode func([]byte) (page.Page, error)) (page.Page, error) {
	if ref.LogKey != 0 && tx.log != nil {
		container, err := tx.log.Get(intentlog.LogKey(ref.LogKey))
		if err != nil {
			return nil, err
		}
		return container.Current(), nil
	}
	if ref.InMemory != nil {
		return ref.InMemory, nil
	}
	if len(ref.Fragments) == 0 {
		return nil, nil
	}

	addr := ref.Offset()
	if tx.cache != nil {
		if cached, ok := tx.cache.Get(addr); ok {
			defer tx.cache.Unpin(addr)
			return cached, nil
		}
	}

	raw, err := tx.reader.ReadPageAt(addr)
	if err != nil {
		return nil, err
	}
	decoded, err := decodeWith(tx.pipeline, raw)
	if err != nil {
		return nil, err
	}
	p, err := decode(decoded)
	if err != nil {
		return nil, err
	}
	if tx.cache != nil {
		tx.cache.Put(addr, p)
		tx.cache.Unpin(addr)
	}
	return p, nil
}

// assembleLeaf folds a leaf's prior-fragment chain forward per the
// index's versioning algorithm (spec §4.3 "Versioning algorithms").
// Fragments are stored newest-first; assembly always walks toward the
// oldest fragment actually needed, then merges forward in chronological
// order so later writes win.
func (tx *ReadTrx) assembleLeaf(leaf *page.LeafPage, policy VersioningPolicy) (*page.LeafPage, error) {
	chain, err := tx.fragmentChain(leaf, policy)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*record.Record)
	// chain is newest-first; walk it from the end so older fragments are
	// applied first and newer entries win.
	for i := len(chain) - 1; i >= 0; i-- {
		for _, e := range chain[i].Entries {
			key := string(e.Key)
			if e.Value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = e.Value
		}
	}
	for _, e := range leaf.Entries {
		key := string(e.Key)
		if e.Value == nil {
			delete(merged, key)
			continue
		}
		merged[key] = e.Value
	}

	entries := make([]page.LeafEntry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, page.LeafEntry{Key: []byte(k), Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return bytesLess(entries[i].Key, entries[j].Key) })
	return page.NewLeafPage(leaf.Kind(), entries), nil
}

// fragmentChain returns the older leaf fragments a revision's leaf depends
// on, newest first (the order of PriorFragments), selected per the index's
// versioning algorithm and bounded by RevisionsToRestore.
func (tx *ReadTrx) fragmentChain(leaf *page.LeafPage, policy VersioningPolicy) ([]*page.LeafPage, error) {
	bound := policy.RevisionsToRestore
	if bound <= 0 {
		bound = 3
	}

	var toRead []page.Fragment
	switch policy.Algorithm {
	case Full:
		return nil, nil
	case Differential:
		// Only the creation-time full snapshot is retained across
		// commits (the oldest, hence last in newest-first order); the
		// diff since that base is always this revision's own Entries.
		if len(leaf.PriorFragments) > 0 {
			toRead = []page.Fragment{leaf.PriorFragments[len(leaf.PriorFragments)-1]}
		}
	case Incremental:
		// WriteTrx forces a new full snapshot before the chain grows
		// past RevisionsToRestore, so the whole chain is always within
		// bound; the cap here is defensive, not the primary mechanism.
		toRead = leaf.PriorFragments
		if len(toRead) > bound {
			toRead = toRead[:bound]
		}
	case SlidingSnapshot:
		window := policy.Window
		if window <= 0 {
			window = bound
		}
		toRead = leaf.PriorFragments
		if len(toRead) > window {
			toRead = toRead[:window]
		}
	default:
		return nil, nil
	}

	out := make([]*page.LeafPage, 0, len(toRead))
	for _, f := range toRead {
		raw, err := tx.reader.ReadPageAt(f.Offset)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeWith(tx.pipeline, raw)
		if err != nil {
			return nil, err
		}
		p, err := page.DecodeLeafPage(decoded)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeWith(pipeline *codec.Pipeline, raw []byte) ([]byte, error) {
	if pipeline == nil {
		return raw, nil
	}
	return pipeline.Decode(raw)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bytesLess(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
