package pagetx

import (
	"sync"
	"time"

	"stratadb/pkg/blockio"
	"stratadb/pkg/intentlog"
	"stratadb/pkg/page"
	"stratadb/pkg/pagecache"
	"stratadb/pkg/record"
)

// WriteTrx is the single mutable view onto a resource's next revision: a
// RevisionRootPage cloned from the last committed one, plus a private
// intent log every copy-on-write page is staged in until Commit frames
// them into the block store (spec §4.2, §4.3).
//
// Grounded on the teacher's pager.Transaction Begin/MarkDirty/Commit
// bookkeeping and cowbtree.CowBTree's clone-on-descent path copying,
// generalized from the teacher's fixed dirty-page set to a working set
// keyed by (IndexType, page_key) since this layer's leaves vary in
// commit shape by versioning algorithm rather than all being plain
// B-tree nodes.
type WriteTrx struct {
	*ReadTrx

	store  blockio.Store
	unlock func()

	dirtyIndirect map[IndexType]*page.IndirectPage

	dirtyLeaves map[IndexType]map[uint64]*dirtyLeaf
}

// WriteOptions extends Options with the write-side dependencies: the
// store dirty pages are framed into on commit, the budget the intent log
// tracks staged pages under, and the per-resource single-writer lock
// (spec §4.3: one resource, one active writer at a time).
type WriteOptions struct {
	Options
	Store  blockio.Store
	Budget *pagecache.Budget
	Lock   *sync.Mutex
}

// BeginWriteTrx acquires the resource's write lock, opens a read view of
// the currently committed revision, and returns a WriteTrx cloned from it
// and pinned one revision ahead. The lock is released by Commit or
// Rollback; a caller that abandons a WriteTrx without calling either
// leaves the resource unwritable until process exit, the same hazard the
// teacher's pager.Transaction carries.
func BeginWriteTrx(opts WriteOptions) (*WriteTrx, error) {
	if !opts.Lock.TryLock() {
		return nil, errAlreadyWriting
	}

	base, err := OpenReadTrx(opts.Options)
	if err != nil {
		opts.Lock.Unlock()
		return nil, err
	}

	budget := opts.Budget
	if budget == nil {
		budget = pagecache.NewBudget(0)
	}

	root := base.root.Clone()
	root.Revision++

	tx := &WriteTrx{
		ReadTrx: &ReadTrx{
			revision:  root.Revision,
			root:      root,
			reader:    base.reader,
			pipeline:  base.pipeline,
			cache:     base.cache,
			policy:    base.policy,
			log:       intentlog.New(budget, opts.Store, opts.Pipeline, decodePlainPage),
			nameIndex: base.nameIndex,
			pathIndex: base.pathIndex,
			casIndex:  base.casIndex,
		},
		store:         opts.Store,
		unlock:        opts.Lock.Unlock,
		dirtyIndirect: make(map[IndexType]*page.IndirectPage),
		dirtyLeaves:   make(map[IndexType]map[uint64]*dirtyLeaf),
	}
	return tx, nil
}

func decodePlainPage(kind page.PageKind, data []byte) (page.Page, error) {
	switch kind {
	case page.KindIndirect:
		return page.DecodeIndirectPage(data)
	case page.KindKeyValueLeaf, page.KindName:
		return page.DecodeLeafPage(data)
	default:
		return nil, errUnknownIndex
	}
}

// prepareIndirect returns idx's indirection-tree root, cloning it into
// the intent log on first touch this transaction. Later calls for the
// same idx return the same, already-mutable page.
func (tx *WriteTrx) prepareIndirect(idx IndexType) (*page.IndirectPage, error) {
	if ip, ok := tx.dirtyIndirect[idx]; ok {
		return ip, nil
	}
	ref := refFor(tx.root, idx)
	if ref == nil {
		return nil, errUnknownIndex
	}

	isNew := ref.Offset() == 0 && ref.LogKey == 0 && ref.InMemory == nil
	var clone *page.IndirectPage
	if isNew {
		clone = &page.IndirectPage{}
	} else {
		current, err := tx.resolveIndirect(*ref)
		if err != nil {
			return nil, err
		}
		clone = &page.IndirectPage{Children: append([]page.PageRef(nil), current.Children...)}
	}

	container := &intentlog.PageContainer{Kind: page.KindIndirect, Original: *ref}
	if isNew {
		container.Complete = clone
	} else {
		container.Modified = clone
	}
	key, err := tx.log.Put(container)
	if err != nil {
		return nil, err
	}

	*ref = page.PageRef{Key: ref.Key, LogKey: int64(key)}
	tx.dirtyIndirect[idx] = clone
	return clone, nil
}

// prepareLeaf returns the dirty, fully-assembled working copy of the
// leaf at pageKey in idx's indirection tree, cloning it from its current
// committed (and, if versioned, fragment-assembled) state on first touch.
func (tx *WriteTrx) prepareLeaf(idx IndexType, pageKey uint64) (*dirtyLeaf, error) {
	if m, ok := tx.dirtyLeaves[idx]; ok {
		if dl, ok := m[pageKey]; ok {
			return dl, nil
		}
	} else {
		tx.dirtyLeaves[idx] = make(map[uint64]*dirtyLeaf)
	}

	ip, err := tx.prepareIndirect(idx)
	if err != nil {
		return nil, err
	}
	for uint64(len(ip.Children)) <= pageKey {
		ip.Children = append(ip.Children, page.PageRef{Key: uint64(len(ip.Children))})
	}
	ref := ip.Children[pageKey]
	policy := tx.policy[idx]
	isNew := ref.Offset() == 0 && ref.LogKey == 0 && ref.InMemory == nil

	dl := &dirtyLeaf{kind: kindFor(idx), touched: make(map[string]bool)}

	if isNew {
		dl.entries = make(map[string]*record.Record)
	} else {
		assembled, aerr := tx.resolveLeaf(ref, policy)
		if aerr != nil {
			return nil, aerr
		}
		dl.entries = entriesMap(assembled)

		rawLeaf, rerr := tx.resolveRawLeaf(ref)
		if rerr != nil {
			return nil, rerr
		}
		dl.hadOriginal = true
		dl.originalFragment = page.Fragment{
			Revision: tx.revision - 1,
			Offset:   ref.Offset(),
			Length:   uint32(len(rawLeaf.Encode())),
		}
		dl.priorChain = rawLeaf.PriorFragments
		if policy.Algorithm == Differential {
			base, berr := tx.differentialBaseFromRaw(rawLeaf, policy)
			if berr != nil {
				return nil, berr
			}
			dl.base = base
		}
	}

	tx.dirtyLeaves[idx][pageKey] = dl
	return dl, nil
}

// resolveRawLeaf resolves ref's page exactly as stored, without folding
// any fragment chain forward — the only way to recover a leaf's own
// PriorFragments, which resolveLeaf's assembled return value never
// carries.
func (tx *WriteTrx) resolveRawLeaf(ref page.PageRef) (*page.LeafPage, error) {
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
	return leaf, nil
}

// CreateRecord assigns the next NodeKey in idx and stores rec under it
// (spec §4.3 create_record). Only DocumentIndex allocates NodeKeys this
// way; NameDict entries are created through CreateNameKey instead.
func (tx *WriteTrx) CreateRecord(idx IndexType, rec *record.Record) (*record.Record, error) {
	if idx != DocumentIndex {
		return nil, errUnknownIndex
	}
	tx.root.MaxNodeKey++
	rec.NodeKey = tx.root.MaxNodeKey

	dl, err := tx.prepareLeaf(idx, PageKeyFor(rec.NodeKey, DefaultLeafCapacity))
	if err != nil {
		return nil, err
	}
	key := string(NodeKeyBytes(rec.NodeKey))
	dl.entries[key] = rec
	dl.touched[key] = true
	return rec, nil
}

// PrepareRecordForModification returns the mutable record a caller should
// edit in place for nodeKey (spec §4.3 prepare_record_for_modification).
// Calling it again for the same NodeKey within the same transaction
// returns the identical pointer.
func (tx *WriteTrx) PrepareRecordForModification(idx IndexType, nodeKey uint64) (*record.Record, error) {
	dl, err := tx.prepareLeaf(idx, PageKeyFor(nodeKey, DefaultLeafCapacity))
	if err != nil {
		return nil, err
	}
	key := string(NodeKeyBytes(nodeKey))
	rec, ok := dl.entries[key]
	if !ok || rec == nil {
		return nil, errRecordNotFound
	}
	dl.touched[key] = true
	return rec, nil
}

// RemoveRecord tombstones nodeKey's record (spec §4.3 remove_record).
func (tx *WriteTrx) RemoveRecord(idx IndexType, nodeKey uint64) error {
	dl, err := tx.prepareLeaf(idx, PageKeyFor(nodeKey, DefaultLeafCapacity))
	if err != nil {
		return err
	}
	key := string(NodeKeyBytes(nodeKey))
	if _, ok := dl.entries[key]; !ok {
		return errRecordNotFound
	}
	dl.entries[key] = nil
	dl.touched[key] = true
	return nil
}

// SetHOTRoots records the persisted roots of the three HOT indexes into
// this transaction's next RevisionRootPage. A caller that inserted into or
// removed from NameIndex/PathIndex/CASIndex (via the accessors on ReadTrx)
// during this transaction must flush each tree and call this before
// Commit, or the new roots never become durable.
func (tx *WriteTrx) SetHOTRoots(name, path, cas page.PageRef) {
	tx.root.NameIndex = name
	tx.root.PathIndex = path
	tx.root.CASIndex = cas
}

// SetPathSummaryRoot records the path summary's persisted root offset
// into this transaction's next RevisionRootPage. pkg/pathsummary
// addresses its tree by a plain int64 block offset rather than a PageRef
// (spec §4.5 keeps it outside the COW fan-out), so the caller wraps that
// offset as a single-fragment PageRef before calling this.
func (tx *WriteTrx) SetPathSummaryRoot(ref page.PageRef) {
	tx.root.PathSummary = ref
}

// Commit frames every dirty page into the block store in dependency
// order — leaves, then their owning indirection pages, then the
// RevisionRootPage, then the uber reference — and only then releases the
// write lock (spec §4.3 commit). Any failure before WriteUberRef aborts
// cleanly: the blocks already appended become unreachable garbage, and
// the previous revision remains the store's recovered state on crash.
func (tx *WriteTrx) Commit() (*page.UberPage, error) {
	defer tx.unlock()

	for idx, pages := range tx.dirtyLeaves {
		ip, ok := tx.dirtyIndirect[idx]
		if !ok {
			return nil, errUnknownIndex
		}
		for pageKey, dl := range pages {
			leaf := buildCommittedLeaf(dl, tx.policy[idx])
			raw := leaf.Encode()
			stored, err := tx.encodeForStorage(raw)
			if err != nil {
				return nil, err
			}
			offset, err := tx.store.AppendBlock(stored)
			if err != nil {
				return nil, err
			}
			ip.Children[pageKey] = page.PageRef{
				Key:       ip.Children[pageKey].Key,
				Fragments: []page.Fragment{{Revision: tx.revision, Offset: offset, Length: uint32(len(raw))}},
			}
		}
	}

	for idx, ip := range tx.dirtyIndirect {
		ref := refFor(tx.root, idx)
		raw := ip.Encode()
		stored, err := tx.encodeForStorage(raw)
		if err != nil {
			return nil, err
		}
		offset, err := tx.store.AppendBlock(stored)
		if err != nil {
			return nil, err
		}
		*ref = page.PageRef{Key: ref.Key, Fragments: []page.Fragment{{Revision: tx.revision, Offset: offset, Length: uint32(len(raw))}}}
	}

	tx.root.TimestampUnix = time.Now().Unix()
	rootRaw := tx.root.Encode()
	rootStored, err := tx.encodeForStorage(rootRaw)
	if err != nil {
		return nil, err
	}
	rootOffset, err := tx.store.AppendBlock(rootStored)
	if err != nil {
		return nil, err
	}

	uber := &page.UberPage{
		RevisionRoot:   page.PageRef{Fragments: []page.Fragment{{Offset: rootOffset}}},
		MaxNodeKey:     tx.root.MaxNodeKey,
		RevisionNumber: tx.revision,
	}
	uberRaw := uber.Encode()
	uberStored, err := tx.encodeForStorage(uberRaw)
	if err != nil {
		return nil, err
	}
	uberOffset, err := tx.store.AppendBlock(uberStored)
	if err != nil {
		return nil, err
	}
	if err := tx.store.WriteUberRef(blockio.UberRef{Offset: uberOffset, Length: uint32(len(uberStored))}); err != nil {
		return nil, err
	}
	if err := tx.store.Fsync(); err != nil {
		return nil, err
	}

	tx.log.Clear()
	return uber, nil
}

func (tx *WriteTrx) encodeForStorage(raw []byte) ([]byte, error) {
	if tx.pipeline == nil {
		return raw, nil
	}
	return tx.pipeline.Encode(raw)
}

// Rollback discards every staged page without writing anything and
// releases the write lock.
func (tx *WriteTrx) Rollback() {
	tx.log.Clear()
	tx.unlock()
}
