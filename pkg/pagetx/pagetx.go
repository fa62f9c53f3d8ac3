// Package pagetx implements the revisioned page store's transaction
// layer: ReadTrx for revision-pinned, versioning-aware navigation from a
// resource's uber reference down to individual records, and WriteTrx for
// the copy-on-write prepare/create/modify/remove/commit protocol (spec
// §4.3).
//
// Grounded on the teacher's cowbtree.CowBTreeSnapshot for the "pin a
// root, traverse without taking a lock" read shape, cowbtree.CowBTree's
// insertRecursive path-copying (clone on descent, rebuild the path back
// to the root) for the write shape, and pager.Transaction's
// Begin/Commit/Rollback/MarkDirty bookkeeping for the dirty-page
// tracking WriteTrx does across a multi-page COW clone.
package pagetx

import "stratadb/pkg/page"

// IndexType names one of the typed subtrees create_record,
// prepare_record_for_modification and remove_record operate on. Only
// DocumentIndex and NameDict are plain node_key-indirection trees this
// package walks directly; NameIndex/PathIndex/CASIndex are HOT trees
// (pkg/hot) reached through the HOTIndex interface below.
type IndexType int

const (
	DocumentIndex IndexType = iota
	NameDict
)

// DefaultLeafCapacity is the number of records a KeyValueLeafPage holds
// before the indirection tree routes to the next page_key (spec §3.3
// names ~512 as the illustrative size for this constant).
const DefaultLeafCapacity = 512

// Algorithm selects how a leaf's fragment chain is assembled on read
// (spec §4.3 "Versioning algorithms").
type Algorithm int

const (
	// Full: ignore any fragment chain; the leaf is self-contained.
	Full Algorithm = iota
	// Incremental: start from the most recent full snapshot in the
	// chain and replay every later fragment forward.
	Incremental
	// Differential: start from the creation-time full snapshot and
	// apply exactly one diff fragment — the one pointing at the
	// current revision.
	Differential
	// SlidingSnapshot keeps a window of the last Window fragments; a
	// full snapshot is taken every Window revisions.
	SlidingSnapshot
)

// VersioningPolicy configures how leaves of one index are assembled and
// how deep a prior-fragment chain is allowed to grow before a full
// snapshot is forced.
type VersioningPolicy struct {
	Algorithm Algorithm
	// Window is SlidingSnapshot's W; unused by the other algorithms.
	Window int
	// RevisionsToRestore bounds the page-assembly path length (spec §4.3
	// default 3): the maximum number of fragments folded forward to
	// reconstruct a leaf's current state.
	RevisionsToRestore int
}

// DefaultVersioningPolicy is Full versioning with the spec's default
// restore bound; every leaf is self-contained and assembly never walks a
// fragment chain.
func DefaultVersioningPolicy() VersioningPolicy {
	return VersioningPolicy{Algorithm: Full, RevisionsToRestore: 3}
}

// NodeKeyBytes encodes a NodeKey as a big-endian 8-byte key so
// LeafEntry.Key sorts in NodeKey order, matching the document index and
// name dictionary's node_key/name_key-addressed layout.
func NodeKeyBytes(key uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(key)
		key >>= 8
	}
	return b
}

// PageKeyFor returns the indirection-tree slot a NodeKey's leaf lives in
// (spec §4.3 create_record: page_key = node_key / leaf_capacity).
func PageKeyFor(nodeKey uint64, leafCapacity int) uint64 {
	return nodeKey / uint64(leafCapacity)
}

// refFor returns a pointer to the RevisionRootPage field backing the
// given plain (non-HOT) index, so callers can read or overwrite it
// uniformly.
func refFor(root *page.RevisionRootPage, idx IndexType) *page.PageRef {
	switch idx {
	case DocumentIndex:
		return &root.DocumentIndex
	case NameDict:
		return &root.NameDict
	default:
		return nil
	}
}

func kindFor(idx IndexType) page.PageKind {
	switch idx {
	case DocumentIndex:
		return page.KindKeyValueLeaf
	case NameDict:
		return page.KindName
	default:
		return 0
	}
}
