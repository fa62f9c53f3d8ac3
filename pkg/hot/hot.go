// Package hot implements the secondary index structure spec §4.4 calls the
// HOT tree: a byte-keyed index from a serialized key (name, path, or CAS
// value) to the compressed set of node keys that carry it.
//
// HOT (Height Optimized Trie) generalizes the classic binary crit-bit trie
// with multi-byte discriminative spans and several node encodings —
// BiNode, SpanNode, MultiNode — chosen by how many children a node's
// discriminative bits have fanned out to (spec §4.4.5/§4.4.9). A node's
// partial key is extracted from a small, sparse window of its subtree's
// keys (spec §4.4.3/§4.4.4) rather than carrying the full key, which is
// what keeps internal nodes small and the tree flat; search against that
// sparse representation is implemented two ways — a reference scalar
// pass and a batched, lane-packed pass over the same bits — so that the
// two can be checked against each other (spec's testable property #8).
// Each leaf packs many sorted (key, value) entries rather than one key
// per leaf, splitting only once it runs out of room, and deletions
// tombstone in place so a concurrent reader's view of a leaf's key
// ordering never shifts under it; Tree.Compact is the explicit
// maintenance pass that reclaims tombstoned entries and downgrades
// nodes whose children have thinned out.
//
// Grounded on _examples/sirgallo-mari's Node.go for the copy-on-write
// path splitting (copyINode) and the internal/leaf node split
// (MariINode/MariLNode) this package's indirect/leaf split carries over
// directly; the discriminative-bit and partial-key math itself is drawn
// from spec §4.4's own description, since sirgallo-mari indexes by
// hashed key segments (a Hamming-weight bitmap over a fixed radix)
// rather than by sparse windows of raw key bytes. Scope decisions this
// package makes reconciling spec §4.4.5's bit-count "choice rule" with
// §4.4.9's child-count "downgrade rule", bounding foldChild to
// same-offset single-bit children, and simplifying insert's
// split-and-retry are recorded in the design ledger.
package hot

import (
	"errors"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
)

var (
	errUnknownNodeKind = errors.New("hot: unknown node kind in stored page")
	errShortNode       = errors.New("hot: truncated node encoding")
	errStopIteration   = errors.New("hot: range iteration stopped early")
)

// Tree is one HOT index (spec's NameIndex, PathIndex or CASIndex). It is
// not a top-level revisioned structure in its own right: a WriteTrx opens
// one per index from the committed root PageRef, mutates it in memory with
// path copying, and flushes it once at commit time to obtain the new root
// PageRef that is written back into the RevisionRootPage.
type Tree struct {
	root     page.PageRef
	reader   blockio.Reader
	pipeline *codec.Pipeline
	nextKey  uint64
}

// Open returns a Tree view rooted at root, ready for Get/Insert/Remove.
// reader resolves any ref not already held in memory; pipeline decodes the
// bytes reader returns. Both may be nil for a tree that is known to live
// entirely in memory (e.g. freshly created, never flushed).
func Open(root page.PageRef, reader blockio.Reader, pipeline *codec.Pipeline) *Tree {
	return &Tree{root: root, reader: reader, pipeline: pipeline}
}

// Root returns the tree's current root reference. Before Flush this may
// point at in-memory-only nodes; after Flush it is fully persisted.
func (t *Tree) Root() page.PageRef { return t.root }

func (t *Tree) isEmpty() bool {
	return t.root.InMemory == nil && len(t.root.Fragments) == 0 && t.root.Offset() == 0
}

func (t *Tree) newRef(n page.Page) page.PageRef {
	t.nextKey++
	return page.PageRef{Key: t.nextKey, InMemory: n}
}

func (t *Tree) resolve(ref page.PageRef) (page.Page, error) {
	if ref.InMemory != nil {
		return ref.InMemory, nil
	}
	if len(ref.Fragments) == 0 && ref.Offset() == 0 {
		return nil, nil
	}
	if t.reader == nil {
		return nil, errNilReader
	}
	raw, err := t.reader.ReadPageAt(ref.Offset())
	if err != nil {
		return nil, err
	}
	decoded := raw
	if t.pipeline != nil {
		decoded, err = t.pipeline.Decode(raw)
		if err != nil {
			return nil, err
		}
	}
	return decodeNode(decoded)
}

var errNilReader = errors.New("hot: node not resolvable in memory and no reader wired")

// Get implements pagetx.HOTIndex: the node-reference set stored at key,
// if any. The read is optimistic (spec's testable property #9): it takes
// the landing leaf's guard token before reading its entries and retries
// if a concurrent mutation bumped the guard meanwhile, rather than
// holding a lock across the read.
func (t *Tree) Get(key []byte) (*noderefs.NodeReferences, bool, error) {
	if t.isEmpty() {
		return nil, false, nil
	}
	for {
		leaf, err := t.findLeaf(t.root, key)
		if err != nil {
			return nil, false, err
		}
		if leaf == nil {
			return nil, false, nil
		}
		token := leaf.acquireGuard()
		idx := leaf.findEntry(key)
		if idx < 0 {
			if leaf.releaseGuard(token) {
				return nil, false, nil
			}
			continue
		}
		value := leaf.Entries[idx].Value
		if !leaf.releaseGuard(token) {
			continue
		}
		if isTombstone(value) {
			return nil, false, nil
		}
		refs, err := noderefs.Unmarshal(value)
		if err != nil {
			return nil, false, err
		}
		return refs, true, nil
	}
}

// findLeaf walks from ref following key's partial key at each indirect
// node's selectChild result, landing on the one leaf that would hold key
// if it is present at all.
func (t *Tree) findLeaf(ref page.PageRef, key []byte) (*HOTLeafPage, error) {
	node, err := t.resolve(ref)
	if err != nil || node == nil {
		return nil, err
	}
	switch n := node.(type) {
	case *HOTLeafPage:
		return n, nil
	case *HOTIndirectPage:
		idx := n.selectChild(key)
		return t.findLeaf(n.Children[idx], key)
	default:
		return nil, errUnknownNodeKind
	}
}
