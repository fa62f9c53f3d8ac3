// Package pathsummary implements the path summary index (spec §4.5): an
// incremental B-tree mapping a PathNodeKey to its parent, the name it
// takes, and how many live document nodes currently share that path.
//
// Unlike pkg/pagetx's document/name/path/CAS indexes, the path summary is
// explicitly not versioned under copy-on-write (spec calls it a simpler,
// "HOT-less" collaborator): there is exactly one current tree, addressed
// by plain block offsets (page.PathSummaryPage.Children), not PageRefs.
// Because the underlying block log is still append-only, a mutation still
// rewrites every node on the path to the root — it just never retains an
// older root as a readable revision once rewritten.
//
// Grounded on teacher pkg/btree (page.Node/cell layout, recursive
// insert-with-split-propagation, lazy no-rebalance delete), adapted from
// its fixed-size in-place pager pages to this project's append-only block
// log: every modified node, including unsplit ancestors whose only change
// is a child pointer, is rewritten at a new offset rather than mutated in
// place, and the standard n+1-children B-tree layout replaces the
// teacher's single-cell-plus-rightChild node format.
package pathsummary

import (
	"errors"
	"sort"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/page"
)

var errKeyNotFound = errors.New("pathsummary: key not found")

// DefaultCapacity is the maximum number of entries a node holds before it
// splits, mirroring pkg/pagetx.DefaultLeafCapacity's role for the
// document index.
const DefaultCapacity = 128

// Tree is the path summary index for one resource.
type Tree struct {
	store    blockio.Store
	pipeline *codec.Pipeline
	root     int64 // 0 means empty; blockio.NewMemoryStore reserves offset 0 for "never written"
	capacity int
}

// New returns an empty path summary tree that will write its first node on
// the first Insert.
func New(store blockio.Store, pipeline *codec.Pipeline) *Tree {
	return &Tree{store: store, pipeline: pipeline, capacity: DefaultCapacity}
}

// Open resumes a path summary tree from a previously persisted root
// offset.
func Open(store blockio.Store, pipeline *codec.Pipeline, root int64) *Tree {
	return &Tree{store: store, pipeline: pipeline, root: root, capacity: DefaultCapacity}
}

// Root returns the tree's current root block offset, for persisting into
// the resource's own layout (spec §4.5 keeps this outside the RevisionRoot
// fan-out the COW indexes use).
func (t *Tree) Root() int64 { return t.root }

func (t *Tree) read(offset int64) (*page.PathSummaryPage, error) {
	raw, err := t.store.ReadPageAt(offset)
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
	return page.DecodePathSummaryPage(decoded)
}

func (t *Tree) write(n *page.PathSummaryPage) (int64, error) {
	raw := n.Encode()
	stored := raw
	if t.pipeline != nil {
		var err error
		stored, err = t.pipeline.Encode(raw)
		if err != nil {
			return 0, err
		}
	}
	return t.store.AppendBlock(stored)
}

// Get returns the path summary entry for pathNodeKey, if present.
func (t *Tree) Get(pathNodeKey uint64) (page.PathSummaryEntry, bool, error) {
	if t.root == 0 {
		return page.PathSummaryEntry{}, false, nil
	}
	return t.getRec(t.root, pathNodeKey)
}

func (t *Tree) getRec(offset int64, key uint64) (page.PathSummaryEntry, bool, error) {
	node, err := t.read(offset)
	if err != nil {
		return page.PathSummaryEntry{}, false, err
	}
	if len(node.Children) == 0 {
		i := sort.Search(len(node.Entries), func(i int) bool { return node.Entries[i].PathNodeKey >= key })
		if i < len(node.Entries) && node.Entries[i].PathNodeKey == key {
			return node.Entries[i], true, nil
		}
		return page.PathSummaryEntry{}, false, nil
	}
	return t.getRec(node.Children[childIndex(node, key)], key)
}

// childIndex returns which child a key routes to in an interior node: the
// number of separator entries strictly less than or equal to key.
func childIndex(node *page.PathSummaryPage, key uint64) int {
	for i, e := range node.Entries {
		if key < e.PathNodeKey {
			return i
		}
	}
	return len(node.Entries)
}

func cloneNode(n *page.PathSummaryPage) *page.PathSummaryPage {
	entries := make([]page.PathSummaryEntry, len(n.Entries))
	copy(entries, n.Entries)
	children := make([]int64, len(n.Children))
	copy(children, n.Children)
	return &page.PathSummaryPage{Entries: entries, Children: children}
}
