package hot

import (
	"stratadb/pkg/errs"
	"stratadb/pkg/page"
)

// Insert implements pagetx.HOTIndex: adds nodeKey to the reference set at
// key, creating the set (and any trie structure needed) if key is new.
func (t *Tree) Insert(key []byte, nodeKey uint64) error {
	if t.isEmpty() {
		leaf := &HOTLeafPage{}
		if _, err := leaf.mergeWithNodeRefs(key, nodeKey); err != nil {
			return err
		}
		t.root = t.newRef(leaf)
		return nil
	}

	newRoot, err := t.doInsert(t.root, key, nodeKey)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

// doInsert path-copies every node it descends through (spec's COW rule,
// grounded on sirgallo-mari's copyINode clone-on-descent) and returns the
// ref that should replace ref in its parent. Routing a key no longer
// needs a per-level "does this belong here" critical-bit check the way a
// one-key-per-leaf trie does: selectChild always lands on some leaf, and
// a multi-entry leaf can legitimately hold many unrelated keys, so insert
// only has to react when that leaf runs out of room (spec §4.4.7,
// simplified per the design ledger to a single split-and-retry rather
// than the full MAX_INSERT_RETRIES cycle).
func (t *Tree) doInsert(ref page.PageRef, key []byte, nodeKey uint64) (page.PageRef, error) {
	node, err := t.resolve(ref)
	if err != nil {
		return page.PageRef{}, err
	}

	switch n := node.(type) {
	case *HOTLeafPage:
		clone := n.copy()
		ok, err := clone.mergeWithNodeRefs(key, nodeKey)
		if err != nil {
			return page.PageRef{}, err
		}
		if ok {
			clone.bumpGuard()
			return t.newRef(clone), nil
		}
		return t.splitAndInsert(clone, key, nodeKey)

	case *HOTIndirectPage:
		idx := n.selectChild(key)
		newChildRef, err := t.doInsert(n.Children[idx], key, nodeKey)
		if err != nil {
			return page.PageRef{}, err
		}
		clone := cloneIndirect(n)
		clone.Children[idx] = newChildRef
		if childNode, ok := newChildRef.InMemory.(*HOTIndirectPage); ok {
			if folded, ok := foldChild(clone, idx, childNode); ok {
				return t.newRef(folded), nil
			}
		}
		return t.newRef(clone), nil

	default:
		return page.PageRef{}, errUnknownNodeKind
	}
}

// splitAndInsert splits leaf (already over capacity) into two on the first
// bit at which its smallest and largest keys differ: entries with that bit
// clear stay in leaf, entries with it set move to a new right leaf. It
// inserts (key, nodeKey) into the half that bit selects for key and wires
// both under a new two-child BiNode discriminating on the same bit, so a
// lookup routes every key to the half that holds it. If leaf cannot be
// split at all (a single entry already at capacity, spec §4.4.7 scenario
// F), or the chosen half still can't fit the new entry after splitting,
// insert fails with SpaceExhausted rather than looping indefinitely.
func (t *Tree) splitAndInsert(leaf *HOTLeafPage, key []byte, nodeKey uint64) (page.PageRef, error) {
	if len(leaf.Entries) < 2 {
		return page.PageRef{}, spaceExhausted(leaf, key, nodeKey)
	}
	critBit, differs := firstDifferingBit(leaf.minKey(), leaf.maxKey())
	if !differs {
		return page.PageRef{}, errs.Invariantf("hot: leaf to split has equal minimum and maximum keys")
	}

	right := &HOTLeafPage{PageKey: leaf.PageKey, IndexType: leaf.IndexType}
	var left []HOTLeafEntry
	for _, e := range leaf.Entries {
		if bitAt(e.Key, critBit) == 1 {
			right.Entries = append(right.Entries, e)
		} else {
			left = append(left, e)
		}
	}
	leaf.Entries = left

	target := leaf
	if bitAt(key, critBit) == 1 {
		target = right
	}
	if ok, err := target.mergeWithNodeRefs(key, nodeKey); err != nil {
		return page.PageRef{}, err
	} else if !ok {
		return page.PageRef{}, spaceExhausted(target, key, nodeKey)
	}
	leaf.bumpGuard()
	right.bumpGuard()

	offsetBytes := uint8(critBit / 8)
	windowBitPos := critBit - uint32(offsetBytes)*8
	node := &HOTIndirectPage{
		Windows:     []PartialKeyWindow{{OffsetBytes: offsetBytes, Mask: singleBitMask(windowBitPos)}},
		PartialKeys: []uint32{0, 1},
		Children:    []page.PageRef{t.newRef(leaf), t.newRef(right)},
	}
	return t.newRef(node), nil
}

func spaceExhausted(leaf *HOTLeafPage, key []byte, nodeKey uint64) error {
	required := 2 + len(key) + 2 + 8
	return &errs.SpaceExhaustedError{
		IndexType:      "hot",
		EntryCount:     len(leaf.Entries),
		RemainingSpace: leaf.freeSpace(),
		RequiredSpace:  required,
	}
}
