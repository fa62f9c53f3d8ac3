package hot

import (
	"bytes"
	"sort"

	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
)

// Range calls fn for every (key, refs) pair with lo <= key < hi in
// ascending byte order, stopping as soon as fn returns false. A nil lo or
// hi leaves that side of the range open. A left-to-right walk of the
// Children slices is not byte order by itself: a split discriminates on a
// single bit, so keys that differ above that bit can share a subtree.
// Range therefore gathers the matching pairs first and sorts them by key
// before calling fn.
func (t *Tree) Range(lo, hi []byte, fn func(key []byte, refs *noderefs.NodeReferences) bool) error {
	type pair struct {
		key  []byte
		refs *noderefs.NodeReferences
	}
	var pairs []pair
	err := t.rangeRec(t.root, lo, hi, func(key []byte, refs *noderefs.NodeReferences) bool {
		pairs = append(pairs, pair{key, refs})
		return true
	})
	if err != nil {
		return err
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].key, pairs[j].key) < 0 })
	for _, p := range pairs {
		if !fn(p.key, p.refs) {
			return nil
		}
	}
	return nil
}

func (t *Tree) rangeRec(ref page.PageRef, lo, hi []byte, fn func([]byte, *noderefs.NodeReferences) bool) error {
	if ref.InMemory == nil && len(ref.Fragments) == 0 && ref.Offset() == 0 {
		return nil
	}
	node, err := t.resolve(ref)
	if err != nil || node == nil {
		return err
	}
	switch n := node.(type) {
	case *HOTLeafPage:
		for _, e := range n.Entries {
			if isTombstone(e.Value) {
				continue
			}
			if lo != nil && bytes.Compare(e.Key, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(e.Key, hi) >= 0 {
				continue
			}
			refs, err := noderefs.Unmarshal(e.Value)
			if err != nil {
				return err
			}
			if !fn(e.Key, refs) {
				return errStopIteration
			}
		}
		return nil
	case *HOTIndirectPage:
		for _, child := range n.Children {
			if err := t.rangeRec(child, lo, hi, fn); err != nil {
				return err
			}
		}
		return nil
	default:
		return errUnknownNodeKind
	}
}
