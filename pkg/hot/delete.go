package hot

import "stratadb/pkg/page"

// Remove implements pagetx.HOTIndex: drops nodeKey from the reference set
// at key. The entry is tombstoned in place rather than structurally
// removed (spec §4.4.10: a concurrent reader mid-traversal must still see
// a stable key ordering and count), so Remove never changes the trie's
// shape; Compact is what later reclaims tombstoned entries and downgrades
// nodes whose children have thinned out. Removing an absent key or an
// absent nodeKey within an existing key is a no-op.
func (t *Tree) Remove(key []byte, nodeKey uint64) error {
	if t.isEmpty() {
		return nil
	}
	newRoot, err := t.doRemove(t.root, key, nodeKey)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Tree) doRemove(ref page.PageRef, key []byte, nodeKey uint64) (page.PageRef, error) {
	node, err := t.resolve(ref)
	if err != nil {
		return page.PageRef{}, err
	}
	switch n := node.(type) {
	case *HOTLeafPage:
		clone := n.copy()
		if err := clone.removeNodeRef(key, nodeKey); err != nil {
			return page.PageRef{}, err
		}
		clone.bumpGuard()
		return t.newRef(clone), nil
	case *HOTIndirectPage:
		idx := n.selectChild(key)
		newChildRef, err := t.doRemove(n.Children[idx], key, nodeKey)
		if err != nil {
			return page.PageRef{}, err
		}
		clone := cloneIndirect(n)
		clone.Children[idx] = newChildRef
		return t.newRef(clone), nil
	default:
		return page.PageRef{}, errUnknownNodeKind
	}
}

// Compact walks the whole tree, dropping tombstoned leaf entries and
// pruning subtrees that have gone empty, collapsing any indirect node
// left with a single child directly into that child (spec §4.4.9's
// downgrade path: repeated collapse is exactly how a MultiNode shrinks
// back through SpanNode to BiNode as NodeKind is read off the surviving
// child count). This is the maintenance call a caller runs periodically
// rather than a cost paid on every Remove.
func (t *Tree) Compact() error {
	if t.isEmpty() {
		return nil
	}
	newRoot, empty, err := t.compactRef(t.root)
	if err != nil {
		return err
	}
	if empty {
		t.root = page.PageRef{}
		return nil
	}
	t.root = newRoot
	return nil
}

// compactRef returns the ref that should replace ref in its parent, and
// whether the subtree rooted at ref compacted away to nothing.
func (t *Tree) compactRef(ref page.PageRef) (page.PageRef, bool, error) {
	node, err := t.resolve(ref)
	if err != nil {
		return page.PageRef{}, false, err
	}

	switch n := node.(type) {
	case *HOTLeafPage:
		clone := n.copy()
		clone.compact()
		if len(clone.Entries) == 0 {
			return page.PageRef{}, true, nil
		}
		clone.bumpGuard()
		return t.newRef(clone), false, nil

	case *HOTIndirectPage:
		clone := &HOTIndirectPage{Windows: n.Windows}
		for i, child := range n.Children {
			newChild, empty, err := t.compactRef(child)
			if err != nil {
				return page.PageRef{}, false, err
			}
			if empty {
				continue
			}
			clone.PartialKeys = append(clone.PartialKeys, n.PartialKeys[i])
			clone.Children = append(clone.Children, newChild)
		}
		if len(clone.Children) == 0 {
			return page.PageRef{}, true, nil
		}
		if len(clone.Children) == 1 {
			return clone.Children[0], false, nil
		}
		return t.newRef(clone), false, nil

	default:
		return page.PageRef{}, false, errUnknownNodeKind
	}
}
