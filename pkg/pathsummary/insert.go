package pathsummary

import "stratadb/pkg/page"

// splitResult mirrors teacher pkg/btree's splitResult: the separator key
// promoted to the parent plus the two children it now separates.
type splitResult struct {
	promotedKey uint64
	leftOffset  int64
	rightOffset int64
}

// Insert inserts entry, or replaces the existing entry for the same
// PathNodeKey, rewriting every node on the path from root to leaf (and the
// root offset itself) at fresh block offsets.
func (t *Tree) Insert(entry page.PathSummaryEntry) error {
	if t.root == 0 {
		leaf := &page.PathSummaryPage{Entries: []page.PathSummaryEntry{entry}}
		off, err := t.write(leaf)
		if err != nil {
			return err
		}
		t.root = off
		return nil
	}

	newRoot, split, err := t.insertRec(t.root, entry)
	if err != nil {
		return err
	}
	if split == nil {
		t.root = newRoot
		return nil
	}

	root := &page.PathSummaryPage{
		Entries:  []page.PathSummaryEntry{{PathNodeKey: split.promotedKey}},
		Children: []int64{split.leftOffset, split.rightOffset},
	}
	off, err := t.write(root)
	if err != nil {
		return err
	}
	t.root = off
	return nil
}

func (t *Tree) insertRec(offset int64, entry page.PathSummaryEntry) (int64, *splitResult, error) {
	node, err := t.read(offset)
	if err != nil {
		return 0, nil, err
	}

	if len(node.Children) == 0 {
		return t.insertLeaf(node, entry)
	}

	idx := childIndex(node, entry.PathNodeKey)
	newChildOffset, split, err := t.insertRec(node.Children[idx], entry)
	if err != nil {
		return 0, nil, err
	}

	clone := cloneNode(node)
	if split == nil {
		clone.Children[idx] = newChildOffset
		off, err := t.write(clone)
		return off, nil, err
	}

	clone.Children[idx] = split.leftOffset
	clone.Entries = insertEntryAt(clone.Entries, idx, page.PathSummaryEntry{PathNodeKey: split.promotedKey})
	clone.Children = insertChildAt(clone.Children, idx+1, split.rightOffset)

	if len(clone.Entries) <= t.capacity {
		off, err := t.write(clone)
		return off, nil, err
	}
	return t.splitInterior(clone)
}

func (t *Tree) insertLeaf(node *page.PathSummaryPage, entry page.PathSummaryEntry) (int64, *splitResult, error) {
	clone := cloneNode(node)
	idx := 0
	for idx < len(clone.Entries) && clone.Entries[idx].PathNodeKey < entry.PathNodeKey {
		idx++
	}
	if idx < len(clone.Entries) && clone.Entries[idx].PathNodeKey == entry.PathNodeKey {
		clone.Entries[idx] = entry
	} else {
		clone.Entries = insertEntryAt(clone.Entries, idx, entry)
	}

	if len(clone.Entries) <= t.capacity {
		off, err := t.write(clone)
		return off, nil, err
	}
	return t.splitLeaf(clone)
}

// splitLeaf splits a full leaf in half, promoting the right half's first
// key as the separator (standard B+-tree leaf split: the separator key
// also remains the right leaf's first entry, unlike an interior split).
func (t *Tree) splitLeaf(node *page.PathSummaryPage) (int64, *splitResult, error) {
	mid := len(node.Entries) / 2
	left := &page.PathSummaryPage{Entries: append([]page.PathSummaryEntry(nil), node.Entries[:mid]...)}
	right := &page.PathSummaryPage{Entries: append([]page.PathSummaryEntry(nil), node.Entries[mid:]...)}

	leftOff, err := t.write(left)
	if err != nil {
		return 0, nil, err
	}
	rightOff, err := t.write(right)
	if err != nil {
		return 0, nil, err
	}
	return 0, &splitResult{promotedKey: right.Entries[0].PathNodeKey, leftOffset: leftOff, rightOffset: rightOff}, nil
}

// splitInterior splits a full interior node, promoting its median key to
// the parent (not copied down, unlike a leaf split).
func (t *Tree) splitInterior(node *page.PathSummaryPage) (int64, *splitResult, error) {
	mid := len(node.Entries) / 2
	promotedKey := node.Entries[mid].PathNodeKey

	left := &page.PathSummaryPage{
		Entries:  append([]page.PathSummaryEntry(nil), node.Entries[:mid]...),
		Children: append([]int64(nil), node.Children[:mid+1]...),
	}
	right := &page.PathSummaryPage{
		Entries:  append([]page.PathSummaryEntry(nil), node.Entries[mid+1:]...),
		Children: append([]int64(nil), node.Children[mid+1:]...),
	}

	leftOff, err := t.write(left)
	if err != nil {
		return 0, nil, err
	}
	rightOff, err := t.write(right)
	if err != nil {
		return 0, nil, err
	}
	return 0, &splitResult{promotedKey: promotedKey, leftOffset: leftOff, rightOffset: rightOff}, nil
}

func insertEntryAt(entries []page.PathSummaryEntry, idx int, e page.PathSummaryEntry) []page.PathSummaryEntry {
	entries = append(entries, page.PathSummaryEntry{})
	copy(entries[idx+1:], entries[idx:])
	entries[idx] = e
	return entries
}

func insertChildAt(children []int64, idx int, c int64) []int64 {
	children = append(children, 0)
	copy(children[idx+1:], children[idx:])
	children[idx] = c
	return children
}
