package hot

import (
	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/page"
)

// Flush recursively writes every in-memory-only node reachable from the
// root through store, applying pipeline, and returns the fully-persisted
// root reference. resource.WriteSession.Commit calls this for each of the
// three HOT indexes before the underlying page transaction commits, since
// the resulting PageRef is what gets stored into the RevisionRootPage's
// NameIndex/PathIndex/CASIndex field.
func (t *Tree) Flush(store blockio.Writer, pipeline *codec.Pipeline) (page.PageRef, error) {
	newRoot, err := t.flushRef(t.root, store, pipeline)
	if err != nil {
		return page.PageRef{}, err
	}
	t.root = newRoot
	return newRoot, nil
}

func (t *Tree) flushRef(ref page.PageRef, store blockio.Writer, pipeline *codec.Pipeline) (page.PageRef, error) {
	if ref.InMemory == nil {
		return ref, nil
	}
	switch n := ref.InMemory.(type) {
	case *HOTIndirectPage:
		children := make([]page.PageRef, len(n.Children))
		for i, child := range n.Children {
			flushed, err := t.flushRef(child, store, pipeline)
			if err != nil {
				return page.PageRef{}, err
			}
			children[i] = flushed
		}
		persisted := &HOTIndirectPage{
			Windows:     n.Windows,
			PartialKeys: n.PartialKeys,
			Children:    children,
		}
		return writeNode(persisted, ref.Key, store, pipeline)
	case *HOTLeafPage:
		return writeNode(n, ref.Key, store, pipeline)
	default:
		return page.PageRef{}, errUnknownNodeKind
	}
}

func writeNode(n page.Page, key uint64, store blockio.Writer, pipeline *codec.Pipeline) (page.PageRef, error) {
	raw := n.Encode()
	stored := raw
	if pipeline != nil {
		var err error
		stored, err = pipeline.Encode(raw)
		if err != nil {
			return page.PageRef{}, err
		}
	}
	offset, err := store.AppendBlock(stored)
	if err != nil {
		return page.PageRef{}, err
	}
	return page.PageRef{
		Key:       key,
		Fragments: []page.Fragment{{Offset: offset, Length: uint32(len(raw))}},
	}, nil
}
