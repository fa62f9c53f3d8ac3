package page

import "encoding/binary"

// LeafPage is a sorted array of (key, record) entries. It backs the two
// plain node_key-indirection trees this layer owns directly: the document
// index (KindKeyValueLeaf, NodeKey-derived keys) and the name-interning
// dictionary (KindName, interned i32 name-key-derived keys holding
// NameCountEntry records). KindPath/KindCAS are reserved tags kept for
// symmetry but unused by this package: the path and CAS indexes are HOT
// trees (pkg/hot's HOTLeafPage/HOTIndirectPage), not LeafPage, since they
// map variable-length byte keys to NodeReferences bitmaps rather than
// fixed NodeKey-like integers to records (spec §1, §3.3, §4.4).
type LeafPage struct {
	kind    PageKind
	Entries []LeafEntry

	// PriorFragments holds the physical locations of older blocks this
	// leaf's entries were split across (spec §4.3
	// "references_to_prior_fragments"), newest first. Under Full
	// versioning every commit rewrites a complete leaf and this stays
	// empty; under Incremental/Differential/SlidingSnapshot, Entries
	// holds only the records touched in this revision and PriorFragments
	// points at the blocks pkg/pagetx must fold forward from to recover
	// the rest.
	PriorFragments []Fragment
}

// NewLeafPage constructs a self-contained leaf page tagged for the given
// index kind (no prior fragments — the Full versioning shape).
func NewLeafPage(kind PageKind, entries []LeafEntry) *LeafPage {
	return &LeafPage{kind: kind, Entries: entries}
}

// NewDeltaLeafPage constructs a leaf page that carries only the entries
// touched this revision, chained to the older fragments it depends on.
func NewDeltaLeafPage(kind PageKind, entries []LeafEntry, prior []Fragment) *LeafPage {
	return &LeafPage{kind: kind, Entries: entries, PriorFragments: prior}
}

func (p *LeafPage) Kind() PageKind { return p.kind }

func (p *LeafPage) Encode() []byte {
	size := p.SerializedSize()
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.kind))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Entries)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(p.PriorFragments)))

	off := 12
	for _, e := range p.Entries {
		off += putLenPrefixed(buf[off:], e.Key)
		recBytes := e.Value.Encode()
		off += putLenPrefixed(buf[off:], recBytes)
	}
	for _, f := range p.PriorFragments {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(f.Revision))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(f.Offset))
		binary.LittleEndian.PutUint32(buf[off+16:off+20], f.Length)
		off += fragmentEncodedSize
	}
	return buf
}

func (p *LeafPage) SerializedSize() int {
	size := 12
	for _, e := range p.Entries {
		size += lenPrefixedSize(e.Key)
		size += lenPrefixedSize(e.Value.Encode())
	}
	size += len(p.PriorFragments) * fragmentEncodedSize
	return size
}

const fragmentEncodedSize = 8 + 8 + 4

func putLenPrefixed(buf []byte, data []byte) int {
	n := binary.PutUvarint(buf, uint64(len(data)))
	copy(buf[n:], data)
	return n + len(data)
}

func lenPrefixedSize(data []byte) int {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(data)))
	return n + len(data)
}
