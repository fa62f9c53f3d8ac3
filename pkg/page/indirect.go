package page

import "encoding/binary"

// IndirectPage is one level of the record-to-page indirection tree
// shared by every typed index subtree: a fixed-fanout array of PageRefs,
// indexed by the relevant bits of the addressed key (spec §3.3/§4.1).
//
// Grounded on the teacher's btree.Node interior layout (a fixed array of
// child pointers keyed by separator position), generalized from
// key-ranged separators to direct positional indexing since the page
// layer's indirection tree is addressed by key-derived index, not by
// comparison against stored separator keys.
type IndirectPage struct {
	Children []PageRef
}

func (p *IndirectPage) Kind() PageKind { return KindIndirect }

func (p *IndirectPage) Encode() []byte {
	buf := make([]byte, 4+len(p.Children)*16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Children)))
	off := 4
	for _, c := range p.Children {
		binary.LittleEndian.PutUint64(buf[off:off+8], c.Key)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], uint64(c.Offset()))
		off += 16
	}
	return buf
}

func (p *IndirectPage) SerializedSize() int { return 4 + len(p.Children)*16 }

func DecodeIndirectPage(data []byte) (*IndirectPage, error) {
	if len(data) < 4 {
		return nil, errShortIndirect
	}
	count := int(binary.LittleEndian.Uint32(data[0:4]))
	if len(data) < 4+count*16 {
		return nil, errShortIndirect
	}

	children := make([]PageRef, count)
	off := 4
	for i := 0; i < count; i++ {
		key := binary.LittleEndian.Uint64(data[off : off+8])
		offset := int64(binary.LittleEndian.Uint64(data[off+8 : off+16]))
		children[i] = PageRef{Key: key, Fragments: []Fragment{{Offset: offset}}}
		off += 16
	}
	return &IndirectPage{Children: children}, nil
}
