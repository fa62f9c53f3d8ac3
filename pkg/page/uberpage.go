package page

import "encoding/binary"

// UberPage is the single root of the page tree: it never changes keys
// across revisions, only the RevisionRoot it points at (spec §3.2). The
// block store's header slot always holds the physical address of the
// most recently committed UberPage.
type UberPage struct {
	RevisionRoot   PageRef
	MaxNodeKey     uint64
	RevisionNumber RevisionNumber
}

func (p *UberPage) Kind() PageKind { return KindUber }

func (p *UberPage) Encode() []byte {
	buf := make([]byte, 8+8+8+4)
	binary.LittleEndian.PutUint64(buf[0:8], p.RevisionRoot.Key)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(p.RevisionRoot.Offset()))
	binary.LittleEndian.PutUint64(buf[16:24], p.MaxNodeKey)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(p.RevisionNumber))
	return buf
}

func (p *UberPage) SerializedSize() int { return 28 }

// Offset returns the single-fragment physical address most PageRefs in
// this implementation carry (UberPage and RevisionRootPage always
// version under the "full" algorithm, so exactly one fragment exists
// once committed).
func (r PageRef) Offset() int64 {
	if len(r.Fragments) == 0 {
		return 0
	}
	return r.Fragments[0].Offset
}

// DecodeUberPage parses a block previously produced by Encode.
func DecodeUberPage(data []byte) (*UberPage, error) {
	if len(data) < 28 {
		return nil, errShortUberPage
	}
	key := binary.LittleEndian.Uint64(data[0:8])
	offset := int64(binary.LittleEndian.Uint64(data[8:16]))
	p := &UberPage{
		RevisionRoot: PageRef{
			Key:       key,
			Fragments: []Fragment{{Offset: offset}},
		},
		MaxNodeKey:     binary.LittleEndian.Uint64(data[16:24]),
		RevisionNumber: RevisionNumber(binary.LittleEndian.Uint32(data[24:28])),
	}
	return p, nil
}
