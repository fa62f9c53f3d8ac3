package page

import "encoding/binary"

// RevisionRootPage anchors one committed revision: the root of the
// document's plain node_key-indirection tree, the roots of the three
// HOT secondary indexes, the path summary, and the name-interning
// dictionary (spec §3.2/§3.3, §4.3 create_name_key).
//
// NameIndex/PathIndex/CASIndex are HOT tree roots (a PageRef whose
// physical page decodes as either a HOTLeafPage or a HOTIndirectPage,
// both defined in pkg/hot): they map serialized qualified-name / path /
// CAS-value bytes to NodeReferences bitmaps, answering "which document
// nodes have this name/path/value" (spec §1, §4.4). create_name_key's
// small-integer interning table is a separate concern — a name string
// has no relationship to which nodes currently use it — so it gets its
// own plain indirection-tree root, NameDict, keyed by the interned i32
// name key and holding NameCountEntry records. Spec §3.3 lists "NamePage"
// as a single per-kind subtree root; this splits it into the HOT lookup
// structure (NameIndex) and the interning table (NameDict) it is
// logically independent of, since one root cannot hold both a
// bytes-keyed HOT tree and an int-keyed plain tree at once.
//
// Every write transaction clones the RevisionRootPage it started from
// and replaces only the refs whose subtree it actually touched.
type RevisionRootPage struct {
	Revision      RevisionNumber
	TimestampUnix int64
	MaxNodeKey    uint64 // next NodeKey to assign in DocumentIndex
	NextNameKey   uint32 // next i32 key to assign in NameDict (create_name_key)
	DocumentIndex PageRef // document/KeyValueLeaf index root
	NameIndex     PageRef // HOT: qualified-name bytes -> NodeReferences
	PathIndex     PageRef // HOT: path bytes -> NodeReferences
	CASIndex      PageRef // HOT: typed-value bytes -> NodeReferences
	PathSummary   PageRef
	NameDict      PageRef // plain indirection tree: i32 name key -> NameCountEntry
}

func (p *RevisionRootPage) Kind() PageKind { return KindRevisionRoot }

const revisionRootRefCount = 6

const revisionRootFixedSize = 8 + 8 + 8 + 4

func (p *RevisionRootPage) Encode() []byte {
	buf := make([]byte, revisionRootFixedSize+revisionRootRefCount*16)
	off := 0
	putU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[off:off+8], v)
		off += 8
	}
	putRef := func(r PageRef) {
		putU64(r.Key)
		putU64(uint64(r.Offset()))
	}

	putU64(uint64(p.Revision))
	putU64(uint64(p.TimestampUnix))
	putU64(p.MaxNodeKey)
	binary.LittleEndian.PutUint32(buf[off:off+4], p.NextNameKey)
	off += 4
	putRef(p.DocumentIndex)
	putRef(p.NameIndex)
	putRef(p.PathIndex)
	putRef(p.CASIndex)
	putRef(p.PathSummary)
	putRef(p.NameDict)
	return buf
}

func (p *RevisionRootPage) SerializedSize() int {
	return revisionRootFixedSize + revisionRootRefCount*16
}

// Clone returns a shallow copy suitable as the basis for the next
// revision's root: every ref is copied by value, so the caller can
// overwrite only the subtree refs the in-flight transaction modifies.
func (p *RevisionRootPage) Clone() *RevisionRootPage {
	clone := *p
	return &clone
}

func DecodeRevisionRootPage(data []byte) (*RevisionRootPage, error) {
	const want = revisionRootFixedSize + revisionRootRefCount*16
	if len(data) < want {
		return nil, errShortRevisionRoot
	}

	off := 0
	getU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
		return v
	}
	getRef := func() PageRef {
		key := getU64()
		offset := int64(getU64())
		return PageRef{Key: key, Fragments: []Fragment{{Offset: offset}}}
	}

	p := &RevisionRootPage{}
	p.Revision = RevisionNumber(getU64())
	p.TimestampUnix = int64(getU64())
	p.MaxNodeKey = getU64()
	p.NextNameKey = binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	p.DocumentIndex = getRef()
	p.NameIndex = getRef()
	p.PathIndex = getRef()
	p.CASIndex = getRef()
	p.PathSummary = getRef()
	p.NameDict = getRef()
	return p, nil
}
