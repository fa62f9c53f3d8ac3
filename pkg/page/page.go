// Package page defines the tagged sum of on-disk page variants that make
// up the COW page tree (spec §3.2/§3.3): the UberPage root, per-revision
// RevisionRootPage, generic IndirectPage fan-out nodes, the NodeKey- and
// name-key-addressed leaf pages for the document index and the name
// interning dictionary, the path summary page, and (defined in pkg/hot to
// avoid an import cycle) the two HOT node page kinds backing the path,
// CAS and by-name secondary indexes, all tagged into one PageKind so the
// page cache and block store can hold any of them behind a single
// interface.
//
// Grounded on the teacher's cowbtree.CowNode (isLeaf tag distinguishing
// leaf/interior layout within one node type) and btree.Node (a one-byte
// header tag identifying page flavor), generalized from a two-way
// leaf/interior tag to the spec's full page-kind enumeration.
package page

import "stratadb/pkg/record"

// PageKind tags which on-disk page variant a block holds.
type PageKind byte

const (
	KindUber PageKind = iota + 1
	KindRevisionRoot
	KindIndirect
	KindKeyValueLeaf
	KindName
	KindPath
	KindCAS
	KindPathSummary
	KindHOTLeaf
	KindHOTIndirect
)

func (k PageKind) String() string {
	switch k {
	case KindUber:
		return "uber"
	case KindRevisionRoot:
		return "revision_root"
	case KindIndirect:
		return "indirect"
	case KindKeyValueLeaf:
		return "key_value_leaf"
	case KindName:
		return "name"
	case KindPath:
		return "path"
	case KindCAS:
		return "cas"
	case KindPathSummary:
		return "path_summary"
	case KindHOTLeaf:
		return "hot_leaf"
	case KindHOTIndirect:
		return "hot_indirect"
	default:
		return "unknown"
	}
}

// Page is the common interface every page variant implements: the
// page-cache Entry contract plus its tag and wire encoding.
type Page interface {
	Kind() PageKind
	Encode() []byte
	SerializedSize() int
}

// RevisionNumber identifies a committed revision of a resource (spec §3.1).
type RevisionNumber uint64

// Fragment is one physical version of a page's content, used to assemble
// a page under the Incremental/Differential/SlidingSnapshot versioning
// algorithms (spec §4.3): newest fragment first, older fragments provide
// the deltas or full base a reader folds forward from.
type Fragment struct {
	Revision RevisionNumber
	Offset   int64
	Length   uint32
}

// PageRef is how every page slot in the tree refers to its child: either
// the child is already resident in memory, or it resolves through the
// transaction intent log (LogKey != 0), or it must be read from the
// block store by walking Fragments under the active versioning algorithm.
type PageRef struct {
	Key       uint64 // stable logical slot identity (indirection index)
	LogKey    int64  // non-zero while the page exists only in the intent log
	InMemory  Page   // non-nil once decoded and cached
	Fragments []Fragment
}

// IsResolved reports whether the reference already has its target handy
// without needing a block-store read.
func (r PageRef) IsResolved() bool {
	return r.InMemory != nil
}

// LeafEntry is one (key, record) pair inside a leaf page. Key is the
// byte-string form used directly by PATH/NAME/CAS index leaves; document
// index leaves use the big-endian encoding of their NodeKey so entries
// stay sorted by key identity.
type LeafEntry struct {
	Key   []byte
	Value *record.Record
}
