package page

import "encoding/binary"

// PathSummaryEntry is one node of the path summary tree: the distinct
// name a path step takes, its parent in the summary, and how many live
// document nodes currently take this path (spec §4.5).
type PathSummaryEntry struct {
	PathNodeKey  uint64
	ParentKey    uint64
	NameKey      uint64
	ChildCount   uint32
}

// PathSummaryPage is a node of the incremental B-tree path summary index.
// Unlike the document/name/path/CAS indexes, the path summary is not
// versioned under COW — it is maintained as a plain mutable B-tree
// alongside the resource (spec §4.5 calls it a simpler, "HOT-less"
// collaborator) — so this page carries no PageRef fan-out of its own;
// pkg/pathsummary manages child links by block address directly.
type PathSummaryPage struct {
	Entries  []PathSummaryEntry
	Children []int64 // child block offsets; empty for a leaf node
}

func (p *PathSummaryPage) Kind() PageKind { return KindPathSummary }

func (p *PathSummaryPage) Encode() []byte {
	buf := make([]byte, p.SerializedSize())
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(p.Entries)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(p.Children)))

	off := 8
	for _, e := range p.Entries {
		binary.LittleEndian.PutUint64(buf[off:off+8], e.PathNodeKey)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], e.ParentKey)
		binary.LittleEndian.PutUint64(buf[off+16:off+24], e.NameKey)
		binary.LittleEndian.PutUint32(buf[off+24:off+28], e.ChildCount)
		off += 28
	}
	for _, c := range p.Children {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(c))
		off += 8
	}
	return buf
}

func (p *PathSummaryPage) SerializedSize() int {
	return 8 + len(p.Entries)*28 + len(p.Children)*8
}

func DecodePathSummaryPage(data []byte) (*PathSummaryPage, error) {
	if len(data) < 8 {
		return nil, errShortPathSummaryEntry
	}
	entryCount := int(binary.LittleEndian.Uint32(data[0:4]))
	childCount := int(binary.LittleEndian.Uint32(data[4:8]))

	want := 8 + entryCount*28 + childCount*8
	if len(data) < want {
		return nil, errShortPathSummaryEntry
	}

	entries := make([]PathSummaryEntry, entryCount)
	off := 8
	for i := range entries {
		entries[i] = PathSummaryEntry{
			PathNodeKey: binary.LittleEndian.Uint64(data[off : off+8]),
			ParentKey:   binary.LittleEndian.Uint64(data[off+8 : off+16]),
			NameKey:     binary.LittleEndian.Uint64(data[off+16 : off+24]),
			ChildCount:  binary.LittleEndian.Uint32(data[off+24 : off+28]),
		}
		off += 28
	}

	children := make([]int64, childCount)
	for i := range children {
		children[i] = int64(binary.LittleEndian.Uint64(data[off : off+8]))
		off += 8
	}

	return &PathSummaryPage{Entries: entries, Children: children}, nil
}
