package hot

import (
	"bytes"
	"encoding/binary"
	"sort"

	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
)

// Node fan-out bounds from spec §4.4.5/§4.4.9: a node's encoding
// (BiNode/SpanNode/MultiNode) is picked by how many children it actually
// holds, which both the construction-time "choice rule" (driven by how
// many discriminative bits got folded together) and the runtime
// "downgrade rule" (driven by how many children survive compaction)
// agree on once expressed this way — see the design ledger's scope note.
const (
	maxBiChildren    = 2
	maxSpanChildren  = 16
	maxMultiChildren = 32
)

// NodeKind names which of the three HOT indirect-node encodings a given
// child count corresponds to (spec §4.4.5).
type NodeKind int

const (
	BiNode NodeKind = iota
	SpanNode
	MultiNode
)

func (k NodeKind) String() string {
	switch k {
	case BiNode:
		return "BiNode"
	case SpanNode:
		return "SpanNode"
	case MultiNode:
		return "MultiNode"
	default:
		return "unknown"
	}
}

// HOTIndirectPage is one discriminative-bit-span node: Windows describes
// where in the key its partial key is drawn from (spec §4.4.3), and
// PartialKeys[i] is the sparse partial key that routes to Children[i].
// Children stays sorted by ascending PartialKeys so Range can walk it
// left to right without re-sorting. BiNode, SpanNode and MultiNode are
// all this same struct; NodeKind reports which shape it currently has.
type HOTIndirectPage struct {
	Windows     []PartialKeyWindow
	PartialKeys []uint32
	Children    []page.PageRef
}

func (p *HOTIndirectPage) Kind() page.PageKind { return page.KindHOTIndirect }

// NodeKind classifies this node by its current child count (spec
// §4.4.5's choice rule at construction time, §4.4.9's downgrade rule
// thereafter — both collapse to the same thing under a child-count
// reading, the scope decision recorded in the design ledger).
func (p *HOTIndirectPage) NodeKind() NodeKind {
	switch {
	case len(p.Children) <= maxBiChildren:
		return BiNode
	case len(p.Children) <= maxSpanChildren:
		return SpanNode
	default:
		return MultiNode
	}
}

// selectChild extracts key's partial key under this node's windows and
// returns the index of the child it routes to (spec §4.4.4).
func (p *HOTIndirectPage) selectChild(key []byte) int {
	d, _ := extractPartialKey(key, p.Windows)
	return scalarSearch(d, p.PartialKeys)
}

func (p *HOTIndirectPage) Encode() []byte {
	out := make([]byte, 0, p.SerializedSize())
	out = append(out, byte(page.KindHOTIndirect))

	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(p.Windows)))
	out = append(out, tmp[:n]...)
	for _, w := range p.Windows {
		out = append(out, w.OffsetBytes)
		var mtmp [8]byte
		binary.BigEndian.PutUint64(mtmp[:], w.Mask)
		out = append(out, mtmp[:]...)
	}

	n = binary.PutUvarint(tmp[:], uint64(len(p.Children)))
	out = append(out, tmp[:n]...)
	for i, child := range p.Children {
		n = binary.PutUvarint(tmp[:], uint64(p.PartialKeys[i]))
		out = append(out, tmp[:n]...)
		out = append(out, encodeRef(child)...)
	}
	return out
}

func (p *HOTIndirectPage) SerializedSize() int {
	size := 1 + uvarintSize(uint64(len(p.Windows))) + len(p.Windows)*9
	size += uvarintSize(uint64(len(p.Children)))
	for i, child := range p.Children {
		size += uvarintSize(uint64(p.PartialKeys[i])) + refSize(child)
	}
	return size
}

func uvarintSize(v uint64) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], v)
}

func DecodeHOTIndirectPage(data []byte) (*HOTIndirectPage, error) {
	if len(data) < 2 {
		return nil, errShortNode
	}
	rest := data[1:]

	numWindows, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, errShortNode
	}
	rest = rest[n:]
	windows := make([]PartialKeyWindow, numWindows)
	for i := range windows {
		if len(rest) < 9 {
			return nil, errShortNode
		}
		windows[i] = PartialKeyWindow{
			OffsetBytes: rest[0],
			Mask:        binary.BigEndian.Uint64(rest[1:9]),
		}
		rest = rest[9:]
	}

	numChildren, n := binary.Uvarint(rest)
	if n <= 0 {
		return nil, errShortNode
	}
	rest = rest[n:]
	partialKeys := make([]uint32, numChildren)
	children := make([]page.PageRef, numChildren)
	for i := range children {
		pk, n := binary.Uvarint(rest)
		if n <= 0 {
			return nil, errShortNode
		}
		rest = rest[n:]
		ref, tail, err := decodeRef(rest)
		if err != nil {
			return nil, err
		}
		partialKeys[i] = uint32(pk)
		children[i] = ref
		rest = tail
	}

	return &HOTIndirectPage{Windows: windows, PartialKeys: partialKeys, Children: children}, nil
}

// foldChild absorbs childIdx, a single-bit BiNode child at the same byte
// offset as parent's own window, directly into parent, producing one
// node with one more discriminative bit (spec §4.4.9's node upgrade).
// This is restricted to same-offset, single-bit children: a general
// multi-window merge needs an absolute-bit-position re-derivation of
// every window this package does not attempt (see the design ledger).
// ok is false when the fold would overflow maxMultiChildren or child
// isn't eligible, in which case the caller leaves child unfolded. Child is
// eligible only if its bit is not already in parent's mask and every
// sibling's partial key has fewer set bits than child's own, so that no key
// scalarSearch sends to a sibling can match one of the folded slots.
func foldChild(parent *HOTIndirectPage, childIdx int, child *HOTIndirectPage) (*HOTIndirectPage, bool) {
	if len(child.Windows) != 1 || len(child.Children) != 2 {
		return nil, false
	}
	if len(parent.Windows) != 1 || parent.Windows[0].OffsetBytes != child.Windows[0].OffsetBytes {
		return nil, false
	}
	if len(parent.Children)-1+len(child.Children) > maxMultiChildren {
		return nil, false
	}

	mask := parent.Windows[0].Mask
	newBit := child.Windows[0].Mask
	if popcount64(newBit) != 1 || mask&newBit != 0 {
		return nil, false
	}
	childPop := popcount64(uint64(parent.PartialKeys[childIdx]))
	for i, pk := range parent.PartialKeys {
		if i != childIdx && popcount64(uint64(pk)) >= childPop {
			return nil, false
		}
	}
	width := popcount64(mask)
	rank := popcount64(mask &^ (newBit - 1) &^ newBit)
	lowWidth := width - rank

	newWindows := []PartialKeyWindow{{OffsetBytes: parent.Windows[0].OffsetBytes, Mask: mask | newBit}}

	out := &HOTIndirectPage{Windows: newWindows}
	for i, pk := range parent.PartialKeys {
		if i == childIdx {
			for bit, grandchild := range child.Children {
				out.PartialKeys = append(out.PartialKeys, insertBit(pk, lowWidth, uint32(bit)))
				out.Children = append(out.Children, grandchild)
			}
			continue
		}
		// A sibling never descended through the folded bit, so its
		// partial key gets the bit spliced in as 0 — it is still
		// uniquely identified by its other, unaffected bits.
		out.PartialKeys = append(out.PartialKeys, insertBit(pk, lowWidth, 0))
		out.Children = append(out.Children, parent.Children[i])
	}
	return sortedByPartialKey(out), true
}

// insertBit splits pk at lowWidth bits from the bottom and splices newBit
// in between, making room for one more discriminative bit at the rank
// the folded child's own bit occupies within the combined window.
func insertBit(pk uint32, lowWidth int, newBit uint32) uint32 {
	top := pk >> uint(lowWidth)
	bottom := pk & ((uint32(1) << uint(lowWidth)) - 1)
	return top<<uint(lowWidth+1) | newBit<<uint(lowWidth) | bottom
}

func popcount64(mask uint64) int {
	count := 0
	for mask != 0 {
		count += int(mask & 1)
		mask >>= 1
	}
	return count
}

func sortedByPartialKey(n *HOTIndirectPage) *HOTIndirectPage {
	idx := make([]int, len(n.PartialKeys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return n.PartialKeys[idx[a]] < n.PartialKeys[idx[b]] })
	sorted := &HOTIndirectPage{Windows: n.Windows}
	for _, i := range idx {
		sorted.PartialKeys = append(sorted.PartialKeys, n.PartialKeys[i])
		sorted.Children = append(sorted.Children, n.Children[i])
	}
	return sorted
}

func cloneIndirect(n *HOTIndirectPage) *HOTIndirectPage {
	clone := &HOTIndirectPage{
		Windows:     append([]PartialKeyWindow(nil), n.Windows...),
		PartialKeys: append([]uint32(nil), n.PartialKeys...),
		Children:    append([]page.PageRef(nil), n.Children...),
	}
	return clone
}

// tombstoneBytes marks a leaf entry whose reference set has gone empty.
// It reuses noderefs' own empty-set encoding (tagEmpty) rather than a
// distinct sentinel: an entry with this value unmarshals to a valid
// zero-cardinality NodeReferences either way, so there is nothing a
// separate tombstone representation would add.
var tombstoneBytes = mustMarshalEmpty()

func mustMarshalEmpty() []byte {
	b, _ := noderefs.New().Marshal()
	return b
}

func isTombstone(v []byte) bool { return bytes.Equal(v, tombstoneBytes) }

// HOTLeafEntry is one (key, node-reference-set) pair packed into a HOT
// leaf, kept sorted ascending by Key (spec §4.4.6).
type HOTLeafEntry struct {
	Key   []byte
	Value []byte // noderefs.NodeReferences.Marshal() output, or a tombstone
}

// hotLeafCapacityBytes bounds how much entry data one HOTLeafPage may
// hold before an insert must split (spec §6.5/§4.4.7).
const hotLeafCapacityBytes = 4096

// HOTLeafPage packs up to many sorted (key, value) entries behind one
// header (spec §3.3/§4.4.6/§6.5). Entries are never structurally removed
// by Remove — only tombstoned — so discriminative routing built against
// this leaf stays valid for concurrent readers (spec §4.4.10);
// Tree.Compact is what actually reclaims tombstoned space.
type HOTLeafPage struct {
	PageKey    uint64
	Revision   uint32
	IndexType  uint8
	Entries    []HOTLeafEntry
	guard      uint64
}

func (p *HOTLeafPage) Kind() page.PageKind { return page.KindHOTLeaf }

func (p *HOTLeafPage) headerSize() int { return 1 + 8 + 4 + 1 + 2 + 2 }

func (p *HOTLeafPage) encodeEntries() []byte {
	var buf bytes.Buffer
	for _, e := range p.Entries {
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(e.Key)))
		buf.Write(lenBuf[:])
		buf.Write(e.Key)
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(e.Value)))
		buf.Write(lenBuf[:])
		buf.Write(e.Value)
	}
	return buf.Bytes()
}

func (p *HOTLeafPage) SerializedSize() int {
	return p.headerSize() + len(p.encodeEntries())
}

// freeSpace reports how many of hotLeafCapacityBytes remain unused.
func (p *HOTLeafPage) freeSpace() int {
	used := p.SerializedSize()
	if used >= hotLeafCapacityBytes {
		return 0
	}
	return hotLeafCapacityBytes - used
}

func (p *HOTLeafPage) Encode() []byte {
	out := make([]byte, 0, p.SerializedSize())
	out = append(out, byte(page.KindHOTLeaf))
	var tmp8 [8]byte
	binary.BigEndian.PutUint64(tmp8[:], p.PageKey)
	out = append(out, tmp8[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], p.Revision)
	out = append(out, tmp4[:]...)
	out = append(out, p.IndexType)
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], uint16(len(p.Entries)))
	out = append(out, tmp2[:]...)
	binary.BigEndian.PutUint16(tmp2[:], uint16(p.freeSpace()))
	out = append(out, tmp2[:]...)
	out = append(out, p.encodeEntries()...)
	return out
}

func DecodeHOTLeafPage(data []byte) (*HOTLeafPage, error) {
	p := &HOTLeafPage{}
	if len(data) < p.headerSize() {
		return nil, errShortNode
	}
	off := 1
	p.PageKey = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	p.Revision = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	p.IndexType = data[off]
	off++
	entryCount := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	off += 2 // freeSpace, informational only

	entries := make([]HOTLeafEntry, 0, entryCount)
	for i := 0; i < int(entryCount); i++ {
		if off+2 > len(data) {
			return nil, errShortNode
		}
		keyLen := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+keyLen > len(data) {
			return nil, errShortNode
		}
		key := append([]byte(nil), data[off:off+keyLen]...)
		off += keyLen
		if off+2 > len(data) {
			return nil, errShortNode
		}
		valLen := int(binary.BigEndian.Uint16(data[off : off+2]))
		off += 2
		if off+valLen > len(data) {
			return nil, errShortNode
		}
		val := append([]byte(nil), data[off:off+valLen]...)
		off += valLen
		entries = append(entries, HOTLeafEntry{Key: key, Value: val})
	}
	p.Entries = entries
	return p, nil
}

// findEntry returns the index of key within p.Entries, or -(insertion
// point)-1 if absent, matching sort.Search's convention.
func (p *HOTLeafPage) findEntry(key []byte) int {
	i := sort.Search(len(p.Entries), func(i int) bool {
		return bytes.Compare(p.Entries[i].Key, key) >= 0
	})
	if i < len(p.Entries) && bytes.Equal(p.Entries[i].Key, key) {
		return i
	}
	return -(i + 1)
}

// fits reports whether entries would still serialize within
// hotLeafCapacityBytes.
func (p *HOTLeafPage) fits(entries []HOTLeafEntry) bool {
	trial := &HOTLeafPage{PageKey: p.PageKey, Revision: p.Revision, IndexType: p.IndexType, Entries: entries}
	return trial.SerializedSize() <= hotLeafCapacityBytes
}

// mergeWithNodeRefs adds nodeKey to key's reference set, creating the
// entry if key is new. It mutates p only if the result still fits within
// capacity; ok is false (p left untouched) when it would not, the signal
// Insert uses to trigger a split.
func (p *HOTLeafPage) mergeWithNodeRefs(key []byte, nodeKey uint64) (ok bool, err error) {
	idx := p.findEntry(key)
	trial := append([]HOTLeafEntry(nil), p.Entries...)

	if idx >= 0 {
		refs, err := noderefs.Unmarshal(trial[idx].Value)
		if err != nil {
			return false, err
		}
		refs = noderefs.FromKeys(refs.Keys())
		refs.Add(noderefs.NodeKey(nodeKey))
		marshaled, err := refs.Marshal()
		if err != nil {
			return false, err
		}
		trial[idx] = HOTLeafEntry{Key: trial[idx].Key, Value: marshaled}
	} else {
		insertAt := -(idx + 1)
		refs := noderefs.FromKeys([]noderefs.NodeKey{noderefs.NodeKey(nodeKey)})
		marshaled, err := refs.Marshal()
		if err != nil {
			return false, err
		}
		entry := HOTLeafEntry{Key: append([]byte(nil), key...), Value: marshaled}
		trial = append(trial, HOTLeafEntry{})
		copy(trial[insertAt+1:], trial[insertAt:])
		trial[insertAt] = entry
	}

	if !p.fits(trial) {
		return false, nil
	}
	p.Entries = trial
	return true, nil
}

// removeNodeRef drops nodeKey from key's reference set. If the set
// becomes empty the entry is tombstoned in place, never removed, so
// concurrent readers' notion of entry ordering and count stays stable
// until the next Compact (spec §4.4.10).
func (p *HOTLeafPage) removeNodeRef(key []byte, nodeKey uint64) error {
	idx := p.findEntry(key)
	if idx < 0 {
		return nil
	}
	if isTombstone(p.Entries[idx].Value) {
		return nil
	}
	refs, err := noderefs.Unmarshal(p.Entries[idx].Value)
	if err != nil {
		return err
	}
	refs = noderefs.FromKeys(refs.Keys())
	refs.Remove(noderefs.NodeKey(nodeKey))
	if refs.Cardinality() == 0 {
		p.Entries[idx].Value = append([]byte(nil), tombstoneBytes...)
		return nil
	}
	marshaled, err := refs.Marshal()
	if err != nil {
		return err
	}
	p.Entries[idx].Value = marshaled
	return nil
}

// splitTo moves the upper half of p's entries into right, returning the
// partition key (right's new minimum). ok is false when p holds fewer
// than 2 entries, since a single-entry leaf cannot be split any further
// (spec §4.4.7 scenario F).
func (p *HOTLeafPage) splitTo(right *HOTLeafPage) (partitionKey []byte, ok bool) {
	if len(p.Entries) < 2 {
		return nil, false
	}
	mid := len(p.Entries) / 2
	right.Entries = append([]HOTLeafEntry(nil), p.Entries[mid:]...)
	p.Entries = append([]HOTLeafEntry(nil), p.Entries[:mid]...)
	return right.Entries[0].Key, true
}

// compact drops every tombstoned entry, returning the number of entries
// reclaimed.
func (p *HOTLeafPage) compact() int {
	kept := p.Entries[:0]
	dropped := 0
	for _, e := range p.Entries {
		if isTombstone(e.Value) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	p.Entries = kept
	return dropped
}

// copy returns a deep, independent clone of p for copy-on-write mutation.
func (p *HOTLeafPage) copy() *HOTLeafPage {
	clone := &HOTLeafPage{PageKey: p.PageKey, Revision: p.Revision, IndexType: p.IndexType, guard: p.guard}
	clone.Entries = make([]HOTLeafEntry, len(p.Entries))
	for i, e := range p.Entries {
		clone.Entries[i] = HOTLeafEntry{
			Key:   append([]byte(nil), e.Key...),
			Value: append([]byte(nil), e.Value...),
		}
	}
	return clone
}

func (p *HOTLeafPage) minKey() []byte {
	if len(p.Entries) == 0 {
		return nil
	}
	return p.Entries[0].Key
}

func (p *HOTLeafPage) maxKey() []byte {
	if len(p.Entries) == 0 {
		return nil
	}
	return p.Entries[len(p.Entries)-1].Key
}

// acquireGuard returns the leaf's current version token. A reader that
// later observes the token unchanged via releaseGuard saw a consistent
// snapshot of Entries (spec's testable property #9: single-threaded
// optimistic read correctness, no locking needed).
func (p *HOTLeafPage) acquireGuard() uint64 { return p.guard }

// releaseGuard reports whether the leaf's version is still token, i.e.
// no mutation landed between the matching acquireGuard and this call.
func (p *HOTLeafPage) releaseGuard(token uint64) bool { return p.guard == token }

// bumpGuard advances the leaf's version, invalidating any outstanding
// guard token. Every in-place mutation of p.Entries must call this.
func (p *HOTLeafPage) bumpGuard() { p.guard++ }

func decodeNode(data []byte) (page.Page, error) {
	if len(data) < 1 {
		return nil, errShortNode
	}
	switch page.PageKind(data[0]) {
	case page.KindHOTIndirect:
		return DecodeHOTIndirectPage(data)
	case page.KindHOTLeaf:
		return DecodeHOTLeafPage(data)
	default:
		return nil, errUnknownNodeKind
	}
}

// encodeRef/decodeRef serialize a PageRef's persisted identity (logical
// key plus its newest on-disk fragment). A ref with no fragment yet (still
// in-memory only) must be flushed before its parent is encoded; flushRef
// guarantees that bottom-up ordering.
func encodeRef(ref page.PageRef) []byte {
	out := make([]byte, 0, 8+8+4)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], ref.Key)
	out = append(out, tmp[:]...)
	if len(ref.Fragments) == 0 {
		binary.BigEndian.PutUint64(tmp[:], 0)
		out = append(out, tmp[:]...)
		out = append(out, 0, 0, 0, 0)
		return out
	}
	f := ref.Fragments[0]
	binary.BigEndian.PutUint64(tmp[:], uint64(f.Offset))
	out = append(out, tmp[:]...)
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], f.Length)
	out = append(out, tmp4[:]...)
	return out
}

func refSize(ref page.PageRef) int { return 8 + 8 + 4 }

func decodeRef(data []byte) (page.PageRef, []byte, error) {
	if len(data) < 20 {
		return page.PageRef{}, nil, errShortNode
	}
	key := binary.BigEndian.Uint64(data[0:8])
	offset := int64(binary.BigEndian.Uint64(data[8:16]))
	length := binary.BigEndian.Uint32(data[16:20])
	ref := page.PageRef{Key: key}
	if offset != 0 || length != 0 {
		ref.Fragments = []page.Fragment{{Offset: offset, Length: length}}
	}
	return ref, data[20:], nil
}
