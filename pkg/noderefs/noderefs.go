// Package noderefs implements the compressed node-reference bitmap used by
// HOT index nodes (spec §3.5): a set of NodeKeys with a packed
// representation for small cardinalities and a roaring-bitmap
// representation once the set grows large enough for that to pay off.
//
// Grounded on the erigon key/value table usage of
// github.com/RoaringBitmap/roaring (other_examples manifest
// AKJUS-bsc-erigon), the nearest pack example of a roaring bitmap used as
// a compact set of integer keys rather than a query index.
package noderefs

import (
	"encoding/binary"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"stratadb/pkg/errs"
)

// tag bytes for the serialized form (spec §3.5/§6.5).
const (
	tagPacked  byte = 0x00
	tagRoaring byte = 0xFF
	tagEmpty   byte = 0xFE
)

// packedThreshold is the cardinality above which the roaring
// representation is used instead of a flat sorted array.
const packedThreshold = 64

// NodeKey identifies a reference held by a HOT node: an index into the
// node-reference table of the owning page, or (historically) a direct
// page pointer — the set semantics are the same either way.
type NodeKey uint64

// Tombstone marks a reference slot as deleted without shrinking the set's
// backing storage, so discriminative-bit positions computed against the
// set remain valid until the next compaction.
const Tombstone NodeKey = ^NodeKey(0)

// NodeReferences is a compressed, ordered set of NodeKeys.
type NodeReferences struct {
	packed  []NodeKey // used while len(packed) <= packedThreshold
	roaring *roaring.Bitmap
}

// New returns an empty NodeReferences set.
func New() *NodeReferences {
	return &NodeReferences{}
}

// FromKeys builds a NodeReferences set from an unordered slice of keys.
func FromKeys(keys []NodeKey) *NodeReferences {
	refs := New()
	for _, k := range keys {
		refs.Add(k)
	}
	return refs
}

func (r *NodeReferences) isRoaring() bool { return r.roaring != nil }

// Cardinality returns the number of live (non-tombstoned) references.
func (r *NodeReferences) Cardinality() int {
	if r.isRoaring() {
		return int(r.roaring.GetCardinality())
	}
	return len(r.packed)
}

// Contains reports whether key is a member of the set.
func (r *NodeReferences) Contains(key NodeKey) bool {
	if r.isRoaring() {
		return r.roaring.Contains(uint32(key))
	}
	for _, k := range r.packed {
		if k == key {
			return true
		}
	}
	return false
}

// Add inserts key into the set, upgrading to the roaring representation
// if the packed array has grown past packedThreshold.
func (r *NodeReferences) Add(key NodeKey) {
	if r.isRoaring() {
		r.roaring.Add(uint32(key))
		return
	}
	for _, k := range r.packed {
		if k == key {
			return
		}
	}
	r.packed = append(r.packed, key)
	if len(r.packed) > packedThreshold {
		r.upgradeToRoaring()
	}
}

// Remove deletes key from the set if present.
func (r *NodeReferences) Remove(key NodeKey) {
	if r.isRoaring() {
		r.roaring.Remove(uint32(key))
		return
	}
	for i, k := range r.packed {
		if k == key {
			r.packed = append(r.packed[:i], r.packed[i+1:]...)
			return
		}
	}
}

// Union merges other into r in place.
func (r *NodeReferences) Union(other *NodeReferences) {
	if other == nil {
		return
	}
	if !r.isRoaring() && !other.isRoaring() && len(r.packed)+other.Cardinality() <= packedThreshold {
		for _, k := range other.packed {
			r.Add(k)
		}
		return
	}
	r.upgradeToRoaring()
	if other.isRoaring() {
		r.roaring.Or(other.roaring)
		return
	}
	for _, k := range other.packed {
		r.roaring.Add(uint32(k))
	}
}

// Keys returns the set's members in ascending order.
func (r *NodeReferences) Keys() []NodeKey {
	if r.isRoaring() {
		card := r.roaring.GetCardinality()
		out := make([]NodeKey, 0, card)
		it := r.roaring.Iterator()
		for it.HasNext() {
			out = append(out, NodeKey(it.Next()))
		}
		return out
	}
	out := make([]NodeKey, len(r.packed))
	copy(out, r.packed)
	sortKeys(out)
	return out
}

func (r *NodeReferences) upgradeToRoaring() {
	if r.isRoaring() {
		return
	}
	bm := roaring.New()
	for _, k := range r.packed {
		bm.Add(uint32(k))
	}
	r.roaring = bm
	r.packed = nil
}

func sortKeys(keys []NodeKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// Marshal serializes the set per spec §6.5: a one-byte tag followed by
// the packed array (little-endian uint64 per key) or the roaring bitmap's
// own portable binary format.
func (r *NodeReferences) Marshal() ([]byte, error) {
	if r.Cardinality() == 0 {
		return []byte{tagEmpty}, nil
	}

	if !r.isRoaring() {
		out := make([]byte, 1+8*len(r.packed))
		out[0] = tagPacked
		for i, k := range r.packed {
			binary.LittleEndian.PutUint64(out[1+8*i:], uint64(k))
		}
		return out, nil
	}

	body, err := r.roaring.ToBytes()
	if err != nil {
		return nil, errs.WrapIO(err)
	}
	out := make([]byte, 1+len(body))
	out[0] = tagRoaring
	copy(out[1:], body)
	return out, nil
}

// Unmarshal decodes a NodeReferences set previously produced by Marshal.
func Unmarshal(data []byte) (*NodeReferences, error) {
	if len(data) == 0 {
		return nil, errs.WrapCorruption(errShortBuffer)
	}

	switch data[0] {
	case tagEmpty:
		return New(), nil
	case tagPacked:
		body := data[1:]
		if len(body)%8 != 0 {
			return nil, errs.WrapCorruption(errMisalignedPacked)
		}
		refs := New()
		refs.packed = make([]NodeKey, len(body)/8)
		for i := range refs.packed {
			refs.packed[i] = NodeKey(binary.LittleEndian.Uint64(body[8*i:]))
		}
		return refs, nil
	case tagRoaring:
		bm := roaring.New()
		if err := bm.UnmarshalBinary(data[1:]); err != nil {
			return nil, errs.WrapCorruption(err)
		}
		return &NodeReferences{roaring: bm}, nil
	default:
		return nil, errs.WrapCorruption(errUnknownTag)
	}
}
