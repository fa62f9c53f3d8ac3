// Package record implements the on-disk record format stored inside
// KeyValueLeafPage (page.LeafPage) entries (spec §3.4): a node_key/parent_key/
// revision-tracking header plus a kind-specific payload blob, framed with
// a content hash for corruption detection independent of the page-level
// checksum.
//
// Grounded on the teacher's pkg/record (SQLite-style serial-type record
// codec), generalized from the teacher's dynamic per-column serial-type
// header — which exists to support arbitrary SQL row shapes — to a fixed
// field set (spec §3.4 names exactly these fields for every record kind)
// plus one variable-length payload, since the per-record shape here is
// already fixed by Kind rather than by a runtime schema.
package record

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"stratadb/pkg/errs"
)

// Kind identifies what a record's payload represents.
type Kind byte

const (
	KindDocumentValue Kind = iota + 1
	KindPathNode
	KindNameCountEntry
	KindStructuralNode
)

// Record is the common on-disk shape of every entry held by a
// KeyValueLeafPage (the document index and the name dictionary): identity
// and revision-chain metadata, plus a kind-specific payload. HOT leaf
// entries hold NodeReferences bytes, not records.
//
// SiblingCount and ChildCount are only meaningful for KindStructuralNode;
// they are zero for every other kind.
type Record struct {
	NodeKey              uint64
	ParentKey            uint64
	PreviousRevision     uint64
	LastModifiedRevision uint64
	Kind                 Kind
	SiblingCount         uint32
	ChildCount           uint32
	Payload              []byte
}

const fixedHeaderSize = 8*4 + 1 + 4 + 4 + 8

// ContentHash returns the stable xxhash of the record's kind and payload,
// used for corruption detection independent of the page-level checksum
// (spec §3.4).
func (r *Record) ContentHash() uint64 {
	h := xxhash.New()
	h.Write([]byte{byte(r.Kind)})
	h.Write(r.Payload)
	return h.Sum64()
}

// Encode serializes the record: fixed-width identity/revision fields,
// kind byte, structural counts, a stored content hash, and a
// varint-length-prefixed payload.
func (r *Record) Encode() []byte {
	hash := r.ContentHash()

	fixed := make([]byte, fixedHeaderSize)
	binary.LittleEndian.PutUint64(fixed[0:8], r.NodeKey)
	binary.LittleEndian.PutUint64(fixed[8:16], r.ParentKey)
	binary.LittleEndian.PutUint64(fixed[16:24], r.PreviousRevision)
	binary.LittleEndian.PutUint64(fixed[24:32], r.LastModifiedRevision)
	fixed[32] = byte(r.Kind)
	binary.LittleEndian.PutUint32(fixed[33:37], r.SiblingCount)
	binary.LittleEndian.PutUint32(fixed[37:41], r.ChildCount)
	binary.LittleEndian.PutUint64(fixed[41:49], hash)

	lenPrefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(lenPrefix, uint64(len(r.Payload)))

	out := make([]byte, 0, len(fixed)+n+len(r.Payload))
	out = append(out, fixed...)
	out = append(out, lenPrefix[:n]...)
	out = append(out, r.Payload...)
	return out
}

// Decode parses a record previously produced by Encode, verifying the
// stored content hash against the decoded payload.
func Decode(data []byte) (*Record, error) {
	if len(data) < fixedHeaderSize {
		return nil, errs.WrapCorruption(errShortHeader)
	}

	r := &Record{
		NodeKey:              binary.LittleEndian.Uint64(data[0:8]),
		ParentKey:            binary.LittleEndian.Uint64(data[8:16]),
		PreviousRevision:     binary.LittleEndian.Uint64(data[16:24]),
		LastModifiedRevision: binary.LittleEndian.Uint64(data[24:32]),
		Kind:                 Kind(data[32]),
		SiblingCount:         binary.LittleEndian.Uint32(data[33:37]),
		ChildCount:           binary.LittleEndian.Uint32(data[37:41]),
	}
	storedHash := binary.LittleEndian.Uint64(data[41:49])

	payloadLen, n := binary.Uvarint(data[fixedHeaderSize:])
	if n <= 0 {
		return nil, errs.WrapCorruption(errBadLengthPrefix)
	}

	start := fixedHeaderSize + n
	end := start + int(payloadLen)
	if end > len(data) {
		return nil, errs.WrapCorruption(errTruncatedPayload)
	}

	r.Payload = make([]byte, payloadLen)
	copy(r.Payload, data[start:end])

	if r.ContentHash() != storedHash {
		return nil, errs.WrapCorruption(errContentHashMismatch)
	}

	return r, nil
}
