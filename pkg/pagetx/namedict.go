package pagetx

import (
	"encoding/binary"

	"stratadb/pkg/record"
)

// CreateNameKey interns (kind, name) into the name dictionary, returning
// a stable key: re-interning the same (kind, name) pair returns the same
// key and increments its NameCountEntry reference count (spec §4.3
// create_name_key).
//
// The name dictionary is addressed by interned key, not by name, so
// finding an existing key for a name requires a scan of its
// already-allocated pages (findNameKey). This is the scoped-simplification
// recorded in the design ledger: a reverse byte-keyed lookup is a natural
// fit for a HOT tree, but that role already belongs to NameIndex (which
// answers a different question — which document nodes use this name —
// not interning), so no second HOT tree is introduced here.
func (tx *WriteTrx) CreateNameKey(kind byte, name []byte) (uint32, error) {
	existingKey, dl, entryKey, refcount, found, err := tx.findNameKey(kind, name)
	if err != nil {
		return 0, err
	}
	if found {
		dl.entries[entryKey] = newNameCountRecord(existingKey, kind, refcount+1, name)
		dl.touched[entryKey] = true
		return existingKey, nil
	}

	tx.root.NextNameKey++
	newKey := tx.root.NextNameKey
	newDl, err := tx.prepareLeaf(NameDict, PageKeyFor(uint64(newKey), DefaultLeafCapacity))
	if err != nil {
		return 0, err
	}
	entryKeyStr := string(NodeKeyBytes(uint64(newKey)))
	newDl.entries[entryKeyStr] = newNameCountRecord(newKey, kind, 1, name)
	newDl.touched[entryKeyStr] = true
	return newKey, nil
}

// findNameKey scans the name dictionary's already-allocated pages for an
// entry matching (kind, name), checking this transaction's own
// not-yet-committed edits before falling back to committed pages.
func (tx *WriteTrx) findNameKey(kind byte, name []byte) (key uint32, dl *dirtyLeaf, entryKey string, refcount uint32, found bool, err error) {
	lastPageKey := PageKeyFor(uint64(tx.root.NextNameKey), DefaultLeafCapacity)
	for pk := uint64(0); pk <= lastPageKey; pk++ {
		var entries map[string]*record.Record
		var dirty *dirtyLeaf
		if m, ok := tx.dirtyLeaves[NameDict]; ok {
			if d, ok := m[pk]; ok {
				entries = d.entries
				dirty = d
			}
		}
		if entries == nil {
			leaf, lerr := tx.leafFor(NameDict, pk)
			if lerr != nil {
				return 0, nil, "", 0, false, lerr
			}
			if leaf == nil {
				continue
			}
			entries = entriesMap(leaf)
		}

		for k, rec := range entries {
			if rec == nil {
				continue
			}
			recKind, recRefcount, recName, ok := decodeNameCountPayload(rec.Payload)
			if !ok || recKind != kind || !bytesEqual(recName, name) {
				continue
			}
			if dirty == nil {
				dirty, err = tx.prepareLeaf(NameDict, pk)
				if err != nil {
					return 0, nil, "", 0, false, err
				}
			}
			return uint32(rec.NodeKey), dirty, k, recRefcount, true, nil
		}
	}
	return 0, nil, "", 0, false, nil
}

func newNameCountRecord(key uint32, kind byte, refcount uint32, name []byte) *record.Record {
	return &record.Record{
		NodeKey: uint64(key),
		Kind:    record.KindNameCountEntry,
		Payload: encodeNameCountPayload(kind, refcount, name),
	}
}

func encodeNameCountPayload(kind byte, refcount uint32, name []byte) []byte {
	out := make([]byte, 0, 1+binary.MaxVarintLen32+len(name))
	out = append(out, kind)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(refcount))
	out = append(out, tmp[:n]...)
	out = append(out, name...)
	return out
}

func decodeNameCountPayload(payload []byte) (kind byte, refcount uint32, name []byte, ok bool) {
	if len(payload) < 1 {
		return 0, 0, nil, false
	}
	rc, n := binary.Uvarint(payload[1:])
	if n <= 0 {
		return 0, 0, nil, false
	}
	return payload[0], uint32(rc), payload[1+n:], true
}
