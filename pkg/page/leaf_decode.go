package page

import (
	"encoding/binary"

	"stratadb/pkg/record"
)

// DecodeLeafPage parses a block previously produced by (*LeafPage).Encode.
func DecodeLeafPage(data []byte) (*LeafPage, error) {
	if len(data) < 12 {
		return nil, errShortLeaf
	}
	kind := PageKind(binary.LittleEndian.Uint32(data[0:4]))
	count := int(binary.LittleEndian.Uint32(data[4:8]))
	fragCount := int(binary.LittleEndian.Uint32(data[8:12]))

	entries := make([]LeafEntry, count)
	off := 12
	for i := 0; i < count; i++ {
		key, n, err := getLenPrefixed(data[off:])
		if err != nil {
			return nil, err
		}
		off += n

		recBytes, n, err := getLenPrefixed(data[off:])
		if err != nil {
			return nil, err
		}
		off += n

		rec, err := record.Decode(recBytes)
		if err != nil {
			return nil, err
		}
		entries[i] = LeafEntry{Key: key, Value: rec}
	}

	if len(data) < off+fragCount*fragmentEncodedSize {
		return nil, errShortLeaf
	}
	fragments := make([]Fragment, fragCount)
	for i := 0; i < fragCount; i++ {
		fragments[i] = Fragment{
			Revision: RevisionNumber(binary.LittleEndian.Uint64(data[off : off+8])),
			Offset:   int64(binary.LittleEndian.Uint64(data[off+8 : off+16])),
			Length:   binary.LittleEndian.Uint32(data[off+16 : off+20]),
		}
		off += fragmentEncodedSize
	}

	return &LeafPage{kind: kind, Entries: entries, PriorFragments: fragments}, nil
}

func getLenPrefixed(buf []byte) (data []byte, consumed int, err error) {
	length, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, errShortLeaf
	}
	end := n + int(length)
	if end > len(buf) {
		return nil, 0, errShortLeaf
	}
	out := make([]byte, length)
	copy(out, buf[n:end])
	return out, end, nil
}
