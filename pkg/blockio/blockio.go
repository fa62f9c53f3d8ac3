// Package blockio implements the narrow write-ahead buffer and block I/O
// interfaces the page layer is built on (spec §2, §4.1, §6.4). A page's
// physical address is the offset of its length-prefixed block in an
// append-only log; the uber reference — the address of the most recently
// committed UberPage block — lives in a fixed header region updated
// atomically on commit.
//
// blockio deals only in already-encoded bytes: applying the byte-handler
// pipeline (pkg/codec) is the page layer's job, not this package's.
package blockio

import (
	"encoding/binary"
	"fmt"

	"stratadb/pkg/errs"
)

// headerSize is the size in bytes of the fixed header region at the start
// of the backing store. It holds the 8-byte magic, the uber reference
// (offset and length) and the append tail; the remaining bytes are zero.
const headerSize = 64

const magic = "STRATA01"

// UberRef identifies the physical location of the most recently committed
// UberPage block.
type UberRef struct {
	Offset int64
	Length uint32
}

// IsZero reports whether the reference points nowhere (a brand-new store).
func (r UberRef) IsZero() bool { return r.Offset == 0 && r.Length == 0 }

// Reader is the read side of block I/O: random access to committed blocks
// plus the current uber reference.
type Reader interface {
	// ReadPageAt returns the decoded-pipeline-input bytes of the block
	// whose length-prefix starts at offset.
	ReadPageAt(offset int64) ([]byte, error)
	// ReadUberRef returns the most recently written uber reference.
	ReadUberRef() (UberRef, error)
}

// Writer is the write side of block I/O: append-only block writes plus
// durable, atomic uber-reference updates.
type Writer interface {
	// AppendBlock writes a length-prefixed block to the end of the log
	// and returns its starting offset.
	AppendBlock(data []byte) (int64, error)
	// WriteUberRef atomically updates the uber reference slot.
	WriteUberRef(ref UberRef) error
	// Fsync flushes all pending writes to stable storage.
	Fsync() error
}

// Store is the full block-I/O contract used by the page layer: a Reader
// and Writer pair plus lifecycle management.
type Store interface {
	Reader
	Writer
	// Size returns the current size of the backing store in bytes.
	Size() int64
	Close() error
}

// encodeHeader serializes the uber reference and the current append tail
// (the offset one past the last written block) into the fixed header.
func encodeHeader(ref UberRef, tail int64) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], magic)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(ref.Offset))
	binary.LittleEndian.PutUint32(buf[16:20], ref.Length)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(tail))
	return buf
}

func decodeHeader(buf []byte) (UberRef, int64, error) {
	if len(buf) < headerSize {
		return UberRef{}, 0, errs.WrapCorruption(fmt.Errorf("header too short: %d bytes", len(buf)))
	}
	if string(buf[0:8]) != magic {
		return UberRef{}, 0, errs.WrapCorruption(fmt.Errorf("bad magic %q", buf[0:8]))
	}
	ref := UberRef{
		Offset: int64(binary.LittleEndian.Uint64(buf[8:16])),
		Length: binary.LittleEndian.Uint32(buf[16:20]),
	}
	tail := int64(binary.LittleEndian.Uint64(buf[20:28]))
	return ref, tail, nil
}

// frameBlock writes a uvarint length prefix (encoding/binary's
// PutUvarint) ahead of data and returns the combined block.
func frameBlock(data []byte) []byte {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(data)))
	block := make([]byte, 0, n+len(data))
	block = append(block, prefix[:n]...)
	block = append(block, data...)
	return block
}
