package blockio

import (
	"fmt"
	"sync"

	"stratadb/pkg/errs"
)

// MemoryStore is an in-memory Store backed by a plain growable byte slice.
// It is used by tests and by resources opened without a backing file.
type MemoryStore struct {
	mu      sync.Mutex
	storage *memoryStorage
	tail    int64
	lastRef UberRef
}

// NewMemoryStore returns an empty MemoryStore with the header region
// already initialized.
func NewMemoryStore() *MemoryStore {
	s := newMemoryStorage(headerSize)
	copy(s.data[:headerSize], encodeHeader(UberRef{}, headerSize))
	return &MemoryStore{storage: s, tail: headerSize}
}

func (s *MemoryStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Size()
}

func (s *MemoryStore) ReadPageAt(offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readFramedBlock(s.storage, offset)
}

func (s *MemoryStore) ReadUberRef() (UberRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, _, err := decodeHeader(s.storage.Slice(0, headerSize))
	return ref, err
}

func (s *MemoryStore) AppendBlock(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := frameBlock(data)
	offset := s.tail
	needed := offset + int64(len(block))
	if err := s.storage.Grow(needed); err != nil {
		return 0, errs.WrapIO(err)
	}
	copy(s.storage.data[offset:needed], block)
	s.tail = needed
	copy(s.storage.data[:headerSize], encodeHeader(s.lastRef, s.tail))
	return offset, nil
}

func (s *MemoryStore) WriteUberRef(ref UberRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRef = ref
	copy(s.storage.data[:headerSize], encodeHeader(ref, s.tail))
	return nil
}

func (s *MemoryStore) Fsync() error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Close()
}

// readFramedBlock reads the uvarint length prefix at offset followed by
// that many bytes, shared by MemoryStore and FileStore.
func readFramedBlock(s rawStorage, offset int64) ([]byte, error) {
	if offset < 0 || offset >= s.Size() {
		return nil, errs.WrapCorruption(fmt.Errorf("block offset %d out of range", offset))
	}

	const maxPrefix = 10
	avail := s.Size() - offset
	prefixLen := int64(maxPrefix)
	if avail < prefixLen {
		prefixLen = avail
	}
	head := s.Slice(int(offset), int(prefixLen))

	length, n := uvarint(head)
	if n <= 0 {
		return nil, errs.WrapCorruption(fmt.Errorf("invalid length prefix at offset %d", offset))
	}

	start := offset + int64(n)
	end := start + int64(length)
	if end > s.Size() {
		return nil, errs.WrapCorruption(fmt.Errorf("block at offset %d truncated", offset))
	}

	data := s.Slice(int(start), int(length))
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func uvarint(buf []byte) (uint64, int) {
	var x uint64
	var shift uint
	for i, b := range buf {
		if b < 0x80 {
			if i > 9 || (i == 9 && b > 1) {
				return 0, -(i + 1)
			}
			return x | uint64(b)<<shift, i + 1
		}
		x |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, 0
}
