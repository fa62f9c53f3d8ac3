package blockio

import (
	"sync"

	"stratadb/pkg/errs"
)

// FileStore is a Store backed by a memory-mapped file (mmap_unix.go /
// mmap_windows.go provide the platform-specific openMmapStorage).
type FileStore struct {
	mu      sync.Mutex
	storage *mmapStorage
	tail    int64
	lastRef UberRef
}

// OpenFileStore opens or creates the file at path and maps it into memory.
// A brand-new file gets its header region initialized; an existing one has
// its uber reference and append tail recovered from the header.
func OpenFileStore(path string) (*FileStore, error) {
	storage, err := openMmapStorage(path, headerSize)
	if err != nil {
		return nil, errs.WrapIO(err)
	}

	if string(storage.Slice(0, 8)) != magic {
		copy(storage.data[:headerSize], encodeHeader(UberRef{}, headerSize))
		return &FileStore{storage: storage, tail: headerSize}, nil
	}

	ref, tail, err := decodeHeader(storage.Slice(0, headerSize))
	if err != nil {
		storage.Close()
		return nil, err
	}
	if tail < headerSize {
		tail = headerSize
	}

	return &FileStore{storage: storage, tail: tail, lastRef: ref}, nil
}

func (s *FileStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Size()
}

func (s *FileStore) ReadPageAt(offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readFramedBlock(s.storage, offset)
}

func (s *FileStore) ReadUberRef() (UberRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, _, err := decodeHeader(s.storage.Slice(0, headerSize))
	return ref, err
}

func (s *FileStore) AppendBlock(data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := frameBlock(data)
	offset := s.tail
	needed := offset + int64(len(block))
	if needed > s.storage.Size() {
		growTo := s.storage.Size() * 2
		if growTo < needed {
			growTo = needed
		}
		if err := s.storage.Grow(growTo); err != nil {
			return 0, errs.WrapIO(err)
		}
	}
	copy(s.storage.Slice(int(offset), len(block)), block)
	s.tail = needed
	copy(s.storage.data[:headerSize], encodeHeader(s.lastRef, s.tail))
	return offset, nil
}

func (s *FileStore) WriteUberRef(ref UberRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRef = ref
	copy(s.storage.data[:headerSize], encodeHeader(ref, s.tail))
	return nil
}

func (s *FileStore) Fsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Sync(); err != nil {
		return errs.WrapIO(err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage.Close()
}
