//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package blockio

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// mmapStorage memory-maps the backing file, grounded on the teacher
// pager/mmap_unix.go implementation.
type mmapStorage struct {
	file *os.File
	data []byte
	size int64
}

func openMmapStorage(path string, initialSize int64) (*mmapStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if initialSize > size {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, err
		}
		size = initialSize
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mmapStorage{file: f, data: data, size: size}, nil
}

func (m *mmapStorage) Size() int64 { return m.size }

func (m *mmapStorage) Slice(offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return nil
	}
	return m.data[offset : offset+length]
}

func (m *mmapStorage) Sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Grow syncs the current mapping, unmaps it, extends the file and remaps
// it. Every previously returned Slice becomes invalid once Grow returns;
// the Store layer re-fetches slices by offset afterward.
func (m *mmapStorage) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}

	if err := syscall.Munmap(m.data); err != nil {
		return err
	}

	if err := m.file.Truncate(newSize); err != nil {
		return err
	}

	data, err := syscall.Mmap(int(m.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return err
	}

	m.data = data
	m.size = newSize
	return nil
}

func (m *mmapStorage) Close() error {
	var firstErr error

	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}

	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}

	return firstErr
}
