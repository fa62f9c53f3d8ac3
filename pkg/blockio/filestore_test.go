package blockio

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestFileStoreAppendAndReopenRecoversState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.strata")

	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	payload := []byte("revision root page")
	offset, err := s.AppendBlock(payload)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	ref := UberRef{Offset: offset, Length: uint32(len(payload))}
	if err := s.WriteUberRef(ref); err != nil {
		t.Fatalf("write uber ref: %v", err)
	}
	if err := s.Fsync(); err != nil {
		t.Fatalf("fsync: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	gotRef, err := reopened.ReadUberRef()
	if err != nil {
		t.Fatalf("read uber ref: %v", err)
	}
	if gotRef != ref {
		t.Fatalf("uber ref mismatch after reopen: got %+v want %+v", gotRef, ref)
	}

	got, err := reopened.ReadPageAt(offset)
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("page mismatch after reopen: got %q want %q", got, payload)
	}

	nextOffset, err := reopened.AppendBlock([]byte("more bytes"))
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if nextOffset < offset {
		t.Fatalf("expected append after reopen to continue past prior tail")
	}
}

func TestFileStoreGrowsBeyondInitialMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.strata")

	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	large := bytes.Repeat([]byte("x"), 1<<20)
	offset, err := s.AppendBlock(large)
	if err != nil {
		t.Fatalf("append large block: %v", err)
	}

	got, err := s.ReadPageAt(offset)
	if err != nil {
		t.Fatalf("read large block: %v", err)
	}
	if !bytes.Equal(got, large) {
		t.Fatalf("large block mismatch")
	}
}
