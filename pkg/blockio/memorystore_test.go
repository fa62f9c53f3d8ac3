package blockio

import (
	"bytes"
	"testing"
)

func TestMemoryStoreAppendAndReadRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	payload := []byte("indirect page bytes")
	offset, err := s.AppendBlock(payload)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ReadPageAt(offset)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestMemoryStoreMultipleAppendsArePositioned(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	first, err := s.AppendBlock([]byte("a"))
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	second, err := s.AppendBlock([]byte("bb"))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second <= first {
		t.Fatalf("expected second offset %d to follow first %d", second, first)
	}

	got1, err := s.ReadPageAt(first)
	if err != nil || string(got1) != "a" {
		t.Fatalf("read first: %v %q", err, got1)
	}
	got2, err := s.ReadPageAt(second)
	if err != nil || string(got2) != "bb" {
		t.Fatalf("read second: %v %q", err, got2)
	}
}

func TestMemoryStoreUberRefPersists(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	ref := UberRef{Offset: 64, Length: 128}
	if err := s.WriteUberRef(ref); err != nil {
		t.Fatalf("write uber ref: %v", err)
	}

	got, err := s.ReadUberRef()
	if err != nil {
		t.Fatalf("read uber ref: %v", err)
	}
	if got != ref {
		t.Fatalf("uber ref mismatch: got %+v want %+v", got, ref)
	}
}

func TestMemoryStoreReadPastEndFails(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.ReadPageAt(s.Size() + 1000); err == nil {
		t.Fatalf("expected out-of-range read to fail")
	}
}
