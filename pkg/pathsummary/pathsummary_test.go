package pathsummary

import (
	"testing"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/page"
)

func newTree() *Tree {
	return New(blockio.NewMemoryStore(), codec.NewPipeline())
}

func TestInsertGetRoundTrip(t *testing.T) {
	tr := newTree()
	entry := page.PathSummaryEntry{PathNodeKey: 1, ParentKey: 0, NameKey: 5, ChildCount: 2}
	if err := tr.Insert(entry); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, ok, err := tr.Get(1)
	if err != nil || !ok || got != entry {
		t.Fatalf("expected round trip, got ok=%v entry=%+v err=%v", ok, got, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	tr := newTree()
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 1})
	_, ok, err := tr.Get(999)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestInsertUpdatesExistingKey(t *testing.T) {
	tr := newTree()
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 1, ChildCount: 1})
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 1, ChildCount: 9})
	got, ok, err := tr.Get(1)
	if err != nil || !ok || got.ChildCount != 9 {
		t.Fatalf("expected update in place, got ok=%v entry=%+v err=%v", ok, got, err)
	}
}

func TestInsertManyEntriesTriggersSplitsAndAllSurvive(t *testing.T) {
	tr := newTree()
	const n = 2000
	for i := uint64(1); i <= n; i++ {
		if err := tr.Insert(page.PathSummaryEntry{PathNodeKey: i, ParentKey: i / 2, NameKey: i % 7}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := uint64(1); i <= n; i++ {
		got, ok, err := tr.Get(i)
		if err != nil || !ok {
			t.Fatalf("expected key %d present, ok=%v err=%v", i, ok, err)
		}
		if got.PathNodeKey != i || got.ParentKey != i/2 || got.NameKey != i%7 {
			t.Fatalf("corrupted entry for key %d: %+v", i, got)
		}
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	tr := newTree()
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 1})
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 2})
	if err := tr.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := tr.Get(1); ok {
		t.Fatal("expected key 1 to be gone")
	}
	if _, ok, _ := tr.Get(2); !ok {
		t.Fatal("expected key 2 untouched")
	}
}

func TestDeleteUnknownKeyFails(t *testing.T) {
	tr := newTree()
	tr.Insert(page.PathSummaryEntry{PathNodeKey: 1})
	if err := tr.Delete(999); err == nil {
		t.Fatal("expected deleting an absent key to fail")
	}
}

func TestOpenResumesFromPersistedRoot(t *testing.T) {
	store := blockio.NewMemoryStore()
	pipeline := codec.NewPipeline()

	tr := New(store, pipeline)
	for i := uint64(1); i <= 10; i++ {
		tr.Insert(page.PathSummaryEntry{PathNodeKey: i, NameKey: i})
	}

	reopened := Open(store, pipeline, tr.Root())
	for i := uint64(1); i <= 10; i++ {
		got, ok, err := reopened.Get(i)
		if err != nil || !ok || got.NameKey != i {
			t.Fatalf("expected key %d to survive reopen, got ok=%v entry=%+v err=%v", i, ok, got, err)
		}
	}
}
