package hot

import (
	"testing"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
)

func TestInsertGetRoundTripInMemory(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)

	if err := tr.Insert([]byte("alice"), 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Insert([]byte("bob"), 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tr.Insert([]byte("alice"), 3); err != nil {
		t.Fatalf("insert second ref for same key: %v", err)
	}

	refs, ok, err := tr.Get([]byte("alice"))
	if err != nil || !ok {
		t.Fatalf("get alice: ok=%v err=%v", ok, err)
	}
	if refs.Cardinality() != 2 || !refs.Contains(1) || !refs.Contains(3) {
		t.Fatalf("expected alice to map to {1,3}, got %v", refs.Keys())
	}

	refs, ok, err = tr.Get([]byte("bob"))
	if err != nil || !ok || refs.Cardinality() != 1 || !refs.Contains(2) {
		t.Fatalf("expected bob to map to {2}, got ok=%v refs=%v err=%v", ok, refs, err)
	}

	_, ok, err = tr.Get([]byte("carol"))
	if err != nil || ok {
		t.Fatalf("expected carol to be absent, got ok=%v err=%v", ok, err)
	}
}

func TestRemoveDropsKeyOnceSetIsEmpty(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	tr.Insert([]byte("alice"), 1)
	tr.Insert([]byte("bob"), 2)

	if err := tr.Remove([]byte("alice"), 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := tr.Get([]byte("alice")); ok {
		t.Fatal("expected alice to be gone after removing its only ref")
	}
	refs, ok, err := tr.Get([]byte("bob"))
	if err != nil || !ok || !refs.Contains(2) {
		t.Fatalf("expected bob untouched by alice's removal, got ok=%v refs=%v err=%v", ok, refs, err)
	}
}

func TestRemovePartialLeavesOtherRefs(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	tr.Insert([]byte("alice"), 1)
	tr.Insert([]byte("alice"), 2)

	if err := tr.Remove([]byte("alice"), 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	refs, ok, err := tr.Get([]byte("alice"))
	if err != nil || !ok || refs.Cardinality() != 1 || !refs.Contains(2) {
		t.Fatalf("expected alice to retain {2}, got ok=%v refs=%v err=%v", ok, refs, err)
	}
}

func TestRemoveUnknownKeyIsNoop(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	tr.Insert([]byte("alice"), 1)
	if err := tr.Remove([]byte("nobody"), 99); err != nil {
		t.Fatalf("expected removing an absent key to be a no-op, got %v", err)
	}
}

func TestRangeVisitsKeysInSortedOrder(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	names := []string{"mercury", "venus", "earth", "mars", "jupiter", "saturn"}
	for i, name := range names {
		tr.Insert([]byte(name), uint64(i+1))
	}

	var seen []string
	err := tr.Range(nil, nil, func(key []byte, refs *noderefs.NodeReferences) bool {
		seen = append(seen, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(seen) != len(names) {
		t.Fatalf("expected %d keys, got %d: %v", len(names), len(seen), seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i-1] >= seen[i] {
			t.Fatalf("expected sorted order, got %v", seen)
		}
	}
}

func TestRangeStopsEarly(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	for i, name := range []string{"a", "b", "c", "d"} {
		tr.Insert([]byte(name), uint64(i+1))
	}
	var seen int
	err := tr.Range(nil, nil, func(key []byte, refs *noderefs.NodeReferences) bool {
		seen++
		return seen < 2
	})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected iteration to stop after 2 keys, stopped after %d", seen)
	}
}

func TestFlushThenReopenFromStore(t *testing.T) {
	store := blockio.NewMemoryStore()
	pipeline := codec.NewPipeline()

	tr := Open(page.PageRef{}, store, pipeline)
	tr.Insert([]byte("alice"), 1)
	tr.Insert([]byte("bob"), 2)
	tr.Insert([]byte("carol"), 3)

	root, err := tr.Flush(store, pipeline)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}

	reopened := Open(root, store, pipeline)
	refs, ok, err := reopened.Get([]byte("bob"))
	if err != nil || !ok || !refs.Contains(2) {
		t.Fatalf("expected bob to survive flush/reopen, got ok=%v refs=%v err=%v", ok, refs, err)
	}

	if err := reopened.Insert([]byte("dave"), 4); err != nil {
		t.Fatalf("insert after reopen: %v", err)
	}
	root2, err := reopened.Flush(store, pipeline)
	if err != nil {
		t.Fatalf("flush 2: %v", err)
	}

	third := Open(root2, store, pipeline)
	for key, want := range map[string]uint64{"alice": 1, "bob": 2, "carol": 3, "dave": 4} {
		refs, ok, err := third.Get([]byte(key))
		if err != nil || !ok || !refs.Contains(noderefs.NodeKey(want)) {
			t.Fatalf("expected %q -> {%d} after second flush, got ok=%v refs=%v err=%v", key, want, ok, refs, err)
		}
	}
}

func TestRemoveTombstonesUntilCompact(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	tr.Insert([]byte("only"), 1)
	if err := tr.Remove([]byte("only"), 1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := tr.Get([]byte("only")); ok {
		t.Fatal("expected only's entry to read as absent once tombstoned")
	}
	// Remove tombstones in place rather than restructuring the trie, so
	// the tree only reports empty once Compact has actually reclaimed the
	// dead entry (spec §4.4.10).
	if tr.isEmpty() {
		t.Fatal("expected tree to remain structurally non-empty until Compact")
	}
	if err := tr.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if !tr.isEmpty() {
		t.Fatal("expected tree to report empty after compacting its only (tombstoned) entry")
	}
	if err := tr.Insert([]byte("only"), 7); err != nil {
		t.Fatalf("insert into tree re-emptied: %v", err)
	}
	refs, ok, _ := tr.Get([]byte("only"))
	if !ok || !refs.Contains(7) {
		t.Fatal("expected fresh insert after emptying to work")
	}
}
