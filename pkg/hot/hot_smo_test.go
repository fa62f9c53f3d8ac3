package hot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"stratadb/pkg/errs"
	"stratadb/pkg/noderefs"
	"stratadb/pkg/page"
)

func TestScalarSearchMatchesSimdSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		width := 1 + rng.Intn(20)
		keys := make([]uint32, width)
		for i := range keys {
			keys[i] = rng.Uint32() & 0xFFFF
		}
		d := rng.Uint32() & 0xFFFF
		want := scalarSearch(d, keys)
		got := simdSearch(d, keys)
		if want != got {
			t.Fatalf("trial %d: scalarSearch=%d simdSearch=%d d=%x keys=%v", trial, want, got, d, keys)
		}
	}
}

func TestCompressExtractsBitsInMaskOrder(t *testing.T) {
	word := uint64(0b1011) << 60 // top 4 bits: 1,0,1,1
	mask := uint64(0xF) << 60
	value, width := compress(word, mask)
	if width != 4 {
		t.Fatalf("expected width 4, got %d", width)
	}
	if value != 0b1011 {
		t.Fatalf("expected 0b1011, got %b", value)
	}
}

func TestNameKeySerializerRoundTrip(t *testing.T) {
	cases := []struct{ kind byte; name string }{
		{1, "xs:greeting"},
		{2, "greeting"},
		{3, "a:b:c"},
	}
	for _, c := range cases {
		encoded := NameKeySerializer(c.kind, []byte(c.name))
		kind, prefix, local, err := NameKeyDeserialize(encoded)
		if err != nil {
			t.Fatalf("deserialize %q: %v", c.name, err)
		}
		if kind != c.kind {
			t.Fatalf("kind mismatch for %q: got %d want %d", c.name, kind, c.kind)
		}
		roundTripped := string(prefix) + ":" + string(local)
		if c.name != "greeting" && roundTripped != c.name {
			t.Fatalf("round trip mismatch: got %q want %q", roundTripped, c.name)
		}
	}
}

func TestNameKeySerializerOrdersByPrefixThenLocal(t *testing.T) {
	a := NameKeySerializer(1, []byte("a:zzz"))
	b := NameKeySerializer(1, []byte("b:aaa"))
	if bytes.Compare(a, b) >= 0 {
		t.Fatalf("expected prefix a to sort before prefix b, got a=%x b=%x", a, b)
	}
	unprefixed := NameKeySerializer(1, []byte("zzz"))
	prefixed := NameKeySerializer(1, []byte("a:aaa"))
	if bytes.Compare(unprefixed, prefixed) >= 0 {
		t.Fatalf("expected unprefixed name to sort before any prefixed name sharing kind")
	}
}

func TestPathKeySerializerOrderPreserving(t *testing.T) {
	values := []int64{-1000, -1, 0, 1, 1000, 1 << 40}
	var encoded [][]byte
	for _, v := range values {
		encoded = append(encoded, PathKeySerializer(v))
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("expected ascending encodings for ascending values %v, got %x then %x", values, encoded[i-1], encoded[i])
		}
	}
	for _, v := range values {
		got, err := PathKeyDeserialize(PathKeySerializer(v))
		if err != nil || got != v {
			t.Fatalf("round trip mismatch for %d: got %d err=%v", v, got, err)
		}
	}
}

func TestCASKeySerializerRoundTripAndOrder(t *testing.T) {
	ints := []int64{-500, -1, 0, 1, 500}
	var encoded [][]byte
	for _, v := range ints {
		b, err := CASKeySerializer(v)
		if err != nil {
			t.Fatalf("serialize %d: %v", v, err)
		}
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("expected ascending int encodings, got %x then %x", encoded[i-1], encoded[i])
		}
	}

	floats := []float64{-3.5, -0.1, 0, 0.1, 3.5}
	encoded = nil
	for _, v := range floats {
		b, err := CASKeySerializer(v)
		if err != nil {
			t.Fatalf("serialize %v: %v", v, err)
		}
		encoded = append(encoded, b)
	}
	for i := 1; i < len(encoded); i++ {
		if bytes.Compare(encoded[i-1], encoded[i]) >= 0 {
			t.Fatalf("expected ascending float encodings, got %x then %x", encoded[i-1], encoded[i])
		}
	}

	for _, v := range append(append([]any{}, anySlice(ints)...), anySlice(floats)...) {
		b, err := CASKeySerializer(v)
		if err != nil {
			t.Fatalf("serialize %v: %v", v, err)
		}
		got, err := CASKeyDeserialize(b)
		if err != nil {
			t.Fatalf("deserialize %v: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %v want %v", got, v)
		}
	}

	boolBytes, _ := CASKeySerializer(true)
	gotBool, err := CASKeyDeserialize(boolBytes)
	if err != nil || gotBool != true {
		t.Fatalf("bool round trip: got %v err=%v", gotBool, err)
	}

	strBytes, _ := CASKeySerializer("hello")
	gotStr, err := CASKeyDeserialize(strBytes)
	if err != nil || gotStr != "hello" {
		t.Fatalf("string round trip: got %v err=%v", gotStr, err)
	}
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func TestLeafFindEntryMergeSplitCompactCopy(t *testing.T) {
	leaf := &HOTLeafPage{}
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		if ok, err := leaf.mergeWithNodeRefs(key, uint64(i)); err != nil || !ok {
			t.Fatalf("merge %d: ok=%v err=%v", i, ok, err)
		}
	}
	if len(leaf.Entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(leaf.Entries))
	}
	if idx := leaf.findEntry([]byte("k05")); idx != 5 {
		t.Fatalf("expected k05 at index 5, got %d", idx)
	}
	if idx := leaf.findEntry([]byte("missing")); idx >= 0 {
		t.Fatalf("expected missing key to report negative, got %d", idx)
	}

	clone := leaf.copy()
	if err := clone.removeNodeRef([]byte("k03"), 3); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !isTombstone(clone.Entries[3].Value) {
		t.Fatal("expected k03's entry to be tombstoned, not removed")
	}
	if len(clone.Entries) != 10 {
		t.Fatal("expected tombstoning to preserve entry count")
	}
	if len(leaf.Entries) != 10 || isTombstone(leaf.Entries[3].Value) {
		t.Fatal("expected copy() to leave the original leaf untouched")
	}

	reclaimed := clone.compact()
	if reclaimed != 1 {
		t.Fatalf("expected compact to reclaim 1 entry, got %d", reclaimed)
	}
	if len(clone.Entries) != 9 {
		t.Fatalf("expected 9 entries after compact, got %d", len(clone.Entries))
	}

	right := &HOTLeafPage{}
	partitionKey, ok := leaf.splitTo(right)
	if !ok {
		t.Fatal("expected splitTo to succeed on a 10-entry leaf")
	}
	if len(leaf.Entries)+len(right.Entries) != 10 {
		t.Fatalf("expected split halves to sum to 10, got %d+%d", len(leaf.Entries), len(right.Entries))
	}
	if !bytes.Equal(partitionKey, right.Entries[0].Key) {
		t.Fatal("expected partition key to equal right's minimum key")
	}
	if bytes.Compare(leaf.maxKey(), right.minKey()) >= 0 {
		t.Fatalf("expected left half to sort entirely before right half, got left max %q right min %q", leaf.maxKey(), right.minKey())
	}

	single := &HOTLeafPage{}
	single.mergeWithNodeRefs([]byte("solo"), 1)
	soloRight := &HOTLeafPage{}
	if _, ok := single.splitTo(soloRight); ok {
		t.Fatal("expected splitTo on a single-entry leaf to fail (irreducible, scenario F)")
	}
}

func TestLeafGuardDetectsConcurrentMutation(t *testing.T) {
	leaf := &HOTLeafPage{}
	leaf.mergeWithNodeRefs([]byte("a"), 1)
	token := leaf.acquireGuard()
	if !leaf.releaseGuard(token) {
		t.Fatal("expected guard to still be valid with no intervening mutation")
	}

	token = leaf.acquireGuard()
	leaf.bumpGuard()
	if leaf.releaseGuard(token) {
		t.Fatal("expected guard to be invalidated by an intervening mutation")
	}
}

func TestSpaceExhaustedWhenSingleEntryLeafCannotSplit(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	bigKeyA := bytes.Repeat([]byte{0xAA}, 4000)
	bigKeyB := bytes.Repeat([]byte{0xBB}, 4000)

	if err := tr.Insert(bigKeyA, 1); err != nil {
		t.Fatalf("insert first big key: %v", err)
	}
	err := tr.Insert(bigKeyB, 2)
	if err == nil {
		t.Fatal("expected inserting a second large key into an already-full single-entry leaf to fail")
	}
	var spaceErr *errs.SpaceExhaustedError
	if !errors.As(err, &spaceErr) || !errors.Is(err, errs.ErrSpaceExhausted) {
		t.Fatalf("expected a SpaceExhaustedError, got %v", err)
	}
	if spaceErr.EntryCount != 1 {
		t.Fatalf("expected the irreducible leaf to report entryCount=1, got %d", spaceErr.EntryCount)
	}
}

func TestInsertManyKeysProducesIndirectRootWithFoldedChildren(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	const n = 1000
	for i := 0; i < n; i++ {
		var key [4]byte
		binary.BigEndian.PutUint32(key[:], uint32(i))
		if err := tr.Insert(key[:], uint64(i)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, ok := tr.root.InMemory.(*HOTIndirectPage); !ok {
		t.Fatalf("expected root to become an indirect node after %d inserts, got %T", n, tr.root.InMemory)
	}
	for _, i := range []int{0, 1, 500, 999} {
		var key [4]byte
		binary.BigEndian.PutUint32(key[:], uint32(i))
		refs, ok, err := tr.Get(key[:])
		if err != nil || !ok || !refs.Contains(noderefs.NodeKey(i)) {
			t.Fatalf("expected key %d to round trip, got ok=%v err=%v", i, ok, err)
		}
	}
}

func TestMergeThenRemoveBothRefsLeavesKeyTombstoned(t *testing.T) {
	tr := Open(page.PageRef{}, nil, nil)
	if err := tr.Insert([]byte("shared"), 7); err != nil {
		t.Fatalf("insert 7: %v", err)
	}
	if err := tr.Insert([]byte("shared"), 9); err != nil {
		t.Fatalf("insert 9: %v", err)
	}
	refs, ok, err := tr.Get([]byte("shared"))
	if err != nil || !ok || refs.Cardinality() != 2 {
		t.Fatalf("expected shared to map to {7,9}, got ok=%v refs=%v err=%v", ok, refs, err)
	}

	if err := tr.Remove([]byte("shared"), 7); err != nil {
		t.Fatalf("remove 7: %v", err)
	}
	refs, ok, err = tr.Get([]byte("shared"))
	if err != nil || !ok || refs.Cardinality() != 1 || !refs.Contains(9) {
		t.Fatalf("expected shared to retain {9}, got ok=%v refs=%v err=%v", ok, refs, err)
	}

	if err := tr.Remove([]byte("shared"), 9); err != nil {
		t.Fatalf("remove 9: %v", err)
	}
	if _, ok, _ := tr.Get([]byte("shared")); ok {
		t.Fatal("expected shared to read as absent once its reference set is fully tombstoned")
	}
}
