package intentlog

import (
	"testing"

	"stratadb/pkg/blockio"
	"stratadb/pkg/codec"
	"stratadb/pkg/page"
	"stratadb/pkg/pagecache"
	"stratadb/pkg/record"
)

func decodeForTest(kind page.PageKind, data []byte) (page.Page, error) {
	switch kind {
	case page.KindKeyValueLeaf:
		return page.DecodeLeafPage(data)
	default:
		return page.DecodeLeafPage(data)
	}
}

func leafFor(key byte) *page.LeafPage {
	return page.NewLeafPage(page.KindKeyValueLeaf, []page.LeafEntry{
		{Key: []byte{key}, Value: &record.Record{NodeKey: uint64(key), Kind: record.KindDocumentValue, Payload: []byte("v")}},
	})
}

func TestPutGetRoundTrip(t *testing.T) {
	log := New(pagecache.NewBudget(0), nil, nil, decodeForTest)

	key, err := log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Complete: leafFor('a')})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := log.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Current().(*page.LeafPage).Entries[0].Key[0] != 'a' {
		t.Fatalf("unexpected container contents: %+v", got)
	}
}

func TestPutRejectsEmptyContainer(t *testing.T) {
	log := New(pagecache.NewBudget(0), nil, nil, decodeForTest)
	if _, err := log.Put(&PageContainer{Kind: page.KindKeyValueLeaf}); err == nil {
		t.Fatal("expected error for container with neither Complete nor Modified set")
	}
}

func TestGetUnknownKeyFails(t *testing.T) {
	log := New(pagecache.NewBudget(0), nil, nil, decodeForTest)
	if _, err := log.Get(LogKey(999)); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRemoveDropsEntry(t *testing.T) {
	log := New(pagecache.NewBudget(0), nil, nil, decodeForTest)
	key, _ := log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Complete: leafFor('a')})
	log.Remove(key)
	if _, err := log.Get(key); err == nil {
		t.Fatal("expected error after remove")
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got len %d", log.Len())
	}
}

func TestClearReleasesAllEntries(t *testing.T) {
	budget := pagecache.NewBudget(0)
	log := New(budget, nil, nil, decodeForTest)
	log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Complete: leafFor('a')})
	log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Complete: leafFor('b')})

	log.Clear()

	if log.Len() != 0 {
		t.Fatalf("expected empty log after clear, got %d", log.Len())
	}
	if budget.ComponentUsage(component) != 0 {
		t.Fatalf("expected zero tracked usage after clear, got %d", budget.ComponentUsage(component))
	}
}

func TestModifiedContainerTracksOriginal(t *testing.T) {
	log := New(pagecache.NewBudget(0), nil, nil, decodeForTest)
	original := page.PageRef{Key: 42, Fragments: []page.Fragment{{Offset: 100}}}

	key, err := log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Modified: leafFor('m'), Original: original})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := log.Get(key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Original.Key != 42 || got.Modified == nil || got.Complete != nil {
		t.Fatalf("unexpected container shape: %+v", got)
	}
}

func TestSpillAndReloadUnderPressure(t *testing.T) {
	budget := pagecache.NewBudget(1) // pressure immediately
	store := blockio.NewMemoryStore()
	pipeline := codec.NewPipeline()

	log := New(budget, store, pipeline, decodeForTest)

	key, err := log.Put(&PageContainer{Kind: page.KindKeyValueLeaf, Complete: leafFor('z')})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := log.Get(key)
	if err != nil {
		t.Fatalf("get after spill: %v", err)
	}
	leaf, ok := got.Current().(*page.LeafPage)
	if !ok || leaf.Entries[0].Key[0] != 'z' {
		t.Fatalf("unexpected reloaded container: %+v", got)
	}
}
