package page

import (
	"testing"

	"stratadb/pkg/record"
)

func TestUberPageRoundTrip(t *testing.T) {
	p := &UberPage{
		RevisionRoot:   PageRef{Key: 1, Fragments: []Fragment{{Offset: 128}}},
		MaxNodeKey:     999,
		RevisionNumber: 7,
	}
	decoded, err := DecodeUberPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MaxNodeKey != 999 || decoded.RevisionNumber != 7 || decoded.RevisionRoot.Offset() != 128 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestRevisionRootPageRoundTrip(t *testing.T) {
	p := &RevisionRootPage{
		Revision:      3,
		TimestampUnix: 1234,
		MaxNodeKey:    55,
		NextNameKey:   7,
		DocumentIndex: PageRef{Key: 10, Fragments: []Fragment{{Offset: 100}}},
		NameIndex:     PageRef{Key: 11, Fragments: []Fragment{{Offset: 200}}},
		NameDict:      PageRef{Key: 12, Fragments: []Fragment{{Offset: 300}}},
	}
	decoded, err := DecodeRevisionRootPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Revision != 3 || decoded.DocumentIndex.Key != 10 || decoded.NameIndex.Offset() != 200 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if decoded.NextNameKey != 7 || decoded.NameDict.Offset() != 300 {
		t.Fatalf("name dict fields mismatch: %+v", decoded)
	}
}

func TestRevisionRootPageCloneIsIndependent(t *testing.T) {
	p := &RevisionRootPage{Revision: 1, DocumentIndex: PageRef{Key: 5}}
	clone := p.Clone()
	clone.DocumentIndex.Key = 99

	if p.DocumentIndex.Key != 5 {
		t.Fatalf("expected original untouched by clone mutation")
	}
}

func TestIndirectPageRoundTrip(t *testing.T) {
	p := &IndirectPage{Children: []PageRef{
		{Key: 1, Fragments: []Fragment{{Offset: 10}}},
		{Key: 2, Fragments: []Fragment{{Offset: 20}}},
	}}
	decoded, err := DecodeIndirectPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Children) != 2 || decoded.Children[1].Offset() != 20 {
		t.Fatalf("round trip mismatch: %+v", decoded.Children)
	}
}

func TestLeafPageRoundTrip(t *testing.T) {
	p := NewLeafPage(KindKeyValueLeaf, []LeafEntry{
		{Key: []byte("a"), Value: &record.Record{NodeKey: 1, Kind: record.KindDocumentValue, Payload: []byte("va")}},
		{Key: []byte("b"), Value: &record.Record{NodeKey: 2, Kind: record.KindDocumentValue, Payload: []byte("vb")}},
	})

	decoded, err := DecodeLeafPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind() != KindKeyValueLeaf || len(decoded.Entries) != 2 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if string(decoded.Entries[1].Key) != "b" || decoded.Entries[1].Value.NodeKey != 2 {
		t.Fatalf("entry mismatch: %+v", decoded.Entries[1])
	}
}

func TestDeltaLeafPageRoundTrip(t *testing.T) {
	p := NewDeltaLeafPage(KindKeyValueLeaf,
		[]LeafEntry{{Key: []byte("c"), Value: &record.Record{NodeKey: 3, Kind: record.KindDocumentValue, Payload: []byte("vc")}}},
		[]Fragment{{Revision: 4, Offset: 4096, Length: 256}, {Revision: 1, Offset: 0, Length: 512}},
	)
	decoded, err := DecodeLeafPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Entries) != 1 || len(decoded.PriorFragments) != 2 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if decoded.PriorFragments[0].Revision != 4 || decoded.PriorFragments[1].Offset != 0 {
		t.Fatalf("fragment chain mismatch: %+v", decoded.PriorFragments)
	}
}

func TestPathSummaryPageRoundTrip(t *testing.T) {
	p := &PathSummaryPage{
		Entries: []PathSummaryEntry{
			{PathNodeKey: 1, ParentKey: 0, NameKey: 5, ChildCount: 2},
		},
		Children: []int64{64, 128},
	}
	decoded, err := DecodePathSummaryPage(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Entries) != 1 || len(decoded.Children) != 2 || decoded.Children[1] != 128 {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}
