package resource

import (
	"testing"

	"stratadb/pkg/pagetx"
	"stratadb/pkg/record"
)

func openTestResource(t *testing.T) *Resource {
	t.Helper()
	r, err := OpenMemory(Params{Resource: DefaultResourceConfig(1)})
	if err != nil {
		t.Fatalf("open memory resource: %v", err)
	}
	return r
}

func TestBeginWriteCommitThenReadBack(t *testing.T) {
	r := openTestResource(t)
	defer r.Close()

	ws, err := r.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	rec, err := ws.CreateRecord(pagetx.DocumentIndex, &record.Record{Kind: record.KindDocumentValue, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if err := ws.NameIndex().Insert([]byte("name:greeting"), rec.NodeKey); err != nil {
		t.Fatalf("insert name index: %v", err)
	}
	if _, err := ws.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rtx, pathSummary, err := r.BeginRead()
	if err != nil {
		t.Fatalf("begin read: %v", err)
	}
	if pathSummary == nil {
		t.Fatalf("expected a non-nil path summary tree")
	}
	got, ok, err := rtx.GetRecord(pagetx.DocumentIndex, rec.NodeKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !ok || string(got.Payload) != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	refs, ok, err := rtx.NameIndex().Get([]byte("name:greeting"))
	if err != nil {
		t.Fatalf("get name index: %v", err)
	}
	if !ok || refs == nil {
		t.Fatalf("expected name index entry to round trip")
	}
}

func TestSequentialWriteSessionsAdvanceRevision(t *testing.T) {
	r := openTestResource(t)
	defer r.Close()

	var lastRevision uint64
	for i := 0; i < 3; i++ {
		ws, err := r.BeginWrite()
		if err != nil {
			t.Fatalf("begin write %d: %v", i, err)
		}
		if _, err := ws.CreateRecord(pagetx.DocumentIndex, &record.Record{Kind: record.KindDocumentValue, Payload: []byte("v")}); err != nil {
			t.Fatalf("create record %d: %v", i, err)
		}
		uber, err := ws.Commit()
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		if uint64(uber.RevisionNumber) <= lastRevision {
			t.Fatalf("expected revision to advance past %d, got %d", lastRevision, uber.RevisionNumber)
		}
		lastRevision = uint64(uber.RevisionNumber)
	}
}

func TestCheckpointReportsReachableBytes(t *testing.T) {
	r := openTestResource(t)
	defer r.Close()

	ws, err := r.BeginWrite()
	if err != nil {
		t.Fatalf("begin write: %v", err)
	}
	if _, err := ws.CreateRecord(pagetx.DocumentIndex, &record.Record{Kind: record.KindDocumentValue, Payload: []byte("hello")}); err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := ws.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	stats, err := r.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if stats.ReachableBytes <= 0 {
		t.Fatalf("expected some reachable bytes, got %+v", stats)
	}
	if stats.ReachableBytes > stats.TotalBytes {
		t.Fatalf("reachable exceeds total: %+v", stats)
	}
}

func TestCheckpointOnEmptyResourceIsZero(t *testing.T) {
	r := openTestResource(t)
	defer r.Close()

	stats, err := r.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if stats.ReachableBytes != 0 {
		t.Fatalf("expected zero reachable bytes for an empty resource, got %+v", stats)
	}
}
