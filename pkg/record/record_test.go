package record

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := &Record{
		NodeKey:              42,
		ParentKey:            7,
		PreviousRevision:     3,
		LastModifiedRevision: 4,
		Kind:                 KindDocumentValue,
		Payload:              []byte("hello document value"),
	}

	decoded, err := Decode(r.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.NodeKey != r.NodeKey || decoded.ParentKey != r.ParentKey {
		t.Fatalf("identity mismatch: %+v vs %+v", decoded, r)
	}
	if decoded.PreviousRevision != r.PreviousRevision || decoded.LastModifiedRevision != r.LastModifiedRevision {
		t.Fatalf("revision mismatch: %+v vs %+v", decoded, r)
	}
	if decoded.Kind != r.Kind || string(decoded.Payload) != string(r.Payload) {
		t.Fatalf("payload mismatch: %+v vs %+v", decoded, r)
	}
}

func TestStructuralKindCarriesCounts(t *testing.T) {
	r := &Record{
		NodeKey:      1,
		Kind:         KindStructuralNode,
		SiblingCount: 3,
		ChildCount:   5,
	}

	decoded, err := Decode(r.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.SiblingCount != 3 || decoded.ChildCount != 5 {
		t.Fatalf("structural counts mismatch: %+v", decoded)
	}
}

func TestDecodeDetectsContentHashMismatch(t *testing.T) {
	r := &Record{NodeKey: 1, Kind: KindPathNode, Payload: []byte("path segment")}
	data := r.Encode()
	data[len(data)-1] ^= 0xFF

	if _, err := Decode(data); err == nil {
		t.Fatalf("expected content hash mismatch to be detected")
	}
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short buffer to be rejected")
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	r := &Record{NodeKey: 1, Kind: KindNameCountEntry, Payload: []byte("0123456789")}
	data := r.Encode()
	truncated := data[:len(data)-3]

	if _, err := Decode(truncated); err == nil {
		t.Fatalf("expected truncated payload to be rejected")
	}
}
