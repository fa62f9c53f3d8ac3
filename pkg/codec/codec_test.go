package codec

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

func TestChecksumRoundTrip(t *testing.T) {
	h := NewChecksumHandler()
	payload := []byte("revision root page bytes")

	encoded, err := h.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := h.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(decoded, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", decoded, payload)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	h := NewChecksumHandler()
	encoded, _ := h.Encode([]byte("some page bytes"))
	encoded[0] ^= 0xFF

	if _, err := h.Decode(encoded); err == nil {
		t.Fatalf("expected corruption to be detected")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	h, err := NewZstdHandler()
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	defer h.Close()

	payload := bytes.Repeat([]byte("abcxyz"), 200)

	encoded, err := h.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := h.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(decoded, payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	var key [chacha20poly1305.KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}

	h, err := NewEncryptHandler(key)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	payload := []byte("leaf page with sensitive node values")

	encoded, err := h.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if bytes.Equal(encoded, payload) {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	decoded, err := h.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(decoded, payload) {
		t.Fatalf("round trip mismatch")
	}
}

func TestPipelineComposesInOrder(t *testing.T) {
	var key [chacha20poly1305.KeySize]byte
	enc, err := NewEncryptHandler(key)
	if err != nil {
		t.Fatalf("new encrypt handler: %v", err)
	}

	zstdH, err := NewZstdHandler()
	if err != nil {
		t.Fatalf("new zstd handler: %v", err)
	}
	defer zstdH.Close()

	p := NewPipeline(zstdH, enc, NewChecksumHandler())

	payload := []byte("uber page: revision root ref, max node key, revision number")
	encoded, err := p.Encode(payload)
	if err != nil {
		t.Fatalf("pipeline encode: %v", err)
	}

	decoded, err := p.Decode(encoded)
	if err != nil {
		t.Fatalf("pipeline decode: %v", err)
	}

	if !bytes.Equal(decoded, payload) {
		t.Fatalf("pipeline round trip mismatch")
	}

	names := p.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 handler names, got %d", len(names))
	}
}
