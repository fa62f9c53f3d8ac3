package codec

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptHandler implements the optional encryption byte-handler stage.
// It uses ChaCha20-Poly1305 (golang.org/x/crypto), keyed from the
// resource's `keyselector` material (spec §6.1). The nonce is generated
// per encode and stored as a prefix of the ciphertext.
type EncryptHandler struct {
	aead chacha20poly1305.AEAD
}

// NewEncryptHandler builds an encryption handler from a 32-byte key.
func NewEncryptHandler(key [chacha20poly1305.KeySize]byte) (*EncryptHandler, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("codec: create AEAD cipher: %w", err)
	}
	return &EncryptHandler{aead: aead}, nil
}

func (e *EncryptHandler) Name() string { return "encrypt-chacha20poly1305" }

func (e *EncryptHandler) Encode(data []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("codec: generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, data, nil)
	return sealed, nil
}

func (e *EncryptHandler) Decode(data []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("codec: ciphertext too short for nonce")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: decrypt: %w", err)
	}
	return plain, nil
}
