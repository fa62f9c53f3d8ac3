package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// checksumSize is the number of trailing bytes used to store the CRC32 of
// the preceding payload.
const checksumSize = 4

// ChecksumHandler appends a CRC32 (IEEE) trailer on encode and verifies it
// on decode, mirroring the teacher's page-checksum convention but applied
// as a pipeline stage instead of a fixed page-footer offset.
type ChecksumHandler struct{}

// NewChecksumHandler returns a CRC32 checksum byte-handler.
func NewChecksumHandler() *ChecksumHandler { return &ChecksumHandler{} }

func (c *ChecksumHandler) Name() string { return "checksum-crc32" }

func (c *ChecksumHandler) Encode(data []byte) ([]byte, error) {
	sum := crc32.ChecksumIEEE(data)
	out := make([]byte, len(data)+checksumSize)
	copy(out, data)
	binary.LittleEndian.PutUint32(out[len(data):], sum)
	return out, nil
}

func (c *ChecksumHandler) Decode(data []byte) ([]byte, error) {
	if len(data) < checksumSize {
		return nil, fmt.Errorf("checksum handler: payload too short (%d bytes)", len(data))
	}

	payload := data[:len(data)-checksumSize]
	want := binary.LittleEndian.Uint32(data[len(data)-checksumSize:])
	got := crc32.ChecksumIEEE(payload)

	if got != want {
		return nil, fmt.Errorf("checksum mismatch: expected %08x, got %08x", want, got)
	}

	return payload, nil
}
