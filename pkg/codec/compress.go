package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdHandler implements the `Deflate` byte-handler stage named in spec
// §4.1 using zstd instead of classic DEFLATE — the compression library the
// retrieval pack's storage engines reach for (see SPEC_FULL.md §3).
type ZstdHandler struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdHandler builds a reusable encoder/decoder pair. The returned
// handler is safe for concurrent use by multiple goroutines.
func NewZstdHandler() (*ZstdHandler, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("codec: create zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("codec: create zstd decoder: %w", err)
	}

	return &ZstdHandler{encoder: enc, decoder: dec}, nil
}

func (z *ZstdHandler) Name() string { return "deflate-zstd" }

func (z *ZstdHandler) Encode(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func (z *ZstdHandler) Decode(data []byte) ([]byte, error) {
	out, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decode: %w", err)
	}
	return out, nil
}

// Close releases the encoder/decoder's background resources.
func (z *ZstdHandler) Close() {
	z.encoder.Close()
	z.decoder.Close()
}
