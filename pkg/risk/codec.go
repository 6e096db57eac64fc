package risk

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const codecVersion byte = 1

var codecMagic = []byte("RSKM")

// Marshal encodes m as a versioned, zstd-compressed JSON blob.
func Marshal(m *Model) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil model", ErrPersistence)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding model: %w", ErrPersistence, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("%w: creating compressor: %w", ErrPersistence, err)
	}
	defer enc.Close()

	blob := make([]byte, 0, len(codecMagic)+1+len(raw)/4)
	blob = append(blob, codecMagic...)
	blob = append(blob, codecVersion)
	return enc.EncodeAll(raw, blob), nil
}

// Unmarshal decodes a blob produced by Marshal and validates the result.
// Corrupt blobs fail with ErrPersistence; structurally wrong models fail with
// ErrModelInconsistency.
func Unmarshal(blob []byte) (*Model, error) {
	header := len(codecMagic) + 1
	if len(blob) < header || !bytes.Equal(blob[:len(codecMagic)], codecMagic) {
		return nil, fmt.Errorf("%w: not a model blob", ErrPersistence)
	}
	if v := blob[len(codecMagic)]; v != codecVersion {
		return nil, fmt.Errorf("%w: unsupported model version %d", ErrPersistence, v)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating decompressor: %w", ErrPersistence, err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob[header:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing model: %w", ErrPersistence, err)
	}

	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding model: %w", ErrPersistence, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
