package bloom

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Marshal encodes the sketch as a snappy-compressed byte blob. The
// uncompressed layout is three little-endian uint64 header fields
// (numBits, numHashes, count) followed by the bit array words.
func (s *Sketch) Marshal() ([]byte, error) {
	raw := make([]byte, 24+len(s.bits)*8)
	binary.LittleEndian.PutUint64(raw[0:8], s.numBits)
	binary.LittleEndian.PutUint64(raw[8:16], s.numHashes)
	binary.LittleEndian.PutUint64(raw[16:24], s.count)
	for i, word := range s.bits {
		binary.LittleEndian.PutUint64(raw[24+i*8:], word)
	}
	return snappy.Encode(nil, raw), nil
}

// Unmarshal reconstructs a sketch from a Marshal blob.
func Unmarshal(data []byte) (*Sketch, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("bloom: snappy decompress failed: %w", err)
	}
	if len(raw) < 24 {
		return nil, errors.New("bloom: serialized sketch too short")
	}
	numBits := binary.LittleEndian.Uint64(raw[0:8])
	numHashes := binary.LittleEndian.Uint64(raw[8:16])
	count := binary.LittleEndian.Uint64(raw[16:24])
	if numBits == 0 || numHashes == 0 || numBits%64 != 0 {
		return nil, errors.New("bloom: invalid sketch dimensions")
	}
	// Marshal always writes numBits as a whole number of words, so the
	// word count must match the payload exactly. Dividing first keeps
	// a forged huge numBits from wrapping past the length check.
	numWords := numBits / 64
	if numWords > uint64(len(raw)-24)/8 {
		return nil, fmt.Errorf("bloom: header claims %d words, payload has %d bytes", numWords, len(raw)-24)
	}
	bits := make([]uint64, int(numWords))
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(raw[24+i*8:])
	}
	return &Sketch{
		bits:      bits,
		numBits:   numBits,
		numHashes: numHashes,
		count:     count,
	}, nil
}
