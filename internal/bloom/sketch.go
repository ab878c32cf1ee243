// Package bloom provides a per-column membership sketch used by the
// snapshot store to prune snapshots for equality lookups. A sketch
// answers "might this column value appear in that snapshot" with no
// false negatives. Sketches follow the engine's single-actor model;
// they carry no internal locking.
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/tablo-db/tablo/pkg/types"
)

// Sketch is a bloom filter over column values.
type Sketch struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a sketch with the given raw dimensions. Non-positive
// arguments fall back to defaults; the bit count rounds up to a whole
// number of 64-bit words.
func New(numBits, numHashes int) *Sketch {
	if numBits <= 0 {
		numBits = 1024
	}
	if numHashes <= 0 {
		numHashes = 7
	}
	numWords := (numBits + 63) / 64
	return &Sketch{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// NewForColumn creates a sketch sized for the expected number of
// distinct values at the target false positive rate.
func NewForColumn(expectedValues int, targetFPR float64) *Sketch {
	bits, hashes := optimalParameters(expectedValues, targetFPR)
	return New(bits, hashes)
}

// optimalParameters sizes the filter:
//
//	m = -n * ln(p) / (ln 2)^2
//	k = (m/n) * ln 2
func optimalParameters(expectedValues int, targetFPR float64) (numBits, numHashes int) {
	if expectedValues <= 0 {
		expectedValues = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}
	n := float64(expectedValues)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	k := (m / n) * math.Ln2

	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil(k))
	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add records a column value in the sketch. Null values are never
// added; an equality lookup against null has no index-style fast path
// either, so the sketch only tracks real values.
func (s *Sketch) Add(v types.Value) {
	if v.IsNull() {
		return
	}
	h1, h2 := hashValue(v)
	for i := uint64(0); i < s.numHashes; i++ {
		s.setBit((h1 + i*h2) % s.numBits)
	}
	s.count++
}

// MightContain reports whether the value may have been added. False
// means definitely absent; true may be a false positive.
func (s *Sketch) MightContain(v types.Value) bool {
	if v.IsNull() {
		return false
	}
	h1, h2 := hashValue(v)
	for i := uint64(0); i < s.numHashes; i++ {
		if !s.getBit((h1 + i*h2) % s.numBits) {
			return false
		}
	}
	return true
}

// Count returns the number of values added.
func (s *Sketch) Count() uint64 { return s.count }

// FalsePositiveRate estimates the current false positive rate from
// the fill level: (1 - e^(-k*n/m))^k.
func (s *Sketch) FalsePositiveRate() float64 {
	if s.count == 0 {
		return 0
	}
	k := float64(s.numHashes)
	n := float64(s.count)
	m := float64(s.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// hashValue produces two 64-bit hashes of a value for double hashing.
// The encoding tags the value kind so Int(1) and Str("1") hash
// differently, matching the engine's strict equality.
func hashValue(v types.Value) (uint64, uint64) {
	h := murmur3.New128()
	var tag [1]byte
	tag[0] = byte(v.Kind())
	h.Write(tag[:])
	switch v.Kind() {
	case types.KindInt:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Int64()))
		h.Write(buf[:])
	case types.KindFloat:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float64()))
		h.Write(buf[:])
	case types.KindBool:
		if v.Bool() {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case types.KindString:
		h.Write([]byte(v.Text()))
	}
	return h.Sum128()
}

func (s *Sketch) setBit(pos uint64) {
	s.bits[pos/64] |= 1 << (pos % 64)
}

func (s *Sketch) getBit(pos uint64) bool {
	return s.bits[pos/64]&(1<<(pos%64)) != 0
}
