// Package bloom implements the per-SSTable approximate-membership
// filter: no false negatives, and a false-positive rate bounded by the
// configured target, serialized in a fixed binary layout so filters
// round-trip across restarts.
package bloom

import (
	"encoding/binary"
	"errors"
	"math"
)

// FNV-1a constants. h1 is the standard 64-bit FNV-1a offset/prime; h2
// reuses the prime with a different offset basis so the two hashes stay
// independent enough for double hashing.
const (
	fnvPrime      uint64 = 1099511628211
	h1OffsetBasis uint64 = 14695981039346656037
	h2OffsetBasis uint64 = 12345678901234567890
)

const (
	minBits   uint32 = 8
	minHashes uint8  = 1
	maxHashes uint8  = 16

	headerLen = 4 + 4 + 4 // num_bits, num_hashes, num_items, each LE u32
)

// ErrShortBuffer is returned by Decode when the input is too small to
// hold the header plus the bit array the header declares.
var ErrShortBuffer = errors.New("bloom: buffer shorter than header+bits")

// Filter is a Bloom filter: a bit array plus the parameters used to size
// and hash into it.
type Filter struct {
	numBits   uint32
	numHashes uint8
	numItems  uint32
	buf       []byte
}

// New builds a filter sized for expectedItems entries at targetFPP false
// positives, via the standard optimal-parameter formulas:
//
//	m = ceil(-n*ln(p) / ln(2)^2), floored at 8
//	k = ceil((m/n)*ln(2)), clamped to [1, 16]
//
// expectedItems is clamped to >= 1 and targetFPP to [1e-4, 0.5] before
// the formulas are evaluated, so the result is never NaN/Inf regardless
// of caller input.
func New(expectedItems int, targetFPP float64) *Filter {
	n := expectedItems
	if n < 1 {
		n = 1
	}
	p := targetFPP
	if p < 1e-4 {
		p = 1e-4
	}
	if p > 0.5 {
		p = 0.5
	}

	numBitsF := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	numBits := uint32(math.Ceil(numBitsF))
	if numBits < minBits {
		numBits = minBits
	}

	numHashesF := (float64(numBits) / float64(n)) * math.Ln2
	numHashes := uint8(math.Ceil(numHashesF))
	if numHashes < minHashes {
		numHashes = minHashes
	}
	if numHashes > maxHashes {
		numHashes = maxHashes
	}

	return NewWithParams(numBits, numHashes)
}

// NewWithParams builds an empty filter from explicit (numBits, numHashes),
// applying the same floors/clamps as New.
func NewWithParams(numBits uint32, numHashes uint8) *Filter {
	if numBits < minBits {
		numBits = minBits
	}
	if numHashes < minHashes {
		numHashes = minHashes
	}
	if numHashes > maxHashes {
		numHashes = maxHashes
	}
	byteLen := (numBits + 7) / 8
	return &Filter{
		numBits:   numBits,
		numHashes: numHashes,
		buf:       make([]byte, byteLen),
	}
}

// Insert marks key as present, setting numHashes bit positions.
func (f *Filter) Insert(key []byte) {
	h1, h2 := hash2(key)
	m := uint64(f.numBits)
	for i := uint8(0); i < f.numHashes; i++ {
		h := (h1 + uint64(i)*h2) % m
		f.setBit(uint32(h))
	}
	f.numItems++
}

// MightContain reports whether key may have been inserted: false means
// key was definitely never inserted; true means it was, or this is a
// false positive. An empty filter always returns false.
func (f *Filter) MightContain(key []byte) bool {
	h1, h2 := hash2(key)
	m := uint64(f.numBits)
	for i := uint8(0); i < f.numHashes; i++ {
		h := (h1 + uint64(i)*h2) % m
		if !f.getBit(uint32(h)) {
			return false
		}
	}
	return true
}

// hash2 computes the two base hashes used for double hashing:
// h_i(key) = (h1 + i*h2) mod m. h2 is OR'd with 1 so the step is always
// odd and nonzero.
func hash2(key []byte) (uint64, uint64) {
	h1 := h1OffsetBasis
	for _, b := range key {
		h1 ^= uint64(b)
		h1 *= fnvPrime
	}
	h2 := h2OffsetBasis
	for _, b := range key {
		h2 ^= uint64(b)
		h2 *= fnvPrime
	}
	h2 |= 1
	return h1, h2
}

func (f *Filter) setBit(bit uint32) {
	f.buf[bit/8] |= 1 << (bit % 8)
}

func (f *Filter) getBit(bit uint32) bool {
	return f.buf[bit/8]&(1<<(bit%8)) != 0
}

// NumBits reports the bit-array size.
func (f *Filter) NumBits() uint32 { return f.numBits }

// NumHashes reports the number of hash functions (double-hash rounds).
func (f *Filter) NumHashes() uint8 { return f.numHashes }

// NumItems reports how many keys have been inserted.
func (f *Filter) NumItems() uint32 { return f.numItems }

// SizeBytes reports the serialized bit-array size.
func (f *Filter) SizeBytes() int { return len(f.buf) }

// Encode serializes the filter: three little-endian u32 header fields
// (num_bits, num_hashes, num_items) followed by the raw bit array.
func (f *Filter) Encode() []byte {
	out := make([]byte, headerLen+len(f.buf))
	binary.LittleEndian.PutUint32(out[0:4], f.numBits)
	binary.LittleEndian.PutUint32(out[4:8], uint32(f.numHashes))
	binary.LittleEndian.PutUint32(out[8:12], f.numItems)
	copy(out[headerLen:], f.buf)
	return out
}

// Decode parses a filter previously produced by Encode. It fails if buf
// is shorter than the header plus the ceil(num_bits/8) bytes the header
// declares.
func Decode(buf []byte) (*Filter, error) {
	if len(buf) < headerLen {
		return nil, ErrShortBuffer
	}
	numBits := binary.LittleEndian.Uint32(buf[0:4])
	numHashes := binary.LittleEndian.Uint32(buf[4:8])
	numItems := binary.LittleEndian.Uint32(buf[8:12])

	byteLen := (numBits + 7) / 8
	if uint32(len(buf)-headerLen) < byteLen {
		return nil, ErrShortBuffer
	}

	bits := make([]byte, byteLen)
	copy(bits, buf[headerLen:headerLen+int(byteLen)])

	return &Filter{
		numBits:   numBits,
		numHashes: uint8(numHashes),
		numItems:  numItems,
		buf:       bits,
	}, nil
}

// Stats summarizes a filter's current shape for introspection.
type Stats struct {
	NumBits      uint32
	NumHashes    uint8
	NumItems     uint32
	SizeBytes    int
	BitsSet      int
	FillRatio    float64
	EstimatedFPP float64
}

// Stats reports the filter's parameters plus derived statistics: the
// popcount of the bit array, its fill ratio, and the estimated current
// false-positive rate (1 - e^(-kn/m))^k. A filter with zero items
// reports zero estimated FPP.
func (f *Filter) Stats() Stats {
	bitsSet := 0
	for _, b := range f.buf {
		bitsSet += popcount(b)
	}
	fillRatio := 0.0
	if f.numBits > 0 {
		fillRatio = float64(bitsSet) / float64(f.numBits)
	}

	var estimatedFPP float64
	if f.numItems > 0 {
		k := float64(f.numHashes)
		n := float64(f.numItems)
		m := float64(f.numBits)
		probBitZero := math.Exp(-k * n / m)
		estimatedFPP = math.Pow(1-probBitZero, k)
	}

	return Stats{
		NumBits:      f.numBits,
		NumHashes:    f.numHashes,
		NumItems:     f.numItems,
		SizeBytes:    len(f.buf),
		BitsSet:      bitsSet,
		FillRatio:    fillRatio,
		EstimatedFPP: estimatedFPP,
	}
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}
