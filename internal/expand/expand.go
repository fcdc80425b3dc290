// Package expand stretches fixed-size digests to arbitrary lengths.
//
// Both constructions are deterministic and platform independent: every
// integer is serialized little-endian. Neither is a cryptographic XOF; the
// output exists so that fixed-output algorithms can fill a requested width
// reproducibly.
package expand

import (
	"encoding/binary"
	"hash"
)

// Chained expands d0 to outLen bytes as
//
//	D0 ‖ H(D0‖LE32(0)) ‖ H(D0‖LE32(1)) ‖ …
//
// truncated to outLen. The first len(d0) bytes of the result are always d0,
// so the expanded digest extends the native one rather than replacing it.
func Chained(newHash func() hash.Hash, d0 []byte, outLen int) []byte {
	if outLen <= 0 {
		return []byte{}
	}
	out := make([]byte, 0, outLen+len(d0))
	out = append(out, d0...)

	h := newHash()
	var counter [4]byte
	for i := uint32(0); len(out) < outLen; i++ {
		h.Reset()
		h.Write(d0)
		binary.LittleEndian.PutUint32(counter[:], i)
		h.Write(counter[:])
		out = h.Sum(out)
	}
	return out[:outLen]
}

// SeededFunc is a 64-bit seeded hash over a byte slice.
type SeededFunc func(b []byte, seed uint64) uint64

// Seeded expands a 64-bit digest to outLen bytes. Chunk i is
//
//	f(LE64(i), seed + i·step)
//
// written little-endian; chunks are concatenated in index order and the
// result truncated to outLen. step must be odd so that successive seeds
// never collide within 2^64 chunks.
func Seeded(f SeededFunc, seed, step uint64, outLen int) []byte {
	if outLen <= 0 {
		return []byte{}
	}
	chunks := (outLen + 7) / 8
	out := make([]byte, chunks*8)
	var index [8]byte
	tweak := seed
	for i := 0; i < chunks; i++ {
		binary.LittleEndian.PutUint64(index[:], uint64(i))
		binary.LittleEndian.PutUint64(out[i*8:], f(index[:], tweak))
		tweak += step
	}
	return out[:outLen]
}
