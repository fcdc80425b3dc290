// Package wyhash implements the final4 revision of WyHash with the default
// secret as a streaming hash.Hash64.
//
// Input is consumed in 48-byte blocks; the last 16 bytes of the previous
// block are retained because the tail read may reach back into them.
package wyhash

import (
	"encoding/binary"
	"hash"
	"math/bits"
)

const blockSize = 48

var secret = [4]uint64{0x2d358dccaa6c78a5, 0x8bb84b93962eacc9, 0x4b33a62ed433d4a3, 0x4d5a2da51de1aa47}

// wymix performs a 128-bit multiply and XOR fold.
func wymix(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return hi ^ lo
}

func wymum(a, b uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi
}

func r8(p []byte, i int) uint64 { return binary.LittleEndian.Uint64(p[i:]) }

func r4(p []byte, i int) uint64 { return uint64(binary.LittleEndian.Uint32(p[i:])) }

func r3(p []byte, k int) uint64 {
	return uint64(p[0])<<16 | uint64(p[k>>1])<<8 | uint64(p[k-1])
}

// Digest is a streaming WyHash state. It is not safe for concurrent use.
type Digest struct {
	seed       uint64
	s0, s1, s2 uint64
	length     uint64
	blocks     bool
	prev       [16]byte
	buf        [blockSize]byte
	nbuf       int
}

var _ hash.Hash64 = (*Digest)(nil)

// New returns a Digest keyed with seed.
func New(seed uint64) *Digest {
	d := &Digest{seed: seed}
	d.Reset()
	return d
}

// Hash returns the WyHash of b under seed.
func Hash(b []byte, seed uint64) uint64 {
	d := New(seed)
	d.Write(b)
	return d.Sum64()
}

func (d *Digest) Reset() {
	s := d.seed ^ wymix(d.seed^secret[0], secret[1])
	d.s0, d.s1, d.s2 = s, s, s
	d.length = 0
	d.blocks = false
	d.nbuf = 0
}

func (d *Digest) Size() int { return 8 }

func (d *Digest) BlockSize() int { return blockSize }

func (d *Digest) block(p []byte) {
	d.s0 = wymix(r8(p, 0)^secret[1], r8(p, 8)^d.s0)
	d.s1 = wymix(r8(p, 16)^secret[2], r8(p, 24)^d.s1)
	d.s2 = wymix(r8(p, 32)^secret[3], r8(p, 40)^d.s2)
	copy(d.prev[:], p[blockSize-16:blockSize])
	d.blocks = true
}

// Write never fails. A block is only consumed once more input follows it,
// so between calls 1 to 48 bytes stay buffered after the first block.
func (d *Digest) Write(p []byte) (int, error) {
	n := len(p)
	d.length += uint64(n)
	if d.nbuf+len(p) <= blockSize {
		d.nbuf += copy(d.buf[d.nbuf:], p)
		return n, nil
	}
	if d.nbuf > 0 {
		k := copy(d.buf[d.nbuf:], p)
		p = p[k:]
		d.block(d.buf[:])
		d.nbuf = 0
	}
	for len(p) > blockSize {
		d.block(p[:blockSize])
		p = p[blockSize:]
	}
	d.nbuf = copy(d.buf[:], p)
	return n, nil
}

func (d *Digest) Sum64() uint64 {
	seed := d.s0
	var a, b uint64
	if d.length <= 16 {
		p, n := d.buf[:d.nbuf], d.nbuf
		switch {
		case n >= 4:
			off := (n >> 3) << 2
			a = r4(p, 0)<<32 | r4(p, off)
			b = r4(p, n-4)<<32 | r4(p, n-4-off)
		case n > 0:
			a = r3(p, n)
		}
	} else {
		if d.blocks {
			seed ^= d.s1 ^ d.s2
		}
		var tail [16 + blockSize]byte
		copy(tail[:16], d.prev[:])
		copy(tail[16:], d.buf[:d.nbuf])
		p := tail[:16+d.nbuf]
		o, i := 16, d.nbuf
		for i > 16 {
			seed = wymix(r8(p, o)^secret[1], r8(p, o+8)^seed)
			o += 16
			i -= 16
		}
		a = r8(p, o+i-16)
		b = r8(p, o+i-8)
	}
	a ^= secret[1]
	b ^= seed
	a, b = wymum(a, b)
	return wymix(a^secret[0]^d.length, b^secret[1])
}

// Sum appends the digest big-endian.
func (d *Digest) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint64(b, d.Sum64())
}
