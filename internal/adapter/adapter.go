// Package adapter wraps concrete hash implementations behind a uniform
// streaming surface.
//
// Three shapes exist:
//
//   - XOF hashers read any number of bytes from the algorithm's native
//     extendable-output stream (BLAKE3, SHAKE, BLAKE2Xb, KangarooTwelve).
//   - Chained hashers have a fixed digest and stretch it by re-hashing the
//     native digest with a counter (BLAKE2b, SHA3-512, MurmurHash3).
//   - Seeded hashers have a 64-bit digest and stretch it by seeding the fast
//     hash with a per-chunk tweak (XXH3, XXH64, WyHash).
//
// No adapter touches the file system; callers stream bytes in with Write.
package adapter

import (
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudflare/circl/xof/k12"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	treeerrors "github.com/tamirms/treehash/errors"
	"github.com/tamirms/treehash/internal/expand"
	"github.com/tamirms/treehash/internal/wyhash"
)

// Per-variant odd tweak constants for seeded expansion.
const (
	XXH3Step  uint64 = 0x9E3779B185EBCA87
	XXH64Step uint64 = 0xC2B2AE3D27D4EB4F
	WyStep    uint64 = 0xA0761D6478BD642F
)

// Hasher is the streaming state of one algorithm over one input.
//
// A Hasher is NOT safe for concurrent use; the pipeline constructs a fresh
// one per file.
type Hasher interface {
	io.Writer

	// Sum returns the first n bytes of the digest. Fixed-output hashers
	// return ErrExpansionRequired when n exceeds their native size; XOF
	// hashers accept any n.
	Sum(n int) ([]byte, error)
}

// Expander is implemented by fixed-output hashers that know how to stretch
// their native digest. The result is deterministic but non-standard.
type Expander interface {
	Expand(n int) []byte
}

type xofHasher struct {
	w    io.Writer
	open func() io.Reader
}

func (x *xofHasher) Write(p []byte) (int, error) { return x.w.Write(p) }

func (x *xofHasher) Sum(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(x.open(), out); err != nil {
		return nil, fmt.Errorf("read xof stream: %w", err)
	}
	return out, nil
}

// NewBLAKE3 returns a BLAKE3 hasher reading from its native output stream.
func NewBLAKE3() Hasher {
	h := blake3.New()
	return &xofHasher{w: h, open: func() io.Reader { return h.Digest() }}
}

// NewShake128 returns a SHAKE128 hasher.
func NewShake128() Hasher {
	h := sha3.NewShake128()
	return &xofHasher{w: h, open: func() io.Reader { return h.Clone() }}
}

// NewShake256 returns a SHAKE256 hasher.
func NewShake256() Hasher {
	h := sha3.NewShake256()
	return &xofHasher{w: h, open: func() io.Reader { return h.Clone() }}
}

// NewBLAKE2Xb returns a BLAKE2Xb hasher with unknown output length, so that
// any prefix of the stream is stable regardless of how much is read.
func NewBLAKE2Xb() Hasher {
	x, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
	if err != nil {
		// Only reachable with an oversized key.
		panic(err)
	}
	return &xofHasher{w: x, open: func() io.Reader { return x.Clone() }}
}

// NewK12 returns a KangarooTwelve hasher with an empty customization string.
func NewK12() Hasher {
	s := k12.NewDraft10(nil)
	h := &s
	return &xofHasher{w: h, open: func() io.Reader {
		c := h.Clone()
		return &c
	}}
}

type chainedHasher struct {
	h       hash.Hash
	newHash func() hash.Hash
}

func (c *chainedHasher) Write(p []byte) (int, error) { return c.h.Write(p) }

func (c *chainedHasher) Sum(n int) ([]byte, error) {
	d := c.h.Sum(nil)
	if n > len(d) {
		return nil, fmt.Errorf("%w: %d bytes requested, native digest is %d", treeerrors.ErrExpansionRequired, n, len(d))
	}
	return d[:n], nil
}

func (c *chainedHasher) Expand(n int) []byte {
	return expand.Chained(c.newHash, c.h.Sum(nil), n)
}

func newChained(newHash func() hash.Hash) Hasher {
	return &chainedHasher{h: newHash(), newHash: newHash}
}

func newBlake2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	return h
}

// NewBLAKE2b512 returns an unkeyed BLAKE2b-512 hasher.
func NewBLAKE2b512() Hasher { return newChained(newBlake2b512) }

// NewSHA3512 returns a SHA3-512 hasher.
func NewSHA3512() Hasher { return newChained(sha3.New512) }

// NewMurmur3128 returns a MurmurHash3 x64 128-bit hasher (seed 0).
func NewMurmur3128() Hasher {
	return newChained(func() hash.Hash { return murmur3.New128() })
}

type seededHasher struct {
	h    hash.Hash64
	f    expand.SeededFunc
	step uint64
}

func (s *seededHasher) Write(p []byte) (int, error) { return s.h.Write(p) }

// Sum renders the 64-bit digest big-endian, the canonical xxHash byte order.
func (s *seededHasher) Sum(n int) ([]byte, error) {
	if n > 8 {
		return nil, fmt.Errorf("%w: %d bytes requested, native digest is 8", treeerrors.ErrExpansionRequired, n)
	}
	var d [8]byte
	binary.BigEndian.PutUint64(d[:], s.h.Sum64())
	return d[:n], nil
}

func (s *seededHasher) Expand(n int) []byte {
	return expand.Seeded(s.f, s.h.Sum64(), s.step, n)
}

// NewXXH3 returns an XXH3-64 hasher.
func NewXXH3() Hasher {
	return &seededHasher{h: xxh3.New(), f: xxh3.HashSeed, step: XXH3Step}
}

// NewXXH64 returns an XXH64 hasher.
func NewXXH64() Hasher {
	return &seededHasher{h: xxhash.New(), f: xxh64Seed, step: XXH64Step}
}

// NewWyHash returns a WyHash (final4, seed 0) hasher.
func NewWyHash() Hasher {
	return &seededHasher{h: wyhash.New(0), f: wyhash.Hash, step: WyStep}
}

func xxh64Seed(b []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(b)
	return d.Sum64()
}
