package treehash

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/crypto/blake2b"

	treeerrors "github.com/tamirms/treehash/errors"
)

// TestExpansionEmptyInputVector checks the documented construction for a
// 64-byte fixed digest stretched to 80 bytes.
func TestExpansionEmptyInputVector(t *testing.T) {
	req, err := NewDigestRequest(nil, "blake2b", 80, true)
	if err != nil {
		t.Fatalf("NewDigestRequest: %v", err)
	}
	got, info, err := req.Sum(nil)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if len(got) != 80 {
		t.Fatalf("len = %d, want 80", len(got))
	}

	d0 := blake2b.Sum512(nil)
	if !bytes.Equal(got[:64], d0[:]) {
		t.Errorf("prefix = %x, want %x", got[:64], d0)
	}
	var block [68]byte
	copy(block[:], d0[:])
	binary.LittleEndian.PutUint32(block[64:], 0)
	d1 := blake2b.Sum512(block[:])
	if !bytes.Equal(got[64:], d1[:16]) {
		t.Errorf("tail = %x, want %x", got[64:], d1[:16])
	}

	if info == nil || !info.Expanded || info.Algorithm != "blake2b" || info.RequestedOutputBytes != 80 || info.NativeDigestBytes != 64 {
		t.Errorf("ExpansionInfo = %+v", info)
	}
}

func TestDigestLengthExactness(t *testing.T) {
	rng := newTestRNG(t)
	input := make([]byte, 10_000)
	fillFromRNG(rng, input)

	for _, spec := range DefaultRegistry().List() {
		for _, n := range []int{1, spec.NativeDigestBytes, spec.NativeDigestBytes + 1, 100, 257} {
			req, err := NewDigestRequest(nil, spec.Name, n, true)
			if err != nil {
				t.Fatalf("%s/%d: %v", spec.Name, n, err)
			}
			sum, info, err := req.Sum(input)
			if err != nil {
				t.Fatalf("%s/%d: Sum: %v", spec.Name, n, err)
			}
			if len(sum) != n {
				t.Errorf("%s/%d: len = %d", spec.Name, n, len(sum))
			}
			wantExpanded := !spec.SupportsNativeXOF && n > spec.NativeDigestBytes
			if (info != nil) != wantExpanded {
				t.Errorf("%s/%d: expansion info = %+v, want expanded=%v", spec.Name, n, info, wantExpanded)
			}
		}
	}
}

func TestDigestDeterminism(t *testing.T) {
	rng := newTestRNG(t)
	input := make([]byte, 4096)
	fillFromRNG(rng, input)

	for _, name := range []string{"blake3", "shake128", "blake2b-1024", "sha3-512", "murmur3-128", "xxh3-1024", "xxh64-1024"} {
		t.Run(name, func(t *testing.T) {
			req, err := NewDigestRequest(nil, name, 200, true)
			if err != nil {
				t.Fatalf("NewDigestRequest: %v", err)
			}
			a, _, err := req.Sum(input)
			if err != nil {
				t.Fatal(err)
			}
			b, _, n, err := req.HashReader(bytes.NewReader(input), make([]byte, 7))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(a, b) {
				t.Errorf("one-shot %x != streamed %x", a, b)
			}
			if n != int64(len(input)) {
				t.Errorf("HashReader consumed %d bytes, want %d", n, len(input))
			}

			// A shorter request from the same construction is a prefix.
			short, err := NewDigestRequest(nil, name, 100, true)
			if err != nil {
				t.Fatal(err)
			}
			c, _, err := short.Sum(input)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(c, a[:100]) {
				t.Errorf("100-byte output is not a prefix of the 200-byte output")
			}
		})
	}
}

func TestDigestRequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		alg       string
		outLen    int
		allow     bool
		wantError error
	}{
		{"unknown", "md5", 0, false, treeerrors.ErrUnknownAlgorithm},
		{"negative length", "blake3", -1, false, treeerrors.ErrInvalidOutputLength},
		{"fixed over native", "sha3-512", 65, false, treeerrors.ErrExpansionNotAllowed},
		{"expanded default", "xxh3-1024", 0, false, treeerrors.ErrExpansionNotAllowed},
		{"xof needs no opt-in", "shake256", 1024, false, nil},
		{"fixed within native", "murmur3", 16, false, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDigestRequest(nil, tc.alg, tc.outLen, tc.allow)
			if tc.wantError == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantError) {
				t.Errorf("error = %v, want %v", err, tc.wantError)
			}
		})
	}
}

func TestDigestDefaultLength(t *testing.T) {
	req, err := NewDigestRequest(nil, "blake2b-1024", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if req.RequestedOutputBytes != 128 {
		t.Errorf("RequestedOutputBytes = %d, want 128", req.RequestedOutputBytes)
	}
	if !req.NeedsExpansion() {
		t.Error("blake2b-1024 should need expansion")
	}
}

func TestDigestFinalizeRejectsOversize(t *testing.T) {
	alg, err := DefaultRegistry().Lookup("xxh64")
	if err != nil {
		t.Fatal(err)
	}
	d := alg.New()
	if _, err := d.Finalize(9); !errors.Is(err, treeerrors.ErrExpansionRequired) {
		t.Errorf("Finalize(9) error = %v, want ErrExpansionRequired", err)
	}
}

func TestDigestWriteAfterFinalize(t *testing.T) {
	alg, err := DefaultRegistry().Lookup("blake3")
	if err != nil {
		t.Fatal(err)
	}
	d := alg.New()
	if _, err := d.Finalize(32); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Write([]byte("late")); !errors.Is(err, treeerrors.ErrDigestFinalized) {
		t.Errorf("Write after Finalize error = %v, want ErrDigestFinalized", err)
	}
}

func TestDigestFinalizeTwice(t *testing.T) {
	for _, name := range []string{"blake3", "sha3-512", "xxh3"} {
		alg, err := DefaultRegistry().Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		d := alg.New()
		d.Write([]byte("once"))
		if _, err := d.Finalize(8); err != nil {
			t.Fatalf("%s: first Finalize: %v", name, err)
		}
		if _, err := d.Finalize(8); !errors.Is(err, treeerrors.ErrDigestFinalized) {
			t.Errorf("%s: second Finalize error = %v, want ErrDigestFinalized", name, err)
		}
	}

	req, err := NewDigestRequest(nil, "xxh3-1024", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	d, err := req.NewDigest()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := req.Finalize(d); err != nil {
		t.Fatalf("expanded Finalize: %v", err)
	}
	if _, _, err := req.Finalize(d); !errors.Is(err, treeerrors.ErrDigestFinalized) {
		t.Errorf("second expanded Finalize error = %v, want ErrDigestFinalized", err)
	}
}

func TestDigestRequestZeroValue(t *testing.T) {
	var req DigestRequest
	if _, err := req.NewDigest(); !errors.Is(err, treeerrors.ErrUnknownAlgorithm) {
		t.Errorf("zero DigestRequest NewDigest error = %v, want ErrUnknownAlgorithm", err)
	}
	if _, _, err := req.Sum([]byte("x")); !errors.Is(err, treeerrors.ErrUnknownAlgorithm) {
		t.Errorf("zero DigestRequest Sum error = %v, want ErrUnknownAlgorithm", err)
	}

	// A request assembled from a listed spec resolves by name.
	spec := DefaultRegistry().List()[0]
	byHand := DigestRequest{Algorithm: spec, RequestedOutputBytes: spec.DefaultOutputBytes}
	viaCtor, err := NewDigestRequest(nil, spec.Name, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	a, _, err := byHand.Sum([]byte("resolve"))
	if err != nil {
		t.Fatalf("hand-built Sum: %v", err)
	}
	b, _, err := viaCtor.Sum([]byte("resolve"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("hand-built request digest %x != %x", a, b)
	}
}
