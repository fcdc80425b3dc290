package wyhash

import (
	"bytes"
	"testing"
)

// Reference vectors from the upstream final4 test program, where message i
// is hashed with seed i.
func TestHashVectors(t *testing.T) {
	tests := []struct {
		msg  string
		want uint64
	}{
		{"", 0x93228a4de0eec5a2},
		{"a", 0xc5bac3db178713c4},
		{"abc", 0xa97f2f7b1d9b3314},
		{"message digest", 0x786d1f1df3801df4},
		{"abcdefghijklmnopqrstuvwxyz", 0xdca5a8138ad37c87},
		{"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", 0xb9e734f117cfaf70},
		{string(bytes.Repeat([]byte("1234567890"), 8)), 0x6cc5eab49a92d617},
	}
	for i, tc := range tests {
		if got := Hash([]byte(tc.msg), uint64(i)); got != tc.want {
			t.Errorf("Hash(%q, %d) = %#x, want %#x", tc.msg, i, got, tc.want)
		}
	}
}

func TestStreamingMatchesOneShot(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	for _, n := range []int{0, 3, 16, 17, 47, 48, 49, 96, 97, 145, 300} {
		want := Hash(data[:n], 42)
		for _, chunk := range []int{1, 5, 16, 48, 49, 64} {
			d := New(42)
			for p := data[:n]; len(p) > 0; {
				k := min(chunk, len(p))
				d.Write(p[:k])
				p = p[k:]
			}
			if got := d.Sum64(); got != want {
				t.Errorf("len %d chunk %d: %#x, want %#x", n, chunk, got, want)
			}
		}
	}
}

func TestSumDoesNotMutate(t *testing.T) {
	d := New(0)
	d.Write(bytes.Repeat([]byte{0xab}, 100))
	first := d.Sum64()
	if second := d.Sum64(); first != second {
		t.Fatalf("Sum64 changed state: %#x then %#x", first, second)
	}
	d.Write([]byte("more"))
	want := Hash(append(bytes.Repeat([]byte{0xab}, 100), "more"...), 0)
	if got := d.Sum64(); got != want {
		t.Errorf("after more input: %#x, want %#x", got, want)
	}
	d.Reset()
	if got := d.Sum64(); got != Hash(nil, 0) {
		t.Errorf("after Reset: %#x", got)
	}
}
