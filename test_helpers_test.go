package treehash

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	randv2 "math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x1234567890ABCDEF
	testSeed2 = 0xFEDCBA9876543210
)

// newTestRNG returns an RNG seeded from the test name, so every test sees
// its own reproducible stream.
func newTestRNG(t testing.TB) *randv2.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return randv2.New(randv2.NewPCG(testSeed1^s1, testSeed2^s2))
}

// fillFromRNG fills buf with pseudo-random bytes from rng.
func fillFromRNG(rng *randv2.Rand, buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		binary.LittleEndian.PutUint64(buf[i:], rng.Uint64())
	}
	if tail := len(buf) % 8; tail > 0 {
		v := rng.Uint64()
		start := len(buf) - tail
		for j := 0; j < tail; j++ {
			buf[start+j] = byte(v >> (j * 8))
		}
	}
}

// writeTestTree writes n files of pseudo-random content under dir and
// returns one task per file. Sizes vary from 0 to maxSize bytes.
func writeTestTree(t testing.TB, rng *randv2.Rand, dir string, n, maxSize int) []FileTask {
	t.Helper()
	tasks := make([]FileTask, n)
	for i := range n {
		size := 0
		if maxSize > 0 {
			size = rng.IntN(maxSize + 1)
		}
		data := make([]byte, size)
		fillFromRNG(rng, data)
		path := filepath.Join(dir, fmt.Sprintf("f%03d.bin", i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		tasks[i] = FileTask{Path: path, Size: int64(size)}
	}
	return tasks
}

// wantDigest hashes path's content in one shot with req.
func wantDigest(t testing.TB, req DigestRequest, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sum, _, err := req.Sum(data)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	return fmt.Sprintf("%x", sum)
}

// newTestLogger returns a logger that discards output and records every
// entry for assertions.
func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// countEntries returns the number of entries at level whose message
// contains substr.
func countEntries(hook *test.Hook, level logrus.Level, substr string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// slowReader delays every Read, keeping the worker's buffer checked out.
type slowReader struct {
	r     io.Reader
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	return s.r.Read(p)
}

func (s *slowReader) Close() error { return nil }

// panicReader fails inside the digest loop.
type panicReader struct{}

func (panicReader) Read([]byte) (int, error) { panic("corrupt reader state") }

func (panicReader) Close() error { return nil }
