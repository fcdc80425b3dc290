// Hashbench measures tree hashing throughput and memory usage across
// memory modes and algorithms.
//
// Usage:
//
//	go run ./cmd/hashbench --files 2000 --size 1MiB --alg blake3
//	go run ./cmd/hashbench --mode sweep --max-ram 64MiB
//	go run ./cmd/hashbench --dir /data/corpus --alg xxh3 --cold
//
// Flags:
//
//	--files     Number of synthetic files (default: 1000)
//	--size      Maximum synthetic file size; sizes are uniform up to it (default: 1MiB)
//	--dir       Hash an existing directory instead of a synthetic tree
//	--alg       Algorithm name (default: blake3)
//	--mode      stream, balanced, booster or sweep (default: balanced)
//	--max-ram   Buffer memory budget (default: none)
//	--threads   Worker override (default: planned)
//	--cold      Drop each file from the page cache after hashing
//
// To simulate memory pressure:
//
//	sudo systemd-run --scope -p MemoryMax=512M --uid=$(id -u) \
//	  go run ./cmd/hashbench --mode booster --files 20000
package main

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/metrics"
	"runtime/pprof"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tamirms/treehash"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

type benchResult struct {
	mode     treehash.MemoryMode
	summary  treehash.Summary
	peakHeap uint64
	peakRSS  uint64
}

func main() {
	numFiles := pflag.Int("files", 1000, "number of synthetic files")
	sizeFlag := pflag.String("size", "1MiB", "maximum synthetic file size")
	dirFlag := pflag.String("dir", "", "hash an existing directory instead of a synthetic tree")
	algFlag := pflag.String("alg", "blake3", "algorithm")
	outLen := pflag.Int("xof-length", 0, "digest length in bytes (0 = default)")
	modeFlag := pflag.String("mode", "balanced", "memory mode: stream, balanced, booster or sweep")
	maxRAM := pflag.String("max-ram", "", "buffer memory budget")
	threads := pflag.Int("threads", 0, "worker override")
	cold := pflag.Bool("cold", false, "drop each file from the page cache after hashing")
	verbose := pflag.BoolP("verbose", "v", false, "log plan and pool diagnostics")
	cpuprofile := pflag.String("cpuprofile", "", "write cpu profile to file")
	pflag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg := treehash.DefaultPipelineConfig()
	cfg.Algorithm = *algFlag
	cfg.OutputBytes = *outLen
	cfg.AllowExpansion = true
	cfg.Threads = *threads
	if *maxRAM != "" {
		n, err := humanize.ParseBytes(*maxRAM)
		if err != nil {
			fmt.Printf("Invalid --max-ram: %v\n", err)
			return
		}
		cfg.MaxRAMBytes = n
	}

	var modes []treehash.MemoryMode
	if *modeFlag == "sweep" {
		modes = []treehash.MemoryMode{treehash.ModeStream, treehash.ModeBalanced, treehash.ModeBooster}
	} else {
		m, err := treehash.ParseMemoryMode(*modeFlag)
		if err != nil {
			fmt.Println(err)
			return
		}
		modes = []treehash.MemoryMode{m}
	}

	root := *dirFlag
	if root == "" {
		maxSize, err := humanize.ParseBytes(*sizeFlag)
		if err != nil {
			fmt.Printf("Invalid --size: %v\n", err)
			return
		}
		tmpDir, err := os.MkdirTemp("", "hashbench-")
		if err != nil {
			fmt.Printf("Failed to create temp dir: %v\n", err)
			return
		}
		defer func() { _ = os.RemoveAll(tmpDir) }()

		fmt.Printf("Generating %d files up to %s...\n", *numFiles, humanize.IBytes(maxSize))
		if err := generateTree(tmpDir, *numFiles, int64(maxSize)); err != nil {
			fmt.Printf("Generate failed: %v\n", err)
			return
		}
		root = tmpDir
	}

	tasks, err := listTree(root)
	if err != nil {
		fmt.Printf("Listing failed: %v\n", err)
		return
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Printf("could not create CPU profile: %v\n", err)
			return
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Printf("could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	var results []benchResult
	for _, mode := range modes {
		cfg.Mode = mode
		fmt.Printf("Hashing %d files (%s, %s)...\n", len(tasks), mode, cfg.Algorithm)
		res, err := benchMode(cfg, tasks, logger, *cold)
		if err != nil {
			fmt.Printf("Run failed: %v\n", err)
			return
		}
		results = append(results, res)
	}
	printTable(results)
}

// generateTree writes n files of pseudo-random content, two directory
// levels deep, with sizes uniform in [0, maxSize].
func generateTree(dir string, n int, maxSize int64) error {
	rng := mrand.New(mrand.NewPCG(0x1234, 0x5678))
	block := make([]byte, 64<<10)
	for i := range n {
		sub := filepath.Join(dir, fmt.Sprintf("d%02d", i%32), fmt.Sprintf("e%02d", (i/32)%16))
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
		f, err := os.Create(filepath.Join(sub, fmt.Sprintf("f%06d.bin", i)))
		if err != nil {
			return err
		}
		w := bufio.NewWriterSize(f, len(block))
		remaining := rng.Int64N(maxSize + 1)
		for remaining > 0 {
			for j := range block {
				block[j] = byte(rng.Uint32())
			}
			chunk := min(remaining, int64(len(block)))
			if _, err := w.Write(block[:chunk]); err != nil {
				_ = f.Close()
				return err
			}
			remaining -= chunk
		}
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

func listTree(root string) ([]treehash.FileTask, error) {
	var tasks []treehash.FileTask
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		tasks = append(tasks, treehash.FileTask{Path: p, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	return tasks, err
}

func benchMode(cfg treehash.PipelineConfig, tasks []treehash.FileTask, logger logrus.FieldLogger, cold bool) (benchResult, error) {
	p, err := treehash.NewPipeline(cfg, treehash.WithLogger(logger), treehash.WithDropCache(cold))
	if err != nil {
		return benchResult{}, err
	}

	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baselineHeap := readHeapObjectsBytes()
	baselineRSS := getMaxRSS()

	// 10ms sampling for peak memory (both heap and RSS).
	var peakHeap, peakRSS atomic.Uint64
	peakHeap.Store(baselineHeap)
	peakRSS.Store(baselineRSS)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				storeMax(&peakHeap, readHeapObjectsBytes())
				storeMax(&peakRSS, getMaxRSS())
			}
		}
	}()

	run := p.Start(context.Background(), slices.Values(tasks))
	for range run.Results() {
	}
	summary, err := run.Wait()
	close(done)
	if err != nil {
		return benchResult{}, err
	}
	storeMax(&peakHeap, readHeapObjectsBytes())
	storeMax(&peakRSS, getMaxRSS())

	return benchResult{
		mode:     cfg.Mode,
		summary:  summary,
		peakHeap: peakHeap.Load() - baselineHeap,
		peakRSS:  peakRSS.Load() - baselineRSS,
	}, nil
}

func storeMax(v *atomic.Uint64, x uint64) {
	for {
		old := v.Load()
		if x <= old || v.CompareAndSwap(old, x) {
			return
		}
	}
}

func readHeapObjectsBytes() uint64 {
	samples := []metrics.Sample{
		{Name: "/memory/classes/heap/objects:bytes"},
	}
	metrics.Read(samples)
	return samples[0].Value.Uint64()
}

func printTable(results []benchResult) {
	fmt.Printf("\n")
	fmt.Printf("╔══════════╦═════════╦════════════╦════════════╦════════════╦════════════╦════════╦══════════╗\n")
	fmt.Printf("║ Mode     ║ Threads ║ Buffers    ║ Throughput ║ Peak heap  ║ Peak RSS   ║ Pauses ║ Overflow ║\n")
	fmt.Printf("╠══════════╬═════════╬════════════╬════════════╬════════════╬════════════╬════════╬══════════╣\n")
	for _, r := range results {
		s := r.summary
		plan := s.Plan
		throughput := float64(s.Bytes) / s.Elapsed.Seconds()
		fmt.Printf("║ %-8s ║ %7d ║ %3d × %-4s ║ %8s/s ║ %10s ║ %10s ║ %6d ║ %8d ║\n",
			plan.Mode, plan.Threads, plan.TotalBuffers(), humanize.IBytes(uint64(plan.BufferSize)),
			humanize.IBytes(uint64(throughput)), humanize.IBytes(r.peakHeap), humanize.IBytes(r.peakRSS),
			s.SoftPauses, s.PoolOverflows+s.ResultOverflows)
	}
	fmt.Printf("╚══════════╩═════════╩════════════╩════════════╩════════════╩════════════╩════════╩══════════╝\n")
	for _, r := range results {
		if r.summary.Failed > 0 {
			fmt.Printf("%s: %d files failed\n", r.mode, r.summary.Failed)
		}
	}
}
