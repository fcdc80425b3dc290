// Package treehash hashes large file trees under a bounded memory budget.
//
// Files are streamed through a fixed pool of read buffers by a fixed pool of
// workers, so memory use depends on the memory plan, not on file sizes or
// tree size. Any registered algorithm can be used, including extendable
// output functions read to an arbitrary length.
//
// # Basic Usage
//
//	cfg := treehash.DefaultPipelineConfig()
//	cfg.Algorithm = "shake256"
//	cfg.OutputBytes = 64
//
//	p, err := treehash.NewPipeline(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, summary, err := p.Collect(ctx, slices.Values(tasks))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range results {
//	    fmt.Printf("%s  %s\n", r.Hash, r.Path)
//	}
//	if err := summary.FailureError(); err != nil {
//	    log.Print(err)
//	}
//
// Hashing a single stream:
//
//	req, err := treehash.NewDigestRequest(nil, "blake3", 32, false)
//	sum, _, n, err := req.HashReader(r, nil)
//
// # Memory Modes
//
// ModeStream, ModeBalanced and ModeBooster trade memory for throughput. Plan
// turns a mode, a RAM budget and a CPU count into a thread count and buffer
// geometry, shrinking buffers, then threads, then falling back a tier until
// the plan fits.
//
// # Expansion
//
// Fixed-output algorithms can be stretched past their native digest size
// only when AllowExpansion is set. Expanded digests are deterministic but
// non-standard: they are not interoperable with other tools and must not be
// used for integrity verification. Every expanded result carries an
// ExpansionInfo.
//
// # Package Structure
//
//   - Digests: algorithm.go (Digest, AlgorithmSpec), registry.go (Registry), digest.go (DigestRequest)
//   - Algorithm adapters: internal/adapter/, internal/wyhash/, expansion constructions: internal/expand/
//   - Memory: plan.go (MemoryMode, Plan), pool.go (BufferPool)
//   - Scheduling: pipeline.go (Pipeline, Run), options.go (Option, With* functions), config.go
//   - Platform: fadvise_*.go, sysmem_*.go (OS-specific hints and RAM detection)
package treehash
