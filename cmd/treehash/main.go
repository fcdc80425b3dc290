// Treehash computes a digest for every file under a directory and writes a
// sorted hash map.
//
// Usage:
//
//	treehash [flags] <dir>
//
// Examples:
//
//	treehash ./data
//	treehash --alg shake256 --xof-length 64 --mem-mode stream ./data
//	treehash --alg blake2b-1024 --force-expand --format json ./data
//	treehash --alg-list
//
// Every flag can also be set in a YAML file (--config) or through a
// TREEHASH_* environment variable; flags win over the environment, which
// wins over the file.
//
// Exit status is 0 on success, 1 on configuration or fatal errors, and 2
// when the run finished but some files could not be hashed.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/tamirms/treehash"
)

// progressEvery throttles progress logging to one line per this many files.
const progressEvery = 1000

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func (e exitError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "treehash: %v\n", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("treehash", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var flags flagValues
	registerFlags(fs, &flags)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: treehash [flags] <dir>\n\nFlags:\n%s", fs.FlagUsages())
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	opts, err := resolveOptions(fs, &flags, os.LookupEnv)
	if err != nil {
		return err
	}

	if flags.algList {
		return writeAlgorithmList(stdout, opts.Format, treehash.DefaultRegistry().List())
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one directory argument is required")
	}
	root, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		return err
	}
	if fi, err := os.Stat(root); err != nil {
		return err
	} else if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	pipeOpts := []treehash.Option{treehash.WithLogger(logger)}
	if opts.Progress {
		pipeOpts = append(pipeOpts, treehash.WithProgress(progressLogger(logger, progressEvery)))
	}
	pipeline, err := treehash.NewPipeline(opts.PipelineConfig, pipeOpts...)
	if err != nil {
		return err
	}

	w := &walker{
		root:           root,
		excludes:       opts.Exclude,
		followSymlinks: opts.FollowSymlinks,
		maxDepth:       opts.MaxDepth,
		logger:         logger,
	}
	results, summary, runErr := pipeline.Collect(ctx, w.Tasks())

	if opts.Output == "" {
		if err := writeResults(stdout, opts.Format, root, summary, results); err != nil {
			return err
		}
	} else {
		out, err := createOutput(opts.Output)
		if err != nil {
			return err
		}
		if err := writeResults(out, opts.Format, root, summary, results); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}

	failures := append(w.failures, summary.Failures...)
	marker := failureMarker(stderr, opts.NoColor)
	for _, f := range failures {
		fmt.Fprintf(stderr, "%s %s: %v\n", marker, relPath(root, f.Path), f.Err)
	}
	logger.WithFields(logrus.Fields{
		"files":  summary.Hashed,
		"bytes":  humanize.IBytes(uint64(summary.Bytes)),
		"failed": len(failures),
	}).Info("done")
	if len(failures) > 0 {
		return exitError{code: 2, err: fmt.Errorf("%d files could not be hashed", len(failures))}
	}
	return nil
}

// progressLogger logs one line each time Done reaches a multiple of every.
// The pipeline reports each Done value exactly once, so no line is skipped
// or repeated even though workers call it concurrently.
func progressLogger(logger logrus.FieldLogger, every int) func(treehash.Progress) {
	return func(p treehash.Progress) {
		if p.Done%every != 0 {
			return
		}
		entry := logger.WithFields(logrus.Fields{"done": p.Done, "failed": p.Failed})
		if p.Total >= 0 {
			entry = entry.WithField("total", p.Total)
		}
		entry.Info("progress")
	}
}

func relPath(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(r)
}

// jsonRecord is one line of --format json output.
type jsonRecord struct {
	Path          string                  `json:"path"`
	Hash          string                  `json:"hash"`
	Size          int64                   `json:"size"`
	MTime         int64                   `json:"mtime"`
	ElapsedMicros int64                   `json:"elapsed_us"`
	Expansion     *treehash.ExpansionInfo `json:"expansion,omitempty"`
}

// writeResults writes results, already sorted by path. Text output follows
// the "<hex>  <path>" layout of the coreutils sum tools; expanded digests
// are announced in a leading comment line.
func writeResults(w io.Writer, format, root string, summary treehash.Summary, results []treehash.HashResult) error {
	bw := bufio.NewWriter(w)
	switch format {
	case "json":
		enc := json.NewEncoder(bw)
		for _, r := range results {
			rec := jsonRecord{
				Path:          relPath(root, r.Path),
				Hash:          r.Hash,
				Size:          r.Size,
				MTime:         r.ModTime.Unix(),
				ElapsedMicros: r.ElapsedMicros(),
				Expansion:     r.Expansion,
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	default:
		if summary.Expanded {
			fmt.Fprintf(bw, "# %s expanded to %d bytes: non-standard digest, not for integrity verification\n",
				summary.Algorithm.Name, summary.OutputBytes)
		}
		for _, r := range results {
			fmt.Fprintf(bw, "%s  %s\n", r.Hash, relPath(root, r.Path))
		}
	}
	return bw.Flush()
}

func writeAlgorithmList(w io.Writer, format string, specs []treehash.AlgorithmSpec) error {
	bw := bufio.NewWriter(w)
	if format == "json" {
		enc := json.NewEncoder(bw)
		for _, s := range specs {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return bw.Flush()
	}
	fmt.Fprintf(bw, "%-14s %-6s %-4s %s\n", "NAME", "CRYPTO", "XOF", "DEFAULT")
	for _, s := range specs {
		fmt.Fprintf(bw, "%-14s %-6s %-4s %d bytes\n", s.Name, yesNo(s.IsCryptographic), yesNo(s.SupportsNativeXOF), s.DefaultOutputBytes)
	}
	return bw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
