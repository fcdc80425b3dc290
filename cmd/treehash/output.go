package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/klauspost/compress/zstd"
)

// zstdSuffix selects compressed output for --output.
const zstdSuffix = ".zst"

// outputFile is the --output destination. Paths ending in .zst are written
// through a zstd encoder; Close flushes the encoder before the file.
type outputFile struct {
	f   *os.File
	enc *zstd.Encoder
}

func createOutput(path string) (*outputFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	out := &outputFile{f: f}
	if strings.HasSuffix(path, zstdSuffix) {
		out.enc, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	return out, nil
}

func (o *outputFile) Write(p []byte) (int, error) {
	if o.enc != nil {
		return o.enc.Write(p)
	}
	return o.f.Write(p)
}

func (o *outputFile) Close() error {
	if o.enc != nil {
		if err := o.enc.Close(); err != nil {
			_ = o.f.Close()
			return err
		}
	}
	return o.f.Close()
}

// failureMarker returns the FAILED label, colored only when w is the
// process's own terminal stderr and color was not disabled.
func failureMarker(w io.Writer, noColor bool) string {
	c := color.New(color.FgRed, color.Bold)
	if noColor || w != io.Writer(os.Stderr) {
		c.DisableColor()
	}
	return c.Sprint("FAILED")
}
