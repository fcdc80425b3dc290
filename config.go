package treehash

import (
	"fmt"

	treeerrors "github.com/tamirms/treehash/errors"
)

// PipelineConfig is the validated input of a hashing run. Configuration
// files, flags and environment variables are resolved into this struct by
// the caller.
type PipelineConfig struct {
	Mode MemoryMode `yaml:"mode"`

	// MaxRAMBytes caps buffer memory. Zero means no cap, except in
	// booster mode where 70% of system RAM is used.
	MaxRAMBytes uint64 `yaml:"max_ram_bytes"`

	Algorithm string `yaml:"algorithm"`

	// OutputBytes is the digest length. Zero selects the algorithm default.
	OutputBytes int `yaml:"output_bytes"`

	// AllowExpansion opts in to the non-standard expansion construction
	// for fixed-output algorithms.
	AllowExpansion bool `yaml:"allow_expansion"`

	// Threads overrides the planned worker count when positive.
	Threads int `yaml:"threads"`
}

// DefaultPipelineConfig returns balanced mode with BLAKE3 at its default
// length.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Mode:      ModeBalanced,
		Algorithm: "blake3",
	}
}

// Validate checks every configuration constraint and returns the digest
// request the run will use. All errors are configuration errors.
func (c PipelineConfig) Validate(reg *Registry) (DigestRequest, error) {
	if c.Mode > ModeBooster {
		return DigestRequest{}, fmt.Errorf("%w: %d", treeerrors.ErrInvalidMode, c.Mode)
	}
	if c.Threads < 0 {
		return DigestRequest{}, fmt.Errorf("%w: %d", treeerrors.ErrInvalidThreads, c.Threads)
	}
	return NewDigestRequest(reg, c.Algorithm, c.OutputBytes, c.AllowExpansion)
}
