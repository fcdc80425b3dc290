package treehash

import (
	"fmt"
	"io"

	treeerrors "github.com/tamirms/treehash/errors"
	"github.com/tamirms/treehash/internal/adapter"
)

// AlgorithmSpec is the static capability metadata of a registered algorithm.
// It is constructed once when the registry is built and never mutated.
type AlgorithmSpec struct {
	Name               string `json:"name"`
	NativeDigestBytes  int    `json:"native_digest_bytes"`
	SupportsNativeXOF  bool   `json:"supports_native_xof"`
	IsCryptographic    bool   `json:"is_cryptographic"`
	DefaultOutputBytes int    `json:"default_output_bytes"`
}

// ExpansionInfo accompanies every digest produced by the expansion
// construction rather than by a native XOF. Expanded output is deterministic
// but not interoperable with other tools and must not be used for integrity
// verification.
type ExpansionInfo struct {
	Expanded             bool   `json:"expanded"`
	Algorithm            string `json:"algorithm"`
	RequestedOutputBytes int    `json:"requested_output_bytes"`
	NativeDigestBytes    int    `json:"native_digest_bytes"`
}

// Digest is the uniform streaming surface over one algorithm.
//
// A Digest is created fresh for every input, accepts any number of Write
// calls of any size, and never touches the file system.
//
// # Thread Safety
//
// A Digest is NOT safe for concurrent use. Each pipeline worker constructs
// its own Digest per file.
type Digest interface {
	io.Writer

	// Spec returns the capability metadata of the underlying algorithm.
	Spec() AlgorithmSpec

	// Finalize returns exactly outLen bytes of digest. Native-XOF
	// algorithms read outLen bytes from their output stream. Fixed-output
	// algorithms return a prefix of the native digest when outLen is at
	// most NativeDigestBytes and ErrExpansionRequired otherwise; see
	// DigestRequest.Finalize for the expansion route.
	//
	// After a successful Finalize, further writes and a second Finalize
	// fail with ErrDigestFinalized.
	Finalize(outLen int) ([]byte, error)
}

type digest struct {
	spec      AlgorithmSpec
	h         adapter.Hasher
	finalized bool
}

func (d *digest) Spec() AlgorithmSpec { return d.spec }

func (d *digest) Write(p []byte) (int, error) {
	if d.finalized {
		return 0, treeerrors.ErrDigestFinalized
	}
	return d.h.Write(p)
}

func (d *digest) Finalize(outLen int) ([]byte, error) {
	if d.finalized {
		return nil, treeerrors.ErrDigestFinalized
	}
	if outLen < 0 {
		return nil, fmt.Errorf("%w: %d", treeerrors.ErrInvalidOutputLength, outLen)
	}
	sum, err := d.h.Sum(outLen)
	if err != nil {
		return nil, err
	}
	d.finalized = true
	return sum, nil
}

// expand stretches a fixed-output digest to outLen bytes.
func (d *digest) expand(outLen int) ([]byte, error) {
	e, ok := d.h.(adapter.Expander)
	if !ok {
		return nil, fmt.Errorf("%w: %s", treeerrors.ErrNotExpandable, d.spec.Name)
	}
	if d.finalized {
		return nil, treeerrors.ErrDigestFinalized
	}
	d.finalized = true
	return e.Expand(outLen), nil
}
