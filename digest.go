package treehash

import (
	"errors"
	"fmt"
	"io"

	treeerrors "github.com/tamirms/treehash/errors"
)

// defaultReadBufferSize is used by HashReader when the caller supplies no buffer.
const defaultReadBufferSize = 64 * 1024

// DigestRequest binds an algorithm to a requested output length.
//
// When the algorithm has no native XOF and RequestedOutputBytes exceeds
// NativeDigestBytes, the digest must be expanded; NewDigestRequest rejects
// such a request unless expansion is explicitly allowed.
type DigestRequest struct {
	Algorithm            AlgorithmSpec
	RequestedOutputBytes int
	AllowExpansion       bool

	alg *Algorithm
}

// NewDigestRequest looks up name in reg and validates the requested output
// length. outLen 0 selects the algorithm's default output length.
func NewDigestRequest(reg *Registry, name string, outLen int, allowExpansion bool) (DigestRequest, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	alg, err := reg.Lookup(name)
	if err != nil {
		return DigestRequest{}, err
	}
	if outLen < 0 {
		return DigestRequest{}, fmt.Errorf("%w: %d", treeerrors.ErrInvalidOutputLength, outLen)
	}
	if outLen == 0 {
		outLen = alg.spec.DefaultOutputBytes
	}
	req := DigestRequest{
		Algorithm:            alg.spec,
		RequestedOutputBytes: outLen,
		AllowExpansion:       allowExpansion,
		alg:                  alg,
	}
	if req.NeedsExpansion() && !allowExpansion {
		return DigestRequest{}, fmt.Errorf("%w: %s produces %d bytes natively, %d requested",
			treeerrors.ErrExpansionNotAllowed, alg.spec.Name, alg.spec.NativeDigestBytes, outLen)
	}
	return req, nil
}

// NeedsExpansion reports whether the request can only be satisfied by the
// expansion construction.
func (r DigestRequest) NeedsExpansion() bool {
	return !r.Algorithm.SupportsNativeXOF && r.RequestedOutputBytes > r.Algorithm.NativeDigestBytes
}

// NewDigest constructs a fresh Digest for the requested algorithm. A
// request not built by NewDigestRequest is resolved by Algorithm.Name in the
// default registry; the zero value fails with ErrUnknownAlgorithm.
func (r DigestRequest) NewDigest() (Digest, error) {
	alg := r.alg
	if alg == nil {
		var err error
		if alg, err = DefaultRegistry().Lookup(r.Algorithm.Name); err != nil {
			return nil, err
		}
	}
	return alg.New(), nil
}

// Finalize produces exactly RequestedOutputBytes from d, routing through the
// expansion construction when the request requires it. The returned
// ExpansionInfo is non-nil exactly when expansion was used.
func (r DigestRequest) Finalize(d Digest) ([]byte, *ExpansionInfo, error) {
	if !r.NeedsExpansion() {
		sum, err := d.Finalize(r.RequestedOutputBytes)
		return sum, nil, err
	}
	if !r.AllowExpansion {
		return nil, nil, treeerrors.ErrExpansionNotAllowed
	}
	impl, ok := d.(*digest)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T", treeerrors.ErrNotExpandable, d)
	}
	sum, err := impl.expand(r.RequestedOutputBytes)
	if err != nil {
		return nil, nil, err
	}
	return sum, r.expansionInfo(), nil
}

func (r DigestRequest) expansionInfo() *ExpansionInfo {
	return &ExpansionInfo{
		Expanded:             true,
		Algorithm:            r.Algorithm.Name,
		RequestedOutputBytes: r.RequestedOutputBytes,
		NativeDigestBytes:    r.Algorithm.NativeDigestBytes,
	}
}

// HashReader streams rd through a fresh Digest using buf as the read buffer
// and finalizes it. A nil buf allocates a 64 KiB buffer. It returns the
// digest, the expansion record (nil for native output) and the number of
// bytes consumed.
func (r DigestRequest) HashReader(rd io.Reader, buf []byte) ([]byte, *ExpansionInfo, int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, defaultReadBufferSize)
	}
	d, err := r.NewDigest()
	if err != nil {
		return nil, nil, 0, err
	}
	var total int64
	for {
		n, err := rd.Read(buf)
		if n > 0 {
			if _, werr := d.Write(buf[:n]); werr != nil {
				return nil, nil, total, werr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, total, err
		}
	}
	sum, info, err := r.Finalize(d)
	return sum, info, total, err
}

// Sum hashes data in one call.
func (r DigestRequest) Sum(data []byte) ([]byte, *ExpansionInfo, error) {
	d, err := r.NewDigest()
	if err != nil {
		return nil, nil, err
	}
	if _, err := d.Write(data); err != nil {
		return nil, nil, err
	}
	return r.Finalize(d)
}
