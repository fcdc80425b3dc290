package treehash

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	treeerrors "github.com/tamirms/treehash/errors"
	"github.com/tamirms/treehash/internal/adapter"
)

// Algorithm is one registry entry: capability metadata plus a constructor
// for fresh Digests.
type Algorithm struct {
	spec      AlgorithmSpec
	aliases   []string
	newHasher func() adapter.Hasher
}

// Spec returns the algorithm's capability metadata.
func (a *Algorithm) Spec() AlgorithmSpec { return a.spec }

// Aliases returns the alternative names accepted by Lookup.
func (a *Algorithm) Aliases() []string { return slices.Clone(a.aliases) }

// New constructs a fresh Digest.
func (a *Algorithm) New() Digest {
	return &digest{spec: a.spec, h: a.newHasher()}
}

// builtinAlgorithms is the registry table. Adding an algorithm means adding
// one entry here; nothing in the pool or pipeline changes.
var builtinAlgorithms = []Algorithm{
	{
		spec:      AlgorithmSpec{Name: "blake3", NativeDigestBytes: 32, SupportsNativeXOF: true, IsCryptographic: true, DefaultOutputBytes: 32},
		newHasher: adapter.NewBLAKE3,
	},
	{
		spec:      AlgorithmSpec{Name: "blake2xb", NativeDigestBytes: 64, SupportsNativeXOF: true, IsCryptographic: true, DefaultOutputBytes: 64},
		aliases:   []string{"blake2b-xof"},
		newHasher: adapter.NewBLAKE2Xb,
	},
	{
		spec:      AlgorithmSpec{Name: "k12", NativeDigestBytes: 32, SupportsNativeXOF: true, IsCryptographic: true, DefaultOutputBytes: 32},
		aliases:   []string{"kangarootwelve", "kangaroo12"},
		newHasher: adapter.NewK12,
	},
	{
		spec:      AlgorithmSpec{Name: "shake128", NativeDigestBytes: 32, SupportsNativeXOF: true, IsCryptographic: true, DefaultOutputBytes: 32},
		newHasher: adapter.NewShake128,
	},
	{
		spec:      AlgorithmSpec{Name: "shake256", NativeDigestBytes: 32, SupportsNativeXOF: true, IsCryptographic: true, DefaultOutputBytes: 32},
		newHasher: adapter.NewShake256,
	},
	{
		spec:      AlgorithmSpec{Name: "blake2b", NativeDigestBytes: 64, IsCryptographic: true, DefaultOutputBytes: 64},
		aliases:   []string{"blake2b-512"},
		newHasher: adapter.NewBLAKE2b512,
	},
	{
		spec:      AlgorithmSpec{Name: "blake2b-1024", NativeDigestBytes: 64, IsCryptographic: true, DefaultOutputBytes: 128},
		newHasher: adapter.NewBLAKE2b512,
	},
	{
		spec:      AlgorithmSpec{Name: "sha3-512", NativeDigestBytes: 64, IsCryptographic: true, DefaultOutputBytes: 64},
		newHasher: adapter.NewSHA3512,
	},
	{
		spec:      AlgorithmSpec{Name: "murmur3-128", NativeDigestBytes: 16, DefaultOutputBytes: 16},
		aliases:   []string{"murmur3"},
		newHasher: adapter.NewMurmur3128,
	},
	{
		spec:      AlgorithmSpec{Name: "xxh3", NativeDigestBytes: 8, DefaultOutputBytes: 8},
		aliases:   []string{"xxh3-64"},
		newHasher: adapter.NewXXH3,
	},
	{
		spec:      AlgorithmSpec{Name: "xxh3-1024", NativeDigestBytes: 8, DefaultOutputBytes: 128},
		newHasher: adapter.NewXXH3,
	},
	{
		spec:      AlgorithmSpec{Name: "xxh64", NativeDigestBytes: 8, DefaultOutputBytes: 8},
		newHasher: adapter.NewXXH64,
	},
	{
		spec:      AlgorithmSpec{Name: "xxh64-1024", NativeDigestBytes: 8, DefaultOutputBytes: 128},
		newHasher: adapter.NewXXH64,
	},
	{
		spec:      AlgorithmSpec{Name: "wyhash-1024", NativeDigestBytes: 8, DefaultOutputBytes: 128},
		aliases:   []string{"wyhash"},
		newHasher: adapter.NewWyHash,
	},
}

// Registry maps case-insensitive algorithm names to constructors.
//
// A Registry is read-only after NewRegistry returns and is safe for
// concurrent lookup from any number of goroutines.
type Registry struct {
	byName  map[string]*Algorithm
	ordered []*Algorithm
}

// NewRegistry builds a registry holding every built-in algorithm.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Algorithm)}
	for i := range builtinAlgorithms {
		a := &builtinAlgorithms[i]
		r.ordered = append(r.ordered, a)
		r.byName[a.spec.Name] = a
		for _, alias := range a.aliases {
			r.byName[alias] = a
		}
	}
	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// DefaultRegistry returns the process-wide registry, built on first use.
func DefaultRegistry() *Registry { return defaultRegistry() }

// Lookup returns the algorithm registered under name (case-insensitive).
func (r *Registry) Lookup(name string) (*Algorithm, error) {
	a, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", treeerrors.ErrUnknownAlgorithm, name)
	}
	return a, nil
}

// List returns the spec of every registered algorithm in registration order.
func (r *Registry) List() []AlgorithmSpec {
	specs := make([]AlgorithmSpec, len(r.ordered))
	for i, a := range r.ordered {
		specs[i] = a.spec
	}
	return specs
}
