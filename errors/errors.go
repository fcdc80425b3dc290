// Package errors defines all exported error sentinels for the treehash library.
//
// This is the single source of truth for error values. Both the top-level
// treehash package and internal algorithm packages import from here,
// ensuring errors.Is checks work across package boundaries.
package errors

import "errors"

// Configuration errors. These are reported before any work starts.
var (
	ErrUnknownAlgorithm    = errors.New("treehash: unknown algorithm")
	ErrInvalidMode         = errors.New("treehash: invalid memory mode")
	ErrInvalidOutputLength = errors.New("treehash: invalid output length")
	ErrExpansionNotAllowed = errors.New("treehash: requested output exceeds native digest size and expansion is not enabled")
	ErrInvalidThreads      = errors.New("treehash: thread override must not be negative")
)

// Digest errors
var (
	// ErrExpansionRequired is returned by a fixed-output adapter asked for
	// more bytes than its native digest provides.
	ErrExpansionRequired = errors.New("treehash: output length requires expansion")
	ErrNotExpandable     = errors.New("treehash: algorithm has no expansion construction")
	ErrDigestFinalized   = errors.New("treehash: digest already finalized")
)

// Pipeline errors
var (
	// ErrDigestPanic wraps a panic recovered while hashing a single file.
	// It fails that file only.
	ErrDigestPanic = errors.New("treehash: internal error while hashing")
)
