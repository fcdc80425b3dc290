//go:build !linux

package treehash

import "os"

// fadviseSequential is a no-op on non-Linux platforms.
// posix_fadvise is not exposed portably.
func fadviseSequential(f *os.File) {}

// fadviseDontNeed is a no-op on non-Linux platforms.
func fadviseDontNeed(f *os.File) {}
