//go:build linux

package treehash

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseSequential hints to the kernel that f will be read front to back,
// which doubles the readahead window on most filesystems.
// Best-effort: errors are silently ignored.
func fadviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}

// fadviseDontNeed drops f's pages from the page cache once hashed, so a
// large tree walk does not evict the rest of the system's working set.
// Best-effort: errors are silently ignored.
func fadviseDontNeed(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}
